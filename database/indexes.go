package database

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates the unique indexes duplicate-key handling in
// the controllers relies on (E11000 surfaced as 409).
func EnsureIndexes(ctx context.Context) error {
	users := OpenCollection("users")
	if _, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "refreshTokenHashes", Value: 1}},
		},
	}); err != nil {
		return err
	}

	orgs := OpenCollection("organizations")
	if _, err := orgs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "staff", Value: 1}},
		},
	}); err != nil {
		return err
	}

	patients := OpenCollection("patients")
	_, err := patients.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "organization", Value: 1}, {Key: "isDeleted", Value: 1}},
		},
	})
	return err
}
