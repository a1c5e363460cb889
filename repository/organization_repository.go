package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/carelinkhq/carelinkbackend/models"
)

type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	FindByID(ctx context.Context, id bson.ObjectID) (*models.Organization, error)
	// FindByAdmin resolves the organization an admin acts within: the one
	// they created or are listed as staff of.
	FindByAdmin(ctx context.Context, adminID bson.ObjectID) (*models.Organization, error)
	AddStaff(ctx context.Context, orgID, userID bson.ObjectID) error
	RemoveStaff(ctx context.Context, orgID, userID bson.ObjectID) error
}

type mongoOrganizationRepository struct {
	col *mongo.Collection
}

func NewOrganizationRepository(col *mongo.Collection) OrganizationRepository {
	return &mongoOrganizationRepository{col: col}
}

func (r *mongoOrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	if org.Id.IsZero() {
		org.Id = bson.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, org)
	return err
}

func (r *mongoOrganizationRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.Organization, error) {
	var org models.Organization
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&org); err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *mongoOrganizationRepository) FindByAdmin(ctx context.Context, adminID bson.ObjectID) (*models.Organization, error) {
	var org models.Organization
	err := r.col.FindOne(ctx, bson.M{
		"$or": bson.A{
			bson.M{"createdBy": adminID},
			bson.M{"staff": adminID},
		},
	}).Decode(&org)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *mongoOrganizationRepository) AddStaff(ctx context.Context, orgID, userID bson.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, orgID, bson.M{
		"$addToSet": bson.M{"staff": userID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}

func (r *mongoOrganizationRepository) RemoveStaff(ctx context.Context, orgID, userID bson.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, orgID, bson.M{
		"$pull": bson.M{"staff": userID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}
