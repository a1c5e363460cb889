package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/carelinkhq/carelinkbackend/models"
)

// UserRepository is the store surface the auth, org and assignment
// services rely on. Absence is reported as mongo.ErrNoDocuments.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	RecordFailedLogin(ctx context.Context, id bson.ObjectID) error
	ResetFailedLogins(ctx context.Context, id bson.ObjectID) error

	PushRefreshHash(ctx context.Context, id bson.ObjectID, hash string) error
	ClaimRefreshHash(ctx context.Context, hash string) (*models.User, error)
	RemoveRefreshHash(ctx context.Context, id bson.ObjectID, hash string) error
	ClearRefreshHashes(ctx context.Context, id bson.ObjectID) error

	// SetRoleIfUnset elevates a role in one conditional write; it reports
	// mongo.ErrNoDocuments when the user is absent or the role is no
	// longer unset.
	SetRoleIfUnset(ctx context.Context, id bson.ObjectID, role models.Role) error
	SetApproval(ctx context.Context, id bson.ObjectID, approved bool) error
	AddProvider(ctx context.Context, id bson.ObjectID, binding models.ProviderBinding) error

	SetOrganization(ctx context.Context, id bson.ObjectID, orgID bson.ObjectID) error
	ClearOrganizationIf(ctx context.Context, id bson.ObjectID, orgID bson.ObjectID) error

	SetPassword(ctx context.Context, id bson.ObjectID, passwordHash string) error
	SetResetToken(ctx context.Context, id bson.ObjectID, tokenHash string, expires time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string) (*models.User, error)

	AddAssignedPatient(ctx context.Context, userID, patientID bson.ObjectID) error
	RemoveAssignedPatient(ctx context.Context, userID, patientID bson.ObjectID) error
}

type mongoUserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(col *mongo.Collection) UserRepository {
	return &mongoUserRepository{col: col}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, user)
	return err
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error) {
	var user models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.col.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUserRepository) RecordFailedLogin(ctx context.Context, id bson.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$inc": bson.M{"failedLoginCount": 1},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}

func (r *mongoUserRepository) ResetFailedLogins(ctx context.Context, id bson.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"failedLoginCount": 0, "updatedAt": time.Now().UTC()},
	})
	return err
}

// PushRefreshHash appends a refresh fingerprint, keeping only the most
// recent models.MaxRefreshTokens entries (oldest evicted first).
func (r *mongoUserRepository) PushRefreshHash(ctx context.Context, id bson.ObjectID, hash string) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$push": bson.M{
			"refreshTokenHashes": bson.M{
				"$each":  bson.A{hash},
				"$slice": -models.MaxRefreshTokens,
			},
		},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}

// ClaimRefreshHash finds the user holding the fingerprint and removes it
// in the same store call. Two concurrent presentations of one token race
// on this single-document write; only the first finds a match, so a
// replayed token fails closed.
func (r *mongoUserRepository) ClaimRefreshHash(ctx context.Context, hash string) (*models.User, error) {
	var user models.User
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"refreshTokenHashes": hash},
		bson.M{
			"$pull": bson.M{"refreshTokenHashes": hash},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUserRepository) RemoveRefreshHash(ctx context.Context, id bson.ObjectID, hash string) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$pull": bson.M{"refreshTokenHashes": hash},
	})
	return err
}

func (r *mongoUserRepository) ClearRefreshHashes(ctx context.Context, id bson.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"refreshTokenHashes": bson.A{}, "updatedAt": time.Now().UTC()},
	})
	return err
}

func (r *mongoUserRepository) SetRoleIfUnset(ctx context.Context, id bson.ObjectID, role models.Role) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "role": models.RoleUnset},
		bson.M{"$set": bson.M{"role": role, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *mongoUserRepository) SetApproval(ctx context.Context, id bson.ObjectID, approved bool) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"isApproved": approved, "updatedAt": time.Now().UTC()},
	})
	return err
}

func (r *mongoUserRepository) AddProvider(ctx context.Context, id bson.ObjectID, binding models.ProviderBinding) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$addToSet": bson.M{"providers": binding},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}

func (r *mongoUserRepository) SetOrganization(ctx context.Context, id bson.ObjectID, orgID bson.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"organization": orgID, "updatedAt": time.Now().UTC()},
	})
	return err
}

// ClearOrganizationIf unsets the forward pointer only when it still
// points at the given org, so removal from one org never detaches a user
// who has since moved to another.
func (r *mongoUserRepository) ClearOrganizationIf(ctx context.Context, id bson.ObjectID, orgID bson.ObjectID) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "organization": orgID},
		bson.M{
			"$unset": bson.M{"organization": ""},
			"$set":   bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	return err
}

func (r *mongoUserRepository) SetPassword(ctx context.Context, id bson.ObjectID, passwordHash string) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"passwordHash":       passwordHash,
			"failedLoginCount":   0,
			"lastPasswordChange": now,
			"updatedAt":          now,
		},
		"$unset": bson.M{
			"resetTokenHash":    "",
			"resetTokenExpires": "",
		},
	})
	return err
}

func (r *mongoUserRepository) SetResetToken(ctx context.Context, id bson.ObjectID, tokenHash string, expires time.Time) error {
	_, err := r.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"resetTokenHash":    tokenHash,
			"resetTokenExpires": expires,
			"updatedAt":         time.Now().UTC(),
		},
	})
	return err
}

func (r *mongoUserRepository) FindByResetToken(ctx context.Context, tokenHash string) (*models.User, error) {
	var user models.User
	err := r.col.FindOne(ctx, bson.M{
		"resetTokenHash":    tokenHash,
		"resetTokenExpires": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *mongoUserRepository) AddAssignedPatient(ctx context.Context, userID, patientID bson.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, userID, bson.M{
		"$addToSet": bson.M{"assignedPatients": patientID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}

func (r *mongoUserRepository) RemoveAssignedPatient(ctx context.Context, userID, patientID bson.ObjectID) error {
	_, err := r.col.UpdateByID(ctx, userID, bson.M{
		"$pull": bson.M{"assignedPatients": patientID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}
