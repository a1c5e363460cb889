package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/carelinkhq/carelinkbackend/models"
)

type PatientRepository interface {
	Create(ctx context.Context, patient *models.Patient) error
	// FindByID returns soft-deleted patients too; they stay addressable
	// for audit reads.
	FindByID(ctx context.Context, id bson.ObjectID) (*models.Patient, error)
	UpdateFields(ctx context.Context, id bson.ObjectID, set bson.M) error
	SoftDelete(ctx context.Context, id, deletedBy bson.ObjectID) error
	ListActive(ctx context.Context, orgID bson.ObjectID, page, limit int) ([]models.Patient, int64, error)
	AddDocument(ctx context.Context, id bson.ObjectID, doc models.CareDocument) error
}

type mongoPatientRepository struct {
	col *mongo.Collection
}

func NewPatientRepository(col *mongo.Collection) PatientRepository {
	return &mongoPatientRepository{col: col}
}

func (r *mongoPatientRepository) Create(ctx context.Context, patient *models.Patient) error {
	if patient.Id.IsZero() {
		patient.Id = bson.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, patient)
	return err
}

func (r *mongoPatientRepository) FindByID(ctx context.Context, id bson.ObjectID) (*models.Patient, error) {
	var patient models.Patient
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

func (r *mongoPatientRepository) UpdateFields(ctx context.Context, id bson.ObjectID, set bson.M) error {
	set["updatedAt"] = time.Now().UTC()
	res, err := r.col.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *mongoPatientRepository) SoftDelete(ctx context.Context, id, deletedBy bson.ObjectID) error {
	now := time.Now().UTC()
	res, err := r.col.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"isDeleted": true,
			"deletedAt": now,
			"deletedBy": deletedBy,
			"updatedAt": now,
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *mongoPatientRepository) ListActive(ctx context.Context, orgID bson.ObjectID, page, limit int) ([]models.Patient, int64, error) {
	filter := bson.M{
		"organization": orgID,
		"isDeleted":    bson.M{"$ne": true},
	}

	skip := int64((page - 1) * limit)
	opts := options.Find().
		SetSkip(skip).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "fullName", Value: 1}})

	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]models.Patient, 0)
	for cursor.Next(ctx) {
		var p models.Patient
		if err := cursor.Decode(&p); err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, err
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *mongoPatientRepository) AddDocument(ctx context.Context, id bson.ObjectID, doc models.CareDocument) error {
	res, err := r.col.UpdateByID(ctx, id, bson.M{
		"$push": bson.M{"documents": doc},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
