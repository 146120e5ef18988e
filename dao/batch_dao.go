package dao

import (
	"context"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// BatchDAO represents the farmer batches collection
type BatchDAO struct {
	db         *mongo.Database
	Collection *mongo.Collection
}

// NewBatchDAO returns a new BatchDAO
func NewBatchDAO(ctx context.Context, db *mongo.Database) *BatchDAO {
	return &BatchDAO{
		db:         db,
		Collection: db.Collection("batches"),
	}
}

// FindByID ...
func (dao *BatchDAO) FindByID(ctx context.Context, id string) (models.Batch, error) {
	var batch models.Batch
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return batch, mongo.ErrNoDocuments
	}
	err = dao.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&batch)
	return batch, err
}

// Update replaces the stored batch document
func (dao *BatchDAO) Update(ctx context.Context, batch models.Batch) error {
	_, err := dao.Collection.UpdateOne(ctx,
		bson.M{"_id": batch.ID},
		bson.M{"$set": batch})
	return err
}

// ListAll ...
func (dao *BatchDAO) ListAll(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch

	opts := options.Find()
	opts.SetSort(bson.M{"created_at": -1})

	cursor, err := dao.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	err = cursor.All(ctx, &batches)
	return batches, err
}
