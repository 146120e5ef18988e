package dao

import (
	"context"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var openDisputeStatuses = []string{
	models.DisputePendingReview,
	models.DisputeUnderReview,
	models.DisputePendingEscalation,
}

// DisputeDAO represents the disputes collection
type DisputeDAO struct {
	db         *mongo.Database
	Collection *mongo.Collection
}

// NewDisputeDAO returns a new DisputeDAO
func NewDisputeDAO(ctx context.Context, db *mongo.Database) *DisputeDAO {
	return &DisputeDAO{
		db:         db,
		Collection: db.Collection("disputes"),
	}
}

// EnsureIndexes creates the partial unique index backing the one-open-
// dispute-per-key rule.
func (dao *DisputeDAO) EnsureIndexes(ctx context.Context) error {
	_, err := dao.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "order", Value: 1},
			{Key: "anomaly_type", Value: 1},
			{Key: "issue", Value: 1},
		},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"status": bson.M{"$in": openDisputeStatuses},
			}),
	})
	return err
}

// InsertIfNoOpen inserts the dispute unless an open one already holds the
// (order, anomaly_type, issue) key. The partial unique index turns the
// losing insert of a race into a duplicate key error, reported as false.
func (dao *DisputeDAO) InsertIfNoOpen(ctx context.Context, dispute models.Dispute) (bool, error) {
	obj, _ := bson.Marshal(dispute)
	_, err := dao.Collection.InsertOne(ctx, obj)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FindByID ...
func (dao *DisputeDAO) FindByID(ctx context.Context, id string) (models.Dispute, error) {
	var dispute models.Dispute
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return dispute, mongo.ErrNoDocuments
	}
	err = dao.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&dispute)
	return dispute, err
}

// FindOpenByOrderKey ...
func (dao *DisputeDAO) FindOpenByOrderKey(ctx context.Context, orderID primitive.ObjectID, anomalyType, issue string) (models.Dispute, bool, error) {
	var dispute models.Dispute
	err := dao.Collection.FindOne(ctx, bson.M{
		"order":        orderID,
		"anomaly_type": anomalyType,
		"issue":        issue,
		"status":       bson.M{"$in": openDisputeStatuses},
	}).Decode(&dispute)
	if err == mongo.ErrNoDocuments {
		return models.Dispute{}, false, nil
	}
	if err != nil {
		return models.Dispute{}, false, err
	}
	return dispute, true, nil
}

// Update replaces the stored dispute document
func (dao *DisputeDAO) Update(ctx context.Context, dispute models.Dispute) error {
	_, err := dao.Collection.UpdateOne(ctx,
		bson.M{"_id": dispute.ID},
		bson.M{"$set": dispute})
	return err
}

// ListByOrder ...
func (dao *DisputeDAO) ListByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.Dispute, error) {
	return dao.list(ctx, bson.M{"order": orderID})
}

// ListByHub ...
func (dao *DisputeDAO) ListByHub(ctx context.Context, hubID string) ([]models.Dispute, error) {
	return dao.list(ctx, bson.M{"hub_id": hubID})
}

// ListAll ...
func (dao *DisputeDAO) ListAll(ctx context.Context) ([]models.Dispute, error) {
	return dao.list(ctx, bson.M{})
}

func (dao *DisputeDAO) list(ctx context.Context, filter bson.M) ([]models.Dispute, error) {
	var disputes []models.Dispute

	opts := options.Find()
	opts.SetSort(bson.M{"last_action_at": -1})

	cursor, err := dao.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	err = cursor.All(ctx, &disputes)
	return disputes, err
}

// isDuplicateKey reports a unique index violation (code 11000)
func isDuplicateKey(err error) bool {
	we, ok := err.(mongo.WriteException)
	if !ok {
		return false
	}
	for _, wErr := range we.WriteErrors {
		if wErr.Code == 11000 {
			return true
		}
	}
	return false
}
