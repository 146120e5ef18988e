package dao

import (
	"context"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PayoutAuditDAO represents the payout audits collection. The collection is
// append-only; no update or delete methods exist on purpose.
type PayoutAuditDAO struct {
	db         *mongo.Database
	Collection *mongo.Collection
}

// NewPayoutAuditDAO returns a new PayoutAuditDAO
func NewPayoutAuditDAO(ctx context.Context, db *mongo.Database) *PayoutAuditDAO {
	return &PayoutAuditDAO{
		db:         db,
		Collection: db.Collection("payout_audits"),
	}
}

// Insert a payout audit record
func (dao *PayoutAuditDAO) Insert(ctx context.Context, audit models.PayoutAudit) error {
	obj, _ := bson.Marshal(audit)
	_, err := dao.Collection.InsertOne(ctx, obj)
	return err
}

// CountByOrder ...
func (dao *PayoutAuditDAO) CountByOrder(ctx context.Context, orderID primitive.ObjectID) (int64, error) {
	return dao.Collection.CountDocuments(ctx, bson.M{"order": orderID})
}

// ListByOrder ...
func (dao *PayoutAuditDAO) ListByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.PayoutAudit, error) {
	return dao.list(ctx, bson.M{"order": orderID})
}

// ListAll ...
func (dao *PayoutAuditDAO) ListAll(ctx context.Context) ([]models.PayoutAudit, error) {
	return dao.list(ctx, bson.M{})
}

func (dao *PayoutAuditDAO) list(ctx context.Context, filter bson.M) ([]models.PayoutAudit, error) {
	var audits []models.PayoutAudit

	opts := options.Find()
	opts.SetSort(bson.M{"processed_at": -1})

	cursor, err := dao.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	err = cursor.All(ctx, &audits)
	return audits, err
}
