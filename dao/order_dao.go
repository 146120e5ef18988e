package dao

import (
	"context"
	"time"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OrderDAO represents the buyer orders collection
type OrderDAO struct {
	ctx        context.Context
	db         *mongo.Database
	Collection *mongo.Collection
}

// NewOrderDAO returns a new OrderDAO
func NewOrderDAO(ctx context.Context, db *mongo.Database) *OrderDAO {
	return &OrderDAO{
		ctx:        context.TODO(),
		db:         db,
		Collection: db.Collection("buyer_orders"),
	}
}

// Insert an order into database
func (dao *OrderDAO) Insert(ctx context.Context, order models.BuyerOrder) error {
	obj, _ := bson.Marshal(order)
	_, err := dao.Collection.InsertOne(ctx, obj)
	return err
}

// FindByID ...
func (dao *OrderDAO) FindByID(ctx context.Context, id string) (models.BuyerOrder, error) {
	var order models.BuyerOrder
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return order, mongo.ErrNoDocuments
	}
	err = dao.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&order)
	return order, err
}

// FindByCheckoutSession resolves an order from a provider checkout session id
func (dao *OrderDAO) FindByCheckoutSession(ctx context.Context, sessionID string) (models.BuyerOrder, error) {
	var order models.BuyerOrder
	err := dao.Collection.FindOne(ctx, bson.M{"checkout_session_id": sessionID}).Decode(&order)
	return order, err
}

// NumberExists ...
func (dao *OrderDAO) NumberExists(ctx context.Context, number string) (bool, error) {
	count, err := dao.Collection.CountDocuments(ctx, bson.M{"order_number": number})
	return count > 0, err
}

// Update replaces the stored order document
func (dao *OrderDAO) Update(ctx context.Context, order models.BuyerOrder) error {
	_, err := dao.Collection.UpdateOne(ctx,
		bson.M{"_id": order.ID},
		bson.M{"$set": order})
	return err
}

// UpdateIfEscrowStatus applies the update only while the stored escrow
// status still equals expected. The filter makes the write a compare-and-
// swap: a document whose escrow status moved on no longer matches, the
// update touches nothing, and the caller learns it lost the race.
func (dao *OrderDAO) UpdateIfEscrowStatus(ctx context.Context, order models.BuyerOrder, expected string) (bool, error) {
	res := dao.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": order.ID, "escrow_status": expected},
		bson.M{"$set": order})
	if err := res.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FindEligibleForRelease returns funded, deposit-paid, active orders oldest
// funded first.
func (dao *OrderDAO) FindEligibleForRelease(ctx context.Context, limit int) ([]models.BuyerOrder, error) {
	var orders []models.BuyerOrder

	opts := options.Find()
	opts.SetSort(bson.M{"escrow_funded_at": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := dao.Collection.Find(ctx, bson.M{
		"escrow_status":  models.EscrowFunded,
		"payment_status": models.PaymentDepositPaid,
		"status":         models.OrderActive,
	}, opts)
	if err != nil {
		return nil, err
	}

	err = cursor.All(ctx, &orders)
	return orders, err
}

// HasActiveOrderForBatch ...
func (dao *OrderDAO) HasActiveOrderForBatch(ctx context.Context, batchID primitive.ObjectID) (bool, error) {
	count, err := dao.Collection.CountDocuments(ctx, bson.M{
		"batch":  batchID,
		"status": models.OrderActive,
	})
	return count > 0, err
}

// ListByBuyer returns a buyer's orders, optionally filtered by roll-up status
func (dao *OrderDAO) ListByBuyer(ctx context.Context, buyerID primitive.ObjectID, status string) ([]models.BuyerOrder, error) {
	var orders []models.BuyerOrder

	filter := bson.M{"buyer": buyerID}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find()
	opts.SetSort(bson.M{"created_at": -1})

	cursor, err := dao.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	err = cursor.All(ctx, &orders)
	return orders, err
}

// ListAll ...
func (dao *OrderDAO) ListAll(ctx context.Context) ([]models.BuyerOrder, error) {
	var orders []models.BuyerOrder

	opts := options.Find()
	opts.SetSort(bson.M{"created_at": -1})

	cursor, err := dao.Collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	err = cursor.All(ctx, &orders)
	return orders, err
}

// ListAwaitingPaymentBefore returns active unfunded orders created before
// the cutoff, for the auto-cancel job.
func (dao *OrderDAO) ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]models.BuyerOrder, error) {
	var orders []models.BuyerOrder

	cursor, err := dao.Collection.Find(ctx, bson.M{
		"escrow_status": models.EscrowAwaitingPayment,
		"status":        models.OrderActive,
		"created_at":    bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, err
	}

	err = cursor.All(ctx, &orders)
	return orders, err
}
