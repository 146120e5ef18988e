package ledger

import (
	"context"
	"time"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStore is the persistence contract the ledger runs against. The one
// write primitive with concurrency weight is UpdateIfEscrowStatus: a
// conditional whole-document update that only applies while the stored
// escrow status still matches the expected value.
type OrderStore interface {
	Insert(ctx context.Context, order models.BuyerOrder) error
	FindByID(ctx context.Context, id string) (models.BuyerOrder, error)
	FindByCheckoutSession(ctx context.Context, sessionID string) (models.BuyerOrder, error)
	NumberExists(ctx context.Context, number string) (bool, error)
	Update(ctx context.Context, order models.BuyerOrder) error
	UpdateIfEscrowStatus(ctx context.Context, order models.BuyerOrder, expected string) (bool, error)
	FindEligibleForRelease(ctx context.Context, limit int) ([]models.BuyerOrder, error)
	HasActiveOrderForBatch(ctx context.Context, batchID primitive.ObjectID) (bool, error)
	ListByBuyer(ctx context.Context, buyerID primitive.ObjectID, status string) ([]models.BuyerOrder, error)
	ListAll(ctx context.Context) ([]models.BuyerOrder, error)
	ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]models.BuyerOrder, error)
}

// BatchStore exposes the farmer listings orders are created against
type BatchStore interface {
	FindByID(ctx context.Context, id string) (models.Batch, error)
	Update(ctx context.Context, batch models.Batch) error
	ListAll(ctx context.Context) ([]models.Batch, error)
}

// UserStore resolves buyers and farmers
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}
