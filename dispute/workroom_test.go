package dispute

import (
	"context"
	"testing"

	"agrilink-bend/dao"
	"agrilink-bend/models"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newWorkroom() (*Workroom, *dao.MemoryDisputeStore) {
	store := dao.NewMemoryDisputeStore()
	return New(store, zap.NewNop()), store
}

func sampleReq(orderID primitive.ObjectID) models.CreateDisputeReq {
	return models.CreateDisputeReq{
		OrderID:     orderID.Hex(),
		HubID:       "hub_kigali",
		HubName:     "Kigali Central Aggregator",
		Region:      "Kigali",
		Commodity:   "beans",
		Issue:       "Moisture above grade threshold",
		AnomalyType: "quality_anomaly",
		Severity:    models.SeverityHigh,
	}
}

func TestOpenDispute(t *testing.T) {
	w, _ := newWorkroom()
	admin := primitive.NewObjectID()
	orderID := primitive.NewObjectID()

	dispute, err := w.Open(context.Background(), admin, models.RoleAdmin, sampleReq(orderID))
	assert.Nil(t, err)
	assert.Equal(t, models.DisputePendingReview, dispute.Status)
	assert.Equal(t, models.SourceAdminManual, dispute.Source)
	assert.Equal(t, orderID, dispute.Order)
	assert.Len(t, dispute.Events, 1)
	assert.Equal(t, models.ActionCreated, dispute.Events[0].Action)
}

func TestOpenDisputeUniquenessKey(t *testing.T) {
	w, _ := newWorkroom()
	admin := primitive.NewObjectID()
	orderID := primitive.NewObjectID()
	ctx := context.Background()

	_, err := w.Open(ctx, admin, models.RoleAdmin, sampleReq(orderID))
	assert.Nil(t, err)

	// same (order, anomaly_type, issue) while the first is still open
	_, err = w.Open(ctx, admin, models.RoleAdmin, sampleReq(orderID))
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))

	// different issue on the same order is a distinct dispute
	other := sampleReq(orderID)
	other.Issue = "Underweight delivery"
	_, err = w.Open(ctx, admin, models.RoleAdmin, other)
	assert.Nil(t, err)
}

func TestOpenDisputeAllowedAfterResolution(t *testing.T) {
	w, _ := newWorkroom()
	admin := primitive.NewObjectID()
	orderID := primitive.NewObjectID()
	ctx := context.Background()

	first, err := w.Open(ctx, admin, models.RoleAdmin, sampleReq(orderID))
	assert.Nil(t, err)

	_, err = w.Review(ctx, first.ID.Hex(), admin, models.ReviewDisputeReq{Action: models.ActionStartReview})
	assert.Nil(t, err)
	_, err = w.Review(ctx, first.ID.Hex(), admin, models.ReviewDisputeReq{Action: models.ActionResolve, Comment: "regraded"})
	assert.Nil(t, err)

	// once closed, the key is free again
	_, err = w.Open(ctx, admin, models.RoleAdmin, sampleReq(orderID))
	assert.Nil(t, err)
}

func TestReviewEdges(t *testing.T) {
	w, _ := newWorkroom()
	admin := primitive.NewObjectID()
	ctx := context.Background()

	dispute, err := w.Open(ctx, admin, models.RoleAdmin, sampleReq(primitive.NewObjectID()))
	assert.Nil(t, err)
	id := dispute.ID.Hex()

	// resolve straight from pending_review is not an edge
	_, err = w.Review(ctx, id, admin, models.ReviewDisputeReq{Action: models.ActionResolve})
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))

	got, err := w.Review(ctx, id, admin, models.ReviewDisputeReq{Action: models.ActionStartReview})
	assert.Nil(t, err)
	assert.Equal(t, models.DisputeUnderReview, got.Status)

	got, err = w.Review(ctx, id, admin, models.ReviewDisputeReq{Action: models.ActionEscalate, Comment: "needs field visit"})
	assert.Nil(t, err)
	assert.Equal(t, models.DisputePendingEscalation, got.Status)

	got, err = w.Review(ctx, id, admin, models.ReviewDisputeReq{Action: models.ActionDismiss, Comment: "visit found no issue"})
	assert.Nil(t, err)
	assert.Equal(t, models.DisputeDismissed, got.Status)

	// closed disputes only accept reopened
	_, err = w.Review(ctx, id, admin, models.ReviewDisputeReq{Action: models.ActionEscalate})
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))

	got, err = w.Review(ctx, id, admin, models.ReviewDisputeReq{Action: models.ActionReopened, Comment: "buyer appealed"})
	assert.Nil(t, err)
	assert.Equal(t, models.DisputeUnderReview, got.Status)
}

func TestReviewAppendsOneEventPerAction(t *testing.T) {
	w, _ := newWorkroom()
	admin := primitive.NewObjectID()
	ctx := context.Background()

	dispute, err := w.Open(ctx, admin, models.RoleAdmin, sampleReq(primitive.NewObjectID()))
	assert.Nil(t, err)
	id := dispute.ID.Hex()

	got, err := w.Review(ctx, id, admin, models.ReviewDisputeReq{Action: models.ActionStartReview})
	assert.Nil(t, err)
	assert.Len(t, got.Events, 2)
	last := got.Events[len(got.Events)-1]
	assert.Equal(t, models.DisputePendingReview, last.PreviousStatus)
	assert.Equal(t, models.DisputeUnderReview, last.NextStatus)

	// a rejected action leaves the history untouched
	_, err = w.Review(ctx, id, admin, models.ReviewDisputeReq{Action: models.ActionStartReview})
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
	got, err = w.Get(ctx, id)
	assert.Nil(t, err)
	assert.Len(t, got.Events, 2)
}

func TestCommentKeepsStatus(t *testing.T) {
	w, _ := newWorkroom()
	admin := primitive.NewObjectID()
	ctx := context.Background()

	dispute, err := w.Open(ctx, admin, models.RoleAdmin, sampleReq(primitive.NewObjectID()))
	assert.Nil(t, err)

	got, err := w.Review(ctx, dispute.ID.Hex(), admin, models.ReviewDisputeReq{
		Action:  models.ActionComment,
		Comment: "waiting on hub photos",
	})
	assert.Nil(t, err)
	assert.Equal(t, models.DisputePendingReview, got.Status)
	assert.Len(t, got.Events, 2)

	_, err = w.Review(ctx, dispute.ID.Hex(), admin, models.ReviewDisputeReq{Action: models.ActionComment})
	assert.Equal(t, models.CodeValidation, models.ErrCode(err))
}

func TestHasBlocking(t *testing.T) {
	w, _ := newWorkroom()
	admin := primitive.NewObjectID()
	orderID := primitive.NewObjectID()
	ctx := context.Background()

	req := sampleReq(orderID)
	req.Severity = models.SeverityMedium
	_, err := w.Open(ctx, admin, models.RoleAdmin, req)
	assert.Nil(t, err)

	blocking, err := w.HasBlocking(ctx, orderID)
	assert.Nil(t, err)
	assert.False(t, blocking)

	high := sampleReq(orderID)
	high.Issue = "Short weight at inspection"
	dispute, err := w.Open(ctx, admin, models.RoleAdmin, high)
	assert.Nil(t, err)

	blocking, err = w.HasBlocking(ctx, orderID)
	assert.Nil(t, err)
	assert.True(t, blocking)

	// resolving the high-severity dispute unblocks the order
	_, err = w.Review(ctx, dispute.ID.Hex(), admin, models.ReviewDisputeReq{Action: models.ActionStartReview})
	assert.Nil(t, err)
	_, err = w.Review(ctx, dispute.ID.Hex(), admin, models.ReviewDisputeReq{Action: models.ActionResolve, Comment: "re-weighed"})
	assert.Nil(t, err)

	blocking, err = w.HasBlocking(ctx, orderID)
	assert.Nil(t, err)
	assert.False(t, blocking)
}

func TestUpsertPayoutFailure(t *testing.T) {
	w, store := newWorkroom()
	ctx := context.Background()

	order := models.BuyerOrder{
		ID:          primitive.NewObjectID(),
		OrderNumber: "AG-123456",
		Batch:       primitive.NewObjectID(),
		CropKey:     "maize",
	}

	first, err := w.UpsertPayoutFailure(ctx, order, "provider timeout")
	assert.Nil(t, err)
	assert.Equal(t, models.SourcePayoutFailure, first.Source)
	assert.Equal(t, models.SeverityHigh, first.Severity)
	assert.Len(t, first.Events, 1)

	// the second failure syncs onto the existing open dispute
	second, err := w.UpsertPayoutFailure(ctx, order, "provider timeout again")
	assert.Nil(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Events, 2)
	assert.Equal(t, models.ActionSystemSync, second.Events[1].Action)

	all, err := store.ListAll(ctx)
	assert.Nil(t, err)
	assert.Len(t, all, 1)
}
