package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"agrilink-bend/dao"
	"agrilink-bend/models"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fixture struct {
	ledger  *Ledger
	orders  *dao.MemoryOrderStore
	batches *dao.MemoryBatchStore
	users   *dao.MemoryUserStore
	buyer   models.User
	farmer  models.User
	batch   models.Batch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	orders := dao.NewMemoryOrderStore()
	batches := dao.NewMemoryBatchStore()
	users := dao.NewMemoryUserStore()

	buyer := models.User{ID: primitive.NewObjectID(), FullName: "Chantal U.", Role: models.RoleUserBuyer}
	farmer := models.User{ID: primitive.NewObjectID(), FullName: "Jean Bosco", Role: models.RoleUserFarmer}
	users.Put(buyer)
	users.Put(farmer)

	batch := models.Batch{
		ID:          primitive.NewObjectID(),
		Farmer:      farmer.ID,
		Products:    []models.BatchProduct{{Name: "Red Beans", Unit: "kg", Quantity: 500}},
		TotalWeight: 500,
		TotalPrice:  250000,
		Status:      models.BatchActive,
		CreatedAt:   time.Now().UTC(),
	}
	batches.Put(batch)

	return &fixture{
		ledger:  New(orders, batches, users, zap.NewNop()),
		orders:  orders,
		batches: batches,
		users:   users,
		buyer:   buyer,
		farmer:  farmer,
		batch:   batch,
	}
}

func (f *fixture) createOrder(t *testing.T) models.BuyerOrder {
	t.Helper()
	order, err := f.ledger.CreateOrder(context.Background(), f.buyer.ID.Hex(), models.CreateOrderReq{
		BatchID:       f.batch.ID.Hex(),
		PaymentMethod: models.MethodMomo,
	})
	assert.Nil(t, err)
	return order
}

func (f *fixture) fundedOrder(t *testing.T) models.BuyerOrder {
	t.Helper()
	order := f.createOrder(t)
	funded, err := f.ledger.ConfirmPayment(context.Background(), order.ID.Hex(), ProviderRefs{
		CheckoutSessionID: "cs_test_1",
		PaymentIntentID:   "pi_test_1",
	})
	assert.Nil(t, err)
	return funded
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	assert.Regexp(t, `^AG-\d{6}$`, order.OrderNumber)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.Equal(t, models.EscrowAwaitingPayment, order.EscrowStatus)
	assert.Equal(t, models.StageAwaitingPayment, order.TrackingStage)
	assert.Equal(t, models.OrderActive, order.Status)

	assert.Equal(t, int64(150000), order.DepositAmount)
	assert.Equal(t, int64(100000), order.BalanceDue)
	assert.Equal(t, int64(5000), order.ServiceFee)
	assert.Equal(t, int64(155000), order.AmountDueToday)
	assert.Equal(t, "buyer_order_"+order.OrderNumber, order.TransferGroup)
	assert.Equal(t, "Red Beans Batch", order.Title)
	assert.Equal(t, "beans", order.CropKey)
}

func TestCreateOrderRejectsCommittedBatch(t *testing.T) {
	f := newFixture(t)
	f.createOrder(t)

	_, err := f.ledger.CreateOrder(context.Background(), f.buyer.ID.Hex(), models.CreateOrderReq{
		BatchID: f.batch.ID.Hex(),
	})
	assert.Equal(t, models.CodeValidation, models.ErrCode(err))
}

func TestCreateOrderRejectsInactiveBatch(t *testing.T) {
	f := newFixture(t)
	f.batch.Status = models.BatchSold
	f.batches.Put(f.batch)

	_, err := f.ledger.CreateOrder(context.Background(), f.buyer.ID.Hex(), models.CreateOrderReq{
		BatchID: f.batch.ID.Hex(),
	})
	assert.Equal(t, models.CodeValidation, models.ErrCode(err))
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)

	assert.Equal(t, models.PaymentDepositPaid, order.PaymentStatus)
	assert.Equal(t, models.EscrowFunded, order.EscrowStatus)
	assert.Equal(t, models.StagePaymentConfirmed, order.TrackingStage)
	assert.NotNil(t, order.PaymentConfirmedAt)
	assert.NotNil(t, order.EscrowFundedAt)
	assert.Equal(t, "cs_test_1", order.CheckoutSessionID)
}

func TestConfirmPaymentIsIdempotentConflict(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)

	_, err := f.ledger.ConfirmPayment(context.Background(), order.ID.Hex(), ProviderRefs{})
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
}

func TestConfirmPaymentRejectsCancelledOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)
	_, err := f.ledger.Cancel(context.Background(), order.ID.Hex(), "buyer request")
	assert.Nil(t, err)

	_, err = f.ledger.ConfirmPayment(context.Background(), order.ID.Hex(), ProviderRefs{})
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
}

func TestAdvanceTrackingStrictSequence(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)
	ctx := context.Background()

	// skipping a stage is rejected
	_, err := f.ledger.AdvanceTracking(ctx, order.ID.Hex(), models.StageHubInspection)
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))

	// regressing is rejected
	_, err = f.ledger.AdvanceTracking(ctx, order.ID.Hex(), models.StageAwaitingPayment)
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))

	next, err := f.ledger.AdvanceTracking(ctx, order.ID.Hex(), models.StageFarmerDispatching)
	assert.Nil(t, err)
	assert.Equal(t, models.StageFarmerDispatching, next.TrackingStage)
}

func TestDeliveredRequiresReleasedEscrow(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)
	ctx := context.Background()

	_, err := f.ledger.AdvanceTracking(ctx, order.ID.Hex(), models.StageFarmerDispatching)
	assert.Nil(t, err)
	_, err = f.ledger.AdvanceTracking(ctx, order.ID.Hex(), models.StageHubInspection)
	assert.Nil(t, err)

	// released_for_delivery without an actual escrow release
	_, err = f.ledger.AdvanceTracking(ctx, order.ID.Hex(), models.StageReleasedForDelivery)
	assert.Nil(t, err)
	_, err = f.ledger.AdvanceTracking(ctx, order.ID.Hex(), models.StageDelivered)
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))

	_, claimed, err := f.ledger.ReleaseEscrow(ctx, order.ID.Hex(), models.EscrowFunded)
	assert.Nil(t, err)
	assert.True(t, claimed)

	done, err := f.ledger.AdvanceTracking(ctx, order.ID.Hex(), models.StageDelivered)
	assert.Nil(t, err)
	assert.Equal(t, models.StageDelivered, done.TrackingStage)
	assert.Equal(t, models.OrderCompleted, done.Status)
	assert.NotNil(t, done.DeliveryConfirmedAt)
	assert.NotNil(t, done.CompletedAt)
}

func TestReleaseEscrowClaim(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)
	ctx := context.Background()

	released, claimed, err := f.ledger.ReleaseEscrow(ctx, order.ID.Hex(), models.EscrowFunded)
	assert.Nil(t, err)
	assert.True(t, claimed)
	assert.Equal(t, models.EscrowReleased, released.EscrowStatus)
	assert.Equal(t, models.StageReleasedForDelivery, released.TrackingStage)
	assert.NotNil(t, released.EscrowReleasedAt)

	// second claim loses the swap without erroring
	_, claimed, err = f.ledger.ReleaseEscrow(ctx, order.ID.Hex(), models.EscrowFunded)
	assert.Nil(t, err)
	assert.False(t, claimed)
}

func TestReleaseEscrowConcurrentClaims(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := f.ledger.ReleaseEscrow(context.Background(), order.ID.Hex(), models.EscrowFunded)
			assert.Nil(t, err)
			if claimed {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	assert.Equal(t, 1, won)

	final, err := f.ledger.Get(context.Background(), order.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowReleased, final.EscrowStatus)
}

func TestReleaseEscrowRejectsInvalidExpected(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)

	_, _, err := f.ledger.ReleaseEscrow(context.Background(), order.ID.Hex(), models.EscrowRefunded)
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
}

func TestMarkReleaseFailedAndRetry(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)
	ctx := context.Background()

	// claim the slot, then fail the transfer
	_, claimed, err := f.ledger.ReleaseEscrow(ctx, order.ID.Hex(), models.EscrowFunded)
	assert.Nil(t, err)
	assert.True(t, claimed)

	failed, err := f.ledger.MarkReleaseFailed(ctx, order.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowReleaseFailed, failed.EscrowStatus)
	assert.Nil(t, failed.EscrowReleasedAt)
	assert.Equal(t, models.PaymentDepositPaid, failed.PaymentStatus)

	retried, err := f.ledger.RetryRelease(ctx, order.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowFunded, retried.EscrowStatus)

	// a second retry has nothing to re-enter
	_, err = f.ledger.RetryRelease(ctx, order.ID.Hex())
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
}

func TestMarkReleaseFailedKeepsCompletedTransfer(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)
	ctx := context.Background()

	_, claimed, err := f.ledger.ReleaseEscrow(ctx, order.ID.Hex(), models.EscrowFunded)
	assert.Nil(t, err)
	assert.True(t, claimed)
	assert.Nil(t, f.ledger.AttachTransfer(ctx, order.ID.Hex(), "tr_abc123"))

	_, err = f.ledger.MarkReleaseFailed(ctx, order.ID.Hex())
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)
	ctx := context.Background()

	cancelled, err := f.ledger.Cancel(ctx, order.ID.Hex(), "quality concerns")
	assert.Nil(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
	assert.Equal(t, models.EscrowRefunded, cancelled.EscrowStatus)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)
	assert.Equal(t, models.StageCancelled, cancelled.TrackingStage)
	assert.NotNil(t, cancelled.CancelledAt)

	// terminal orders stay terminal
	_, err = f.ledger.Cancel(ctx, order.ID.Hex(), "again")
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
}

func TestCancelRejectedAfterRelease(t *testing.T) {
	f := newFixture(t)
	order := f.fundedOrder(t)
	ctx := context.Background()

	_, claimed, err := f.ledger.ReleaseEscrow(ctx, order.ID.Hex(), models.EscrowFunded)
	assert.Nil(t, err)
	assert.True(t, claimed)

	_, err = f.ledger.Cancel(ctx, order.ID.Hex(), "too late")
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
}

func TestMarkPaymentFailedKeepsEscrowOpen(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t)

	failed, err := f.ledger.MarkPaymentFailed(context.Background(), order.ID.Hex(), ProviderRefs{
		CheckoutSessionID: "cs_expired",
		PayStatus:         "expired",
	})
	assert.Nil(t, err)
	assert.Equal(t, models.PaymentFailed, failed.PaymentStatus)
	assert.Equal(t, models.EscrowAwaitingPayment, failed.EscrowStatus)
	assert.Equal(t, models.OrderActive, failed.Status)
}

func TestEligibleForReleaseOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := f.fundedOrder(t)
	oldFunded := time.Now().UTC().Add(-2 * time.Hour)
	older.EscrowFundedAt = &oldFunded
	assert.Nil(t, f.orders.Update(ctx, older))

	// a second batch so the next order passes the committed-batch check
	batch2 := f.batch
	batch2.ID = primitive.NewObjectID()
	f.batches.Put(batch2)
	f.batch = batch2
	newer := f.fundedOrder(t)

	eligible, err := f.ledger.EligibleForRelease(ctx, 10)
	assert.Nil(t, err)
	assert.Len(t, eligible, 2)
	assert.Equal(t, older.ID, eligible[0].ID)
	assert.Equal(t, newer.ID, eligible[1].ID)
}

func TestAutoCancelStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := f.createOrder(t)
	stale.CreatedAt = time.Now().UTC().Add(-72 * time.Hour)
	assert.Nil(t, f.orders.Update(ctx, stale))

	cancelled := f.ledger.AutoCancelStale(ctx, 48*time.Hour)
	assert.Equal(t, 1, cancelled)

	got, err := f.ledger.Get(ctx, stale.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)
	assert.Equal(t, models.EscrowRefunded, got.EscrowStatus)
}
