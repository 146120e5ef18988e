package payout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"agrilink-bend/dao"
	"agrilink-bend/dispute"
	"agrilink-bend/ledger"
	"agrilink-bend/models"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// failingProvider rejects disbursements for order numbers in its deny set
type failingProvider struct {
	mu   sync.Mutex
	deny map[string]bool
}

func (p *failingProvider) Name() string { return models.ProviderMobileMoney }

func (p *failingProvider) Disburse(ctx context.Context, d Disbursement) (Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deny[d.Order.OrderNumber] {
		return Receipt{}, models.PayoutError("provider rejected the transfer")
	}
	return Receipt{
		ExternalReference: "ext_" + d.Reference,
		ProviderCode:      "OK",
		ProviderLabel:     "test rail",
		ExecutionMode:     models.ExecutionStub,
	}, nil
}

// recordingNotifier captures payout failure notifications for assertions
type recordingNotifier struct {
	failures chan string
}

func (r *recordingNotifier) SendPayoutFailedNotification(order models.BuyerOrder, reason string) {
	r.failures <- order.OrderNumber
}

type payoutFixture struct {
	orders   *dao.MemoryOrderStore
	audits   *dao.MemoryPayoutAuditStore
	users    *dao.MemoryUserStore
	batches  *dao.MemoryBatchStore
	ledger   *ledger.Ledger
	workroom *dispute.Workroom
	executor *Executor
	orch     *Orchestrator
	provider *failingProvider
	notifier *recordingNotifier
	farmer   models.User
	buyer    models.User
	admin    primitive.ObjectID
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()
	orders := dao.NewMemoryOrderStore()
	audits := dao.NewMemoryPayoutAuditStore()
	users := dao.NewMemoryUserStore()
	batches := dao.NewMemoryBatchStore()
	disputes := dao.NewMemoryDisputeStore()

	farmer := models.User{
		ID:          primitive.NewObjectID(),
		FullName:    "Jean Bosco",
		Role:        models.RoleUserFarmer,
		PhoneNumber: "+250780000001",
	}
	buyer := models.User{ID: primitive.NewObjectID(), FullName: "Chantal U.", Role: models.RoleUserBuyer}
	users.Put(farmer)
	users.Put(buyer)

	log := zap.NewNop()
	l := ledger.New(orders, batches, users, log)
	w := dispute.New(disputes, log)
	provider := &failingProvider{deny: make(map[string]bool)}
	e := NewExecutor(audits, users, log)
	e.Register(provider)
	notifier := &recordingNotifier{failures: make(chan string, 16)}

	return &payoutFixture{
		orders:   orders,
		audits:   audits,
		users:    users,
		batches:  batches,
		ledger:   l,
		workroom: w,
		executor: e,
		orch:     NewOrchestrator(l, w, e, notifier, log),
		provider: provider,
		notifier: notifier,
		farmer:   farmer,
		buyer:    buyer,
		admin:    primitive.NewObjectID(),
	}
}

// fundedOrder seeds one funded momo order straight into the store
func (f *payoutFixture) fundedOrder(t *testing.T, n int, fundedAgo time.Duration) models.BuyerOrder {
	t.Helper()
	now := time.Now().UTC()
	funded := now.Add(-fundedAgo)
	order := models.BuyerOrder{
		ID:             primitive.NewObjectID(),
		OrderNumber:    fmt.Sprintf("AG-10%04d", n),
		Buyer:          f.buyer.ID,
		Farmer:         f.farmer.ID,
		Batch:          primitive.NewObjectID(),
		TotalPrice:     100000,
		DepositAmount:  60000,
		AmountDueToday: 65000,
		Currency:       "RWF",
		PaymentMethod:  models.MethodMomo,
		PaymentStatus:  models.PaymentDepositPaid,
		EscrowStatus:   models.EscrowFunded,
		Status:         models.OrderActive,
		TrackingStage:  models.StagePaymentConfirmed,
		EscrowFundedAt: &funded,
		CreatedAt:      funded,
		UpdatedAt:      funded,
	}
	assert.Nil(t, f.orders.Insert(context.Background(), order))
	return order
}

func TestExecutorWritesOneAuditPerAttempt(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()
	order := f.fundedOrder(t, 1, time.Hour)

	result := f.executor.Execute(ctx, order, f.admin)
	assert.True(t, result.OK)
	assert.Equal(t, models.ProviderMobileMoney, result.Provider)
	assert.Equal(t, int64(60000), result.Amount)
	assert.Equal(t, "ext_payout_"+order.ID.Hex()+"_1", result.ExternalReference)

	audits, err := f.audits.ListByOrder(ctx, order.ID)
	assert.Nil(t, err)
	assert.Len(t, audits, 1)
	assert.Equal(t, models.PayoutSucceeded, audits[0].Status)

	// the next attempt gets a new attempt-numbered reference
	result = f.executor.Execute(ctx, order, f.admin)
	assert.True(t, result.OK)
	assert.Equal(t, "ext_payout_"+order.ID.Hex()+"_2", result.ExternalReference)

	audits, err = f.audits.ListByOrder(ctx, order.ID)
	assert.Nil(t, err)
	assert.Len(t, audits, 2)
}

func TestExecutorFailureIsContained(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()
	order := f.fundedOrder(t, 2, time.Hour)
	f.provider.deny[order.OrderNumber] = true

	result := f.executor.Execute(ctx, order, f.admin)
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "provider rejected")

	audits, err := f.audits.ListByOrder(ctx, order.ID)
	assert.Nil(t, err)
	assert.Len(t, audits, 1)
	assert.Equal(t, models.PayoutFailed, audits[0].Status)
	assert.Equal(t, models.CodePayoutFailed, audits[0].ErrorCode)
}

func TestBankOrdersStayFundedWithManualAudit(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()
	order := f.fundedOrder(t, 3, time.Hour)
	order.PaymentMethod = models.MethodBank
	assert.Nil(t, f.orders.Update(ctx, order))

	report, err := f.orch.Run(ctx, f.admin, 0)
	assert.Nil(t, err)
	assert.Equal(t, 0, report.ReleasedCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Equal(t, 0, report.FailedCount)
	assert.Equal(t, int64(0), report.ReleasedTotalAmount)

	// no money moved: escrow untouched, no transfer reference
	got, err := f.ledger.Get(ctx, order.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowFunded, got.EscrowStatus)
	assert.Empty(t, got.TransferID)

	audits, err := f.audits.ListByOrder(ctx, order.ID)
	assert.Nil(t, err)
	assert.Len(t, audits, 1)
	assert.Equal(t, models.PayoutManualRequired, audits[0].Status)
	assert.Equal(t, models.ProviderBank, audits[0].Provider)
	assert.Equal(t, "MANUAL_PAYOUT_REQUIRED", audits[0].ErrorCode)
}

func TestReleaseOneBankOrderIsConflict(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()
	order := f.fundedOrder(t, 4, time.Hour)
	order.PaymentMethod = models.MethodBank
	assert.Nil(t, f.orders.Update(ctx, order))

	item, err := f.orch.ReleaseOne(ctx, order.ID.Hex(), f.admin)
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
	assert.True(t, item.Skipped)

	got, err := f.ledger.Get(ctx, order.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowFunded, got.EscrowStatus)
}

func TestCardRailStubMode(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	farmer := f.farmer
	farmer.PaypalPayoutEmail = "jean.bosco@example.com"
	f.users.Put(farmer)

	order := f.fundedOrder(t, 5, time.Hour)
	order.PaymentMethod = models.MethodCard
	assert.Nil(t, f.orders.Update(ctx, order))

	// PAYOUT_MODE is unset, so the card rail must stub instead of calling out
	result := f.executor.Execute(ctx, order, f.admin)
	assert.True(t, result.OK)
	assert.Equal(t, models.ProviderPaypal, result.Provider)
	assert.Equal(t, models.ExecutionStub, result.ExecutionMode)
	assert.Equal(t, "stub_payout_"+order.ID.Hex()+"_1", result.ExternalReference)

	audits, err := f.audits.ListByOrder(ctx, order.ID)
	assert.Nil(t, err)
	assert.Len(t, audits, 1)
	assert.Equal(t, models.PayoutSucceeded, audits[0].Status)
}

func TestBatchRunPartialFailure(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	var orders []models.BuyerOrder
	for i := 0; i < 5; i++ {
		orders = append(orders, f.fundedOrder(t, 10+i, time.Duration(10-i)*time.Hour))
	}
	f.provider.deny[orders[2].OrderNumber] = true

	report, err := f.orch.Run(ctx, f.admin, 0)
	assert.Nil(t, err)
	assert.Equal(t, 4, report.ReleasedCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, 0, report.SkippedCount)
	assert.Equal(t, int64(4*60000), report.ReleasedTotalAmount)
	assert.Len(t, report.Items, 5)
	assert.NotEmpty(t, report.RunID)

	// released orders carry the provider reference
	for _, item := range report.Items {
		if item.OrderNumber == orders[2].OrderNumber {
			assert.False(t, item.OK)
			continue
		}
		assert.True(t, item.OK)
		got, err := f.ledger.Get(ctx, item.OrderID)
		assert.Nil(t, err)
		assert.Equal(t, models.EscrowReleased, got.EscrowStatus)
		assert.Equal(t, item.ExternalReference, got.TransferID)
	}

	// the failed order is rolled back and has a payout failure dispute
	failed, err := f.ledger.Get(ctx, orders[2].ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowReleaseFailed, failed.EscrowStatus)
	assert.Equal(t, models.PaymentDepositPaid, failed.PaymentStatus)

	blocking, err := f.workroom.HasBlocking(ctx, orders[2].ID)
	assert.Nil(t, err)
	assert.True(t, blocking)

	// the finance desk is alerted about the failed release
	select {
	case number := <-f.notifier.failures:
		assert.Equal(t, orders[2].OrderNumber, number)
	case <-time.After(2 * time.Second):
		t.Fatal("no payout failure notification sent")
	}
}

func TestBatchRunSkipsDisputeBlockedOrders(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	blocked := f.fundedOrder(t, 20, 2*time.Hour)
	clean := f.fundedOrder(t, 21, time.Hour)

	req := models.CreateDisputeReq{
		OrderID:     blocked.ID.Hex(),
		Issue:       "Grade mismatch at hub",
		AnomalyType: "quality_anomaly",
		Severity:    models.SeverityHigh,
	}
	_, err := f.workroom.Open(ctx, f.admin, models.RoleAdmin, req)
	assert.Nil(t, err)

	report, err := f.orch.Run(ctx, f.admin, 0)
	assert.Nil(t, err)
	assert.Equal(t, 1, report.ReleasedCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Equal(t, 0, report.FailedCount)

	// skipped means untouched, still funded and eligible next run
	got, err := f.ledger.Get(ctx, blocked.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowFunded, got.EscrowStatus)

	released, err := f.ledger.Get(ctx, clean.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowReleased, released.EscrowStatus)
}

func TestConcurrentRunsNeverDoublePay(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		f.fundedOrder(t, 30+i, time.Duration(6-i)*time.Hour)
	}

	var wg sync.WaitGroup
	reports := make([]models.BatchReleaseReport, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report, err := f.orch.Run(ctx, f.admin, 0)
			assert.Nil(t, err)
			reports[i] = report
		}(i)
	}
	wg.Wait()

	// six orders, six releases total across both runs
	assert.Equal(t, 6, reports[0].ReleasedCount+reports[1].ReleasedCount)

	audits, err := f.audits.ListAll(ctx)
	assert.Nil(t, err)
	succeeded := 0
	for _, audit := range audits {
		if audit.Status == models.PayoutSucceeded {
			succeeded++
		}
	}
	assert.Equal(t, 6, succeeded)
}

func TestReleaseOne(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()
	order := f.fundedOrder(t, 40, time.Hour)

	item, err := f.orch.ReleaseOne(ctx, order.ID.Hex(), f.admin)
	assert.Nil(t, err)
	assert.True(t, item.OK)

	// released orders cannot be released twice
	_, err = f.orch.ReleaseOne(ctx, order.ID.Hex(), f.admin)
	assert.Equal(t, models.CodeConflict, models.ErrCode(err))
}

func TestReleaseOneFailureRollsBack(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()
	order := f.fundedOrder(t, 41, time.Hour)
	f.provider.deny[order.OrderNumber] = true

	item, err := f.orch.ReleaseOne(ctx, order.ID.Hex(), f.admin)
	assert.Equal(t, models.CodePayoutFailed, models.ErrCode(err))
	assert.False(t, item.OK)

	got, err := f.ledger.Get(ctx, order.ID.Hex())
	assert.Nil(t, err)
	assert.Equal(t, models.EscrowReleaseFailed, got.EscrowStatus)
}

func TestProviderForMethod(t *testing.T) {
	assert.Equal(t, models.ProviderPaypal, providerForMethod(models.MethodCard))
	assert.Equal(t, models.ProviderMobileMoney, providerForMethod(models.MethodMomo))
	assert.Equal(t, models.ProviderMobileMoney, providerForMethod(models.MethodAirtel))
	assert.Equal(t, models.ProviderBank, providerForMethod(models.MethodBank))
	assert.Equal(t, models.ProviderUnknown, providerForMethod("cheque"))
}
