package audit

import (
	"context"
	"testing"
	"time"

	"agrilink-bend/dao"
	"agrilink-bend/models"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type viewFixture struct {
	orders *dao.MemoryOrderStore
	audits *dao.MemoryPayoutAuditStore
	view   *View
}

func newViewFixture() *viewFixture {
	orders := dao.NewMemoryOrderStore()
	audits := dao.NewMemoryPayoutAuditStore()
	return &viewFixture{
		orders: orders,
		audits: audits,
		view:   NewView(orders, audits, zap.NewNop()),
	}
}

func (f *viewFixture) seedOrder(t *testing.T, number, escrowStatus, paymentStatus string, fundedAgo time.Duration) models.BuyerOrder {
	t.Helper()
	now := time.Now().UTC()
	order := models.BuyerOrder{
		ID:            primitive.NewObjectID(),
		OrderNumber:   number,
		BuyerName:     "Chantal U.",
		FarmerName:    "Jean Bosco",
		CropKey:       "beans",
		TotalPrice:    100000,
		DepositAmount: 60000,
		BalanceDue:    40000,
		Currency:      "RWF",
		PaymentStatus: paymentStatus,
		EscrowStatus:  escrowStatus,
		Status:        models.OrderActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if fundedAgo > 0 {
		funded := now.Add(-fundedAgo)
		order.EscrowFundedAt = &funded
	}
	assert.Nil(t, f.orders.Insert(context.Background(), order))
	return order
}

func (f *viewFixture) seedAudit(t *testing.T, order models.BuyerOrder, status string) {
	t.Helper()
	assert.Nil(t, f.audits.Insert(context.Background(), models.PayoutAudit{
		ID:          primitive.NewObjectID(),
		Order:       order.ID,
		Provider:    models.ProviderMobileMoney,
		Status:      status,
		Amount:      order.DepositAmount,
		Currency:    order.Currency,
		ProcessedAt: time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}))
}

func TestBuildLedgerStatuses(t *testing.T) {
	f := newViewFixture()
	ctx := context.Background()

	funded := f.seedOrder(t, "AG-100001", models.EscrowFunded, models.PaymentDepositPaid, time.Hour)
	released := f.seedOrder(t, "AG-100002", models.EscrowReleased, models.PaymentDepositPaid, 2*time.Hour)
	f.seedAudit(t, released, models.PayoutSucceeded)
	refunded := f.seedOrder(t, "AG-100003", models.EscrowRefunded, models.PaymentRefunded, 0)
	awaiting := f.seedOrder(t, "AG-100004", models.EscrowAwaitingPayment, models.PaymentPending, 0)

	report, err := f.view.Build(ctx)
	assert.Nil(t, err)
	assert.Len(t, report.Rows, 4)

	byNumber := make(map[string]Row)
	for _, row := range report.Rows {
		byNumber[row.OrderNumber] = row
	}
	assert.Equal(t, "in_escrow", byNumber[funded.OrderNumber].LedgerStatus)
	assert.Equal(t, int64(60000), byNumber[funded.OrderNumber].HeldAmount)
	assert.Equal(t, "released_to_farmer", byNumber[released.OrderNumber].LedgerStatus)
	assert.Equal(t, int64(0), byNumber[released.OrderNumber].HeldAmount)
	assert.Equal(t, "refunded_to_buyer", byNumber[refunded.OrderNumber].LedgerStatus)
	assert.Equal(t, "awaiting_payment", byNumber[awaiting.OrderNumber].LedgerStatus)

	assert.Equal(t, int64(60000), report.Summary.TotalInEscrow)
	assert.Equal(t, int64(60000), report.Summary.TotalReleased)
	assert.Equal(t, 1, report.Summary.FundedOrders)
	assert.Equal(t, 1, report.Summary.ReleasedOrders)
	assert.Equal(t, 1, report.Summary.AwaitingOrders)
}

func TestDiscrepancyFlags(t *testing.T) {
	f := newViewFixture()
	ctx := context.Background()

	// released but no succeeded audit on file
	orphanRelease := f.seedOrder(t, "AG-200001", models.EscrowReleased, models.PaymentDepositPaid, time.Hour)

	// funded but a succeeded audit exists
	orphanPayout := f.seedOrder(t, "AG-200002", models.EscrowFunded, models.PaymentDepositPaid, time.Hour)
	f.seedAudit(t, orphanPayout, models.PayoutSucceeded)

	// funded past the staleness window
	stale := f.seedOrder(t, "AG-200003", models.EscrowFunded, models.PaymentDepositPaid, StaleFundedAfter+time.Hour)

	// failed release, failed audit
	failed := f.seedOrder(t, "AG-200004", models.EscrowReleaseFailed, models.PaymentDepositPaid, time.Hour)
	f.seedAudit(t, failed, models.PayoutFailed)

	// clean released order
	clean := f.seedOrder(t, "AG-200005", models.EscrowReleased, models.PaymentDepositPaid, time.Hour)
	f.seedAudit(t, clean, models.PayoutSucceeded)

	// funded bank order awaiting offline settlement; a manual_required audit
	// is not money moved, so neither flag fires
	manual := f.seedOrder(t, "AG-200006", models.EscrowFunded, models.PaymentDepositPaid, time.Hour)
	f.seedAudit(t, manual, models.PayoutManualRequired)

	// a released order with only a manual_required audit is unreconciled
	manualRelease := f.seedOrder(t, "AG-200007", models.EscrowReleased, models.PaymentDepositPaid, time.Hour)
	f.seedAudit(t, manualRelease, models.PayoutManualRequired)

	report, err := f.view.Build(ctx)
	assert.Nil(t, err)

	byNumber := make(map[string]Row)
	for _, row := range report.Rows {
		byNumber[row.OrderNumber] = row
	}
	assert.Equal(t, []string{FlagReleasedWithoutPayout}, byNumber[orphanRelease.OrderNumber].Flags)
	assert.Equal(t, []string{FlagPayoutWithoutRelease}, byNumber[orphanPayout.OrderNumber].Flags)
	assert.Equal(t, []string{FlagStaleFunded}, byNumber[stale.OrderNumber].Flags)
	assert.Equal(t, []string{FlagReleaseFailed}, byNumber[failed.OrderNumber].Flags)
	assert.Empty(t, byNumber[clean.OrderNumber].Flags)
	assert.Empty(t, byNumber[manual.OrderNumber].Flags)
	assert.Equal(t, []string{FlagReleasedWithoutPayout}, byNumber[manualRelease.OrderNumber].Flags)

	assert.Equal(t, 5, report.Summary.FlaggedOrders)
	// release_failed and manually-pending funds are still held
	assert.Equal(t, int64(4*60000), report.Summary.TotalInEscrow)
}

func TestOrderTrail(t *testing.T) {
	f := newViewFixture()
	ctx := context.Background()

	order := f.seedOrder(t, "AG-300001", models.EscrowReleaseFailed, models.PaymentDepositPaid, time.Hour)
	f.seedAudit(t, order, models.PayoutFailed)
	f.seedAudit(t, order, models.PayoutSucceeded)

	trail, err := f.view.OrderTrail(ctx, order.ID.Hex())
	assert.Nil(t, err)
	assert.Len(t, trail, 2)

	_, err = f.view.OrderTrail(ctx, "not-an-id")
	assert.Equal(t, models.CodeValidation, models.ErrCode(err))
}
