package audit

import (
	"context"
	"sort"
	"time"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// StaleFundedAfter is how long an order may sit funded before the audit
// view flags it for attention.
const StaleFundedAfter = 7 * 24 * time.Hour

// Discrepancy flags surfaced per row
const (
	FlagReleasedWithoutPayout = "released_without_payout_record"
	FlagPayoutWithoutRelease  = "payout_without_release"
	FlagStaleFunded           = "stale_funded"
	FlagReleaseFailed         = "release_failed"
)

// OrderSource lists orders for the view
type OrderSource interface {
	ListAll(ctx context.Context) ([]models.BuyerOrder, error)
}

// AuditSource lists payout audit records for the view
type AuditSource interface {
	ListAll(ctx context.Context) ([]models.PayoutAudit, error)
	ListByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.PayoutAudit, error)
}

// Row is one order's escrow position as the finance team sees it
type Row struct {
	OrderID      string `json:"order_id"`
	OrderNumber  string `json:"order_number"`
	BuyerName    string `json:"buyer_name"`
	FarmerName   string `json:"farmer_name"`
	Commodity    string `json:"commodity"`
	LedgerStatus string `json:"ledger_status"`

	EscrowStatus  string `json:"escrow_status"`
	PaymentStatus string `json:"payment_status"`
	TrackingStage string `json:"tracking_stage"`

	TotalPrice   int64 `json:"total_price"`
	HeldAmount   int64 `json:"held_amount"`
	FarmerPayout int64 `json:"farmer_payout"`
	BalanceDue   int64 `json:"balance_due"`

	PayoutAttempts int        `json:"payout_attempts"`
	LastPayoutAt   *time.Time `json:"last_payout_at,omitempty"`
	EscrowFundedAt *time.Time `json:"escrow_funded_at,omitempty"`
	ReleasedAt     *time.Time `json:"released_at,omitempty"`

	Flags []string `json:"flags,omitempty"`
}

// Summary aggregates the ledger position across all orders
type Summary struct {
	TotalInEscrow  int64     `json:"total_in_escrow"`
	TotalReleased  int64     `json:"total_released"`
	TotalRefunded  int64     `json:"total_refunded"`
	FundedOrders   int       `json:"funded_orders"`
	ReleasedOrders int       `json:"released_orders"`
	FailedOrders   int       `json:"failed_orders"`
	FlaggedOrders  int       `json:"flagged_orders"`
	AwaitingOrders int       `json:"awaiting_orders"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Report is the full audit view payload
type Report struct {
	Summary Summary `json:"summary"`
	Rows    []Row   `json:"rows"`
}

// View is the read-only escrow reconciliation report. It derives entirely
// from orders and payout audits and never writes anything.
type View struct {
	orders OrderSource
	audits AuditSource
	log    *zap.Logger
	now    func() time.Time
}

// NewView ...
func NewView(orders OrderSource, audits AuditSource, log *zap.Logger) *View {
	return &View{
		orders: orders,
		audits: audits,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Build assembles the report, newest orders first
func (v *View) Build(ctx context.Context) (Report, error) {
	orders, err := v.orders.ListAll(ctx)
	if err != nil {
		return Report{}, err
	}
	audits, err := v.audits.ListAll(ctx)
	if err != nil {
		return Report{}, err
	}

	byOrder := make(map[primitive.ObjectID][]models.PayoutAudit)
	for _, audit := range audits {
		byOrder[audit.Order] = append(byOrder[audit.Order], audit)
	}

	now := v.now()
	report := Report{Summary: Summary{GeneratedAt: now}}
	for i := range orders {
		row := v.buildRow(&orders[i], byOrder[orders[i].ID], now)
		report.Rows = append(report.Rows, row)
		v.accumulate(&report.Summary, &orders[i], row)
	}

	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].OrderNumber > report.Rows[j].OrderNumber
	})
	return report, nil
}

func (v *View) buildRow(order *models.BuyerOrder, audits []models.PayoutAudit, now time.Time) Row {
	row := Row{
		OrderID:        order.ID.Hex(),
		OrderNumber:    order.OrderNumber,
		BuyerName:      order.BuyerName,
		FarmerName:     order.FarmerName,
		Commodity:      order.CropKey,
		LedgerStatus:   ledgerStatus(order),
		EscrowStatus:   order.EscrowStatus,
		PaymentStatus:  order.PaymentStatus,
		TrackingStage:  order.TrackingStage,
		TotalPrice:     order.TotalPrice,
		FarmerPayout:   order.PayoutAmount(),
		BalanceDue:     order.BalanceDue,
		PayoutAttempts: len(audits),
		EscrowFundedAt: order.EscrowFundedAt,
		ReleasedAt:     order.EscrowReleasedAt,
	}
	if order.EscrowStatus == models.EscrowFunded {
		row.HeldAmount = order.PayoutAmount()
	}
	for i := range audits {
		processed := audits[i].ProcessedAt
		if row.LastPayoutAt == nil || processed.After(*row.LastPayoutAt) {
			row.LastPayoutAt = &processed
		}
	}

	// only a succeeded audit settles a release; manual_required records a
	// pending offline transfer, not money moved
	settled := false
	for i := range audits {
		if audits[i].Status == models.PayoutSucceeded {
			settled = true
			break
		}
	}

	switch order.EscrowStatus {
	case models.EscrowReleased:
		if !settled {
			row.Flags = append(row.Flags, FlagReleasedWithoutPayout)
		}
	case models.EscrowFunded:
		if settled {
			row.Flags = append(row.Flags, FlagPayoutWithoutRelease)
		}
		if order.EscrowFundedAt != nil && now.Sub(*order.EscrowFundedAt) > StaleFundedAfter {
			row.Flags = append(row.Flags, FlagStaleFunded)
		}
	case models.EscrowReleaseFailed:
		row.Flags = append(row.Flags, FlagReleaseFailed)
	}
	return row
}

func (v *View) accumulate(s *Summary, order *models.BuyerOrder, row Row) {
	switch order.EscrowStatus {
	case models.EscrowFunded:
		s.FundedOrders++
		s.TotalInEscrow += order.PayoutAmount()
	case models.EscrowReleased:
		s.ReleasedOrders++
		s.TotalReleased += order.PayoutAmount()
	case models.EscrowRefunded:
		if order.PaymentStatus == models.PaymentRefunded {
			s.TotalRefunded += order.PayoutAmount()
		}
	case models.EscrowReleaseFailed:
		s.FailedOrders++
		s.TotalInEscrow += order.PayoutAmount()
	case models.EscrowAwaitingPayment:
		s.AwaitingOrders++
	}
	if len(row.Flags) > 0 {
		s.FlaggedOrders++
	}
}

// OrderTrail returns the payout attempt history for one order, oldest first
func (v *View) OrderTrail(ctx context.Context, orderID string) ([]models.PayoutAudit, error) {
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return nil, models.ValidationError("order id is not a valid id")
	}
	trail, err := v.audits.ListByOrder(ctx, oid)
	if err != nil {
		return nil, err
	}
	sort.Slice(trail, func(i, j int) bool {
		return trail[i].ProcessedAt.Before(trail[j].ProcessedAt)
	})
	return trail, nil
}

// ledgerStatus folds the escrow and payment axes into the label finance
// reads on the dashboard.
func ledgerStatus(order *models.BuyerOrder) string {
	switch order.EscrowStatus {
	case models.EscrowFunded:
		return "in_escrow"
	case models.EscrowReleased:
		return "released_to_farmer"
	case models.EscrowRefunded:
		if order.PaymentStatus == models.PaymentRefunded {
			return "refunded_to_buyer"
		}
		return "cancelled_unfunded"
	case models.EscrowReleaseFailed:
		return "release_failed"
	default:
		return "awaiting_payment"
	}
}
