package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const defaultDestination = "Kigali Central Aggregator"

// Ledger owns the BuyerOrder entity and its three state axes. Every
// transition away from funded goes through the store's conditional update;
// blind writes never touch the escrow axis.
type Ledger struct {
	orders  OrderStore
	batches BatchStore
	users   UserStore
	quote   models.QuoteOptions
	log     *zap.Logger
	now     func() time.Time
}

// New returns a ledger over the given stores
func New(orders OrderStore, batches BatchStore, users UserStore, log *zap.Logger) *Ledger {
	return &Ledger{
		orders:  orders,
		batches: batches,
		users:   users,
		quote:   models.DefaultQuoteOptions(),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ProviderRefs correlate an order with external payment-provider objects
type ProviderRefs struct {
	CheckoutSessionID string
	PaymentIntentID   string
	ChargeID          string
	PayStatus         string
}

// CreateOrder creates a new order against an active batch. The new order
// starts awaiting_payment on all three axes.
func (l *Ledger) CreateOrder(ctx context.Context, buyerID string, req models.CreateOrderReq) (models.BuyerOrder, error) {
	if req.BatchID == "" {
		return models.BuyerOrder{}, models.ValidationError("batch_id is required")
	}

	buyer, err := l.users.FindByID(ctx, buyerID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Buyer not found")
	}

	batch, err := l.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Batch not found")
	}
	if batch.Status != models.BatchActive {
		return models.BuyerOrder{}, models.ValidationError("Only active farmer batches can be ordered")
	}

	committed, err := l.orders.HasActiveOrderForBatch(ctx, batch.ID)
	if err != nil {
		return models.BuyerOrder{}, err
	}
	if committed {
		return models.BuyerOrder{}, models.ValidationError("Batch is already committed to another active order")
	}

	farmer, err := l.users.FindByID(ctx, batch.Farmer.Hex())
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Farmer not found")
	}

	quote := models.CalculateOrderQuote(batch.TotalPrice, l.quote)
	if quote.AmountDueToday <= 0 {
		return models.BuyerOrder{}, models.ValidationError("Order amount due today must be greater than zero")
	}

	number, err := l.generateOrderNumber(ctx)
	if err != nil {
		return models.BuyerOrder{}, err
	}

	now := l.now()
	eta := now.Add(48 * time.Hour)
	names := productNames(batch)

	order := models.BuyerOrder{
		ID:          primitive.NewObjectID(),
		OrderNumber: number,
		Buyer:       buyer.ID,
		Farmer:      batch.Farmer,
		Batch:       batch.ID,

		Title:       buildTitle(names),
		CropKey:     cropKey(names),
		CropNames:   names,
		Destination: destinationOf(batch),
		FarmerName:  nameOr(farmer.FullName, "Farmer"),
		BuyerName:   nameOr(buyer.FullName, "Buyer"),

		TotalWeight: batch.TotalWeight,
		TotalPrice:  batch.TotalPrice,
		PricePerKg:  pricePerKg(batch),
		Currency:    "RWF",

		DepositPercent: quote.DepositPercent,
		DepositAmount:  quote.DepositAmount,
		BalanceDue:     quote.BalanceDue,
		ServiceFee:     quote.ServiceFee,
		InsuranceFee:   quote.InsuranceFee,
		AmountDueToday: quote.AmountDueToday,

		PaymentMethod: normalizeMethod(req.PaymentMethod),
		PaymentStatus: models.PaymentPending,
		EscrowStatus:  models.EscrowAwaitingPayment,
		Status:        models.OrderActive,
		TrackingStage: models.StageAwaitingPayment,

		TransferGroup:      models.TransferGroupFor(number),
		EstimatedArrivalAt: &eta,
		TrackingUpdatedAt:  now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := l.orders.Insert(ctx, order); err != nil {
		return models.BuyerOrder{}, err
	}

	l.log.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("amount_due_today", order.AmountDueToday))

	return order, nil
}

// ConfirmPayment moves a pending order to deposit_paid/funded/
// payment_confirmed and stamps the funding timestamps. Valid only while
// payment is still pending.
func (l *Ledger) ConfirmPayment(ctx context.Context, orderID string, refs ProviderRefs) (models.BuyerOrder, error) {
	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Order not found")
	}

	if order.Status == models.OrderCancelled {
		return models.BuyerOrder{}, models.ConflictError("Order has been cancelled")
	}
	if order.PaymentStatus != models.PaymentPending {
		return models.BuyerOrder{}, models.ConflictError("Order deposit has already been paid")
	}

	now := l.now()
	order.PaymentStatus = models.PaymentDepositPaid
	order.EscrowStatus = models.EscrowFunded
	order.TrackingStage = models.StagePaymentConfirmed
	order.PaymentConfirmedAt = &now
	order.EscrowFundedAt = &now
	order.TrackingUpdatedAt = now
	order.UpdatedAt = now
	applyRefs(&order, refs)

	swapped, err := l.orders.UpdateIfEscrowStatus(ctx, order, models.EscrowAwaitingPayment)
	if err != nil {
		return models.BuyerOrder{}, err
	}
	if !swapped {
		return models.BuyerOrder{}, models.ConflictError("Order escrow is no longer awaiting payment")
	}

	l.log.Info("payment confirmed", zap.String("order_number", order.OrderNumber))
	return order, nil
}

// MarkPaymentFailed records a failed/expired checkout; escrow stays
// awaiting_payment so the buyer can retry checkout.
func (l *Ledger) MarkPaymentFailed(ctx context.Context, orderID string, refs ProviderRefs) (models.BuyerOrder, error) {
	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Order not found")
	}
	if order.PaymentStatus != models.PaymentPending {
		return models.BuyerOrder{}, models.ConflictError("Order payment is not pending")
	}

	now := l.now()
	order.PaymentStatus = models.PaymentFailed
	order.TrackingUpdatedAt = now
	order.UpdatedAt = now
	applyRefs(&order, refs)

	if err := l.orders.Update(ctx, order); err != nil {
		return models.BuyerOrder{}, err
	}
	return order, nil
}

// AdvanceTracking accepts only the next stage in the fixed sequence.
// delivered additionally requires the escrow to have been released.
func (l *Ledger) AdvanceTracking(ctx context.Context, orderID, nextStage string) (models.BuyerOrder, error) {
	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Order not found")
	}

	if order.Status == models.OrderCancelled || order.TrackingStage == models.StageCancelled {
		return models.BuyerOrder{}, models.ConflictError("Order has been cancelled")
	}

	expected := models.NextTrackingStage(order.TrackingStage)
	if expected == "" || nextStage != expected {
		return models.BuyerOrder{}, models.ConflictError(
			fmt.Sprintf("Cannot move tracking from %s to %s", order.TrackingStage, nextStage))
	}

	now := l.now()
	if nextStage == models.StageDelivered {
		if order.EscrowStatus != models.EscrowReleased {
			return models.BuyerOrder{}, models.ConflictError("Escrow must be released before delivery confirmation")
		}
		order.DeliveryConfirmedAt = &now
	}

	order.TrackingStage = nextStage
	order.TrackingUpdatedAt = now
	order.UpdatedAt = now
	l.maybeComplete(&order, now)

	if err := l.orders.Update(ctx, order); err != nil {
		return models.BuyerOrder{}, err
	}
	return order, nil
}

// ReleaseEscrow claims the funded -> released transition with a compare-and-
// swap on the expected prior status. claimed is false when the stored status
// no longer matches: someone else already released or failed the order, and
// the caller should treat it as handled rather than as an error.
func (l *Ledger) ReleaseEscrow(ctx context.Context, orderID, expected string) (models.BuyerOrder, bool, error) {
	if !models.ValidEscrowTransition(expected, models.EscrowReleased) {
		return models.BuyerOrder{}, false, models.ConflictError(
			fmt.Sprintf("Escrow cannot be released from %s", expected))
	}

	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.BuyerOrder{}, false, models.NotFoundError("Order not found")
	}

	now := l.now()
	order.EscrowStatus = models.EscrowReleased
	order.EscrowReleasedAt = &now
	if stageIndex(order.TrackingStage) < stageIndex(models.StageReleasedForDelivery) {
		order.TrackingStage = models.StageReleasedForDelivery
	}
	order.TrackingUpdatedAt = now
	order.UpdatedAt = now
	l.maybeComplete(&order, now)

	swapped, err := l.orders.UpdateIfEscrowStatus(ctx, order, expected)
	if err != nil {
		return models.BuyerOrder{}, false, err
	}
	if !swapped {
		return models.BuyerOrder{}, false, nil
	}
	return order, true, nil
}

// AttachTransfer stamps the provider transfer reference on a released order
func (l *Ledger) AttachTransfer(ctx context.Context, orderID, transferID string) error {
	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.NotFoundError("Order not found")
	}
	if order.EscrowStatus != models.EscrowReleased {
		return models.ConflictError("Order escrow is not released")
	}
	order.TransferID = transferID
	order.UpdatedAt = l.now()
	return l.orders.Update(ctx, order)
}

// MarkReleaseFailed reverts a claimed (or still funded) escrow slot to
// release_failed after a payout attempt fails. The order stays retryable
// without re-charging the buyer.
func (l *Ledger) MarkReleaseFailed(ctx context.Context, orderID string) (models.BuyerOrder, error) {
	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Order not found")
	}

	current := order.EscrowStatus
	if current != models.EscrowFunded && current != models.EscrowReleased {
		return models.BuyerOrder{}, models.ConflictError("Order escrow is not in a releasable state")
	}
	if current == models.EscrowReleased && order.TransferID != "" {
		// a transfer actually went through; never roll a paid order back
		return models.BuyerOrder{}, models.ConflictError("Order already has a completed transfer")
	}

	now := l.now()
	order.EscrowStatus = models.EscrowReleaseFailed
	order.EscrowReleasedAt = nil
	order.TrackingUpdatedAt = now
	order.UpdatedAt = now

	swapped, err := l.orders.UpdateIfEscrowStatus(ctx, order, current)
	if err != nil {
		return models.BuyerOrder{}, err
	}
	if !swapped {
		return models.BuyerOrder{}, models.ConflictError("Order escrow changed during failure handling")
	}

	l.log.Warn("escrow release failed", zap.String("order_number", order.OrderNumber))
	return order, nil
}

// RetryRelease re-enters the eligible funded state from release_failed
func (l *Ledger) RetryRelease(ctx context.Context, orderID string) (models.BuyerOrder, error) {
	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Order not found")
	}
	if order.EscrowStatus != models.EscrowReleaseFailed {
		return models.BuyerOrder{}, models.ConflictError("Order escrow is not in release_failed")
	}

	now := l.now()
	order.EscrowStatus = models.EscrowFunded
	order.TrackingUpdatedAt = now
	order.UpdatedAt = now

	swapped, err := l.orders.UpdateIfEscrowStatus(ctx, order, models.EscrowReleaseFailed)
	if err != nil {
		return models.BuyerOrder{}, err
	}
	if !swapped {
		return models.BuyerOrder{}, models.ConflictError("Order escrow changed during retry")
	}
	return order, nil
}

// Cancel terminalizes an order before release/delivery. A funded deposit is
// refunded; the paid flag follows it.
func (l *Ledger) Cancel(ctx context.Context, orderID, reason string) (models.BuyerOrder, error) {
	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Order not found")
	}
	if order.Terminal() {
		return models.BuyerOrder{}, models.ConflictError("Order can no longer be cancelled")
	}

	current := order.EscrowStatus
	now := l.now()
	order.EscrowStatus = models.EscrowRefunded
	if order.PaymentStatus == models.PaymentDepositPaid {
		order.PaymentStatus = models.PaymentRefunded
	}
	order.Status = models.OrderCancelled
	order.TrackingStage = models.StageCancelled
	order.CancelledAt = &now
	order.TrackingUpdatedAt = now
	order.UpdatedAt = now

	swapped, err := l.orders.UpdateIfEscrowStatus(ctx, order, current)
	if err != nil {
		return models.BuyerOrder{}, err
	}
	if !swapped {
		return models.BuyerOrder{}, models.ConflictError("Order state changed during cancellation")
	}

	l.log.Info("order cancelled",
		zap.String("order_number", order.OrderNumber),
		zap.String("reason", reason))
	return order, nil
}

// Get returns one order
func (l *Ledger) Get(ctx context.Context, orderID string) (models.BuyerOrder, error) {
	order, err := l.orders.FindByID(ctx, orderID)
	if err != nil {
		return models.BuyerOrder{}, models.NotFoundError("Order not found")
	}
	return order, nil
}

// EligibleForRelease selects funded, deposit-paid, active orders oldest
// funded first.
func (l *Ledger) EligibleForRelease(ctx context.Context, limit int) ([]models.BuyerOrder, error) {
	return l.orders.FindEligibleForRelease(ctx, limit)
}

// AutoCancelStale cancels orders stuck awaiting payment beyond ttl. Run from
// the background job.
func (l *Ledger) AutoCancelStale(ctx context.Context, ttl time.Duration) int {
	cutoff := l.now().Add(-ttl)
	stale, err := l.orders.ListAwaitingPaymentBefore(ctx, cutoff)
	if err != nil {
		l.log.Error("auto-cancel scan failed", zap.Error(err))
		return 0
	}

	cancelled := 0
	for _, order := range stale {
		if _, err := l.Cancel(ctx, order.ID.Hex(), "payment window expired"); err != nil {
			if !models.IsConflict(err) {
				l.log.Error("auto-cancel failed",
					zap.String("order_number", order.OrderNumber), zap.Error(err))
			}
			continue
		}
		cancelled++
	}
	return cancelled
}

func (l *Ledger) maybeComplete(order *models.BuyerOrder, now time.Time) {
	if order.EscrowStatus == models.EscrowReleased &&
		order.DeliveryConfirmedAt != nil &&
		order.Status == models.OrderActive {
		order.Status = models.OrderCompleted
		order.CompletedAt = &now
		if order.TrackingStage != models.StageDelivered {
			order.TrackingStage = models.StageDelivered
		}
	}
}

func (l *Ledger) generateOrderNumber(ctx context.Context) (string, error) {
	for i := 0; i < 5; i++ {
		candidate := fmt.Sprintf("AG-%06d", 100000+rand.Intn(900000))
		exists, err := l.orders.NumberExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return fmt.Sprintf("AG-%d", l.now().UnixNano()%1000000), nil
}

func applyRefs(order *models.BuyerOrder, refs ProviderRefs) {
	if refs.CheckoutSessionID != "" {
		order.CheckoutSessionID = refs.CheckoutSessionID
	}
	if refs.PaymentIntentID != "" {
		order.PaymentIntentID = refs.PaymentIntentID
	}
	if refs.ChargeID != "" {
		order.ChargeID = refs.ChargeID
	}
	if refs.PayStatus != "" {
		order.ProviderPayStatus = refs.PayStatus
	}
}

func stageIndex(stage string) int {
	for i, s := range models.TrackingSequence {
		if s == stage {
			return i
		}
	}
	return -1
}

func normalizeMethod(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case models.MethodAirtel:
		return models.MethodAirtel
	case models.MethodBank:
		return models.MethodBank
	case models.MethodCard:
		return models.MethodCard
	case models.MethodMomo, "":
		return models.MethodMomo
	default:
		return models.MethodMomo
	}
}

func productNames(batch models.Batch) []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range batch.Products {
		name := strings.TrimSpace(p.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func buildTitle(names []string) string {
	switch len(names) {
	case 0:
		return "Farmer Produce Batch"
	case 1:
		return names[0] + " Batch"
	case 2:
		return names[0] + " + " + names[1]
	default:
		return fmt.Sprintf("%s + %d more crops", names[0], len(names)-1)
	}
}

func cropKey(names []string) string {
	if len(names) != 1 {
		return "mixed"
	}
	key := strings.ToLower(names[0])
	switch {
	case strings.Contains(key, "bean"):
		return "beans"
	case strings.Contains(key, "maize"), strings.Contains(key, "corn"):
		return "maize"
	case strings.Contains(key, "coffee"):
		return "coffee"
	case strings.Contains(key, "potato"):
		return "potatoes"
	default:
		return strings.ReplaceAll(key, " ", "_")
	}
}

func destinationOf(batch models.Batch) string {
	if batch.Destination != "" {
		return batch.Destination
	}
	return defaultDestination
}

func pricePerKg(batch models.Batch) int64 {
	if batch.TotalWeight <= 0 {
		return 0
	}
	return int64(float64(batch.TotalPrice)/batch.TotalWeight + 0.5)
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
