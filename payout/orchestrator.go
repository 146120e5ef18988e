package payout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agrilink-bend/dispute"
	"agrilink-bend/ledger"
	"agrilink-bend/metrics"
	"agrilink-bend/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultWorkers      = 4
	defaultDrainTimeout = 2 * time.Minute
)

// Notifier is the orchestrator's hook into the notification pipeline
type Notifier interface {
	SendPayoutFailedNotification(order models.BuyerOrder, reason string)
}

// Orchestrator runs batch escrow releases over a bounded worker pool. Each
// eligible order is claimed with the escrow compare-and-swap before any
// money moves, so concurrent runs and single releases cannot double-pay.
type Orchestrator struct {
	ledger       *ledger.Ledger
	workroom     *dispute.Workroom
	executor     *Executor
	notifier     Notifier
	workers      int
	drainTimeout time.Duration
	log          *zap.Logger
	now          func() time.Time
}

// NewOrchestrator ...
func NewOrchestrator(l *ledger.Ledger, w *dispute.Workroom, e *Executor, n Notifier, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:       l,
		workroom:     w,
		executor:     e,
		notifier:     n,
		workers:      defaultWorkers,
		drainTimeout: defaultDrainTimeout,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run releases every eligible funded order it can, oldest funded first.
// Partial failure is normal: failed and skipped orders are reported per
// item, never aborting the run.
func (o *Orchestrator) Run(ctx context.Context, initiatedBy primitive.ObjectID, limit int) (models.BatchReleaseReport, error) {
	runID := uuid.NewString()
	metrics.BatchRuns.Inc()

	orders, err := o.ledger.EligibleForRelease(ctx, limit)
	if err != nil {
		return models.BatchReleaseReport{}, err
	}

	o.log.Info("batch payout run started",
		zap.String("run_id", runID),
		zap.Int("eligible", len(orders)))

	runCtx, cancel := context.WithTimeout(ctx, o.drainTimeout)
	defer cancel()

	jobs := make(chan models.BuyerOrder)
	results := make(chan models.BatchItemResult, len(orders))

	workers := o.workers
	if workers > len(orders) {
		workers = len(orders)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for order := range jobs {
				results <- o.processOne(runCtx, order, initiatedBy)
			}
		}()
	}

	// feed until done or the drain window closes; undelivered orders stay
	// funded and are picked up by the next run
	fed := 0
feed:
	for _, order := range orders {
		select {
		case jobs <- order:
			fed++
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	report := models.BatchReleaseReport{
		RunID:       runID,
		ProcessedAt: o.now(),
	}
	for item := range results {
		report.Items = append(report.Items, item)
		switch {
		case item.OK:
			report.ReleasedCount++
			report.ReleasedTotalAmount += item.Amount
		case item.Skipped:
			report.SkippedCount++
		default:
			report.FailedCount++
		}
	}
	report.Message = fmt.Sprintf("Released %d of %d eligible orders (%d failed, %d skipped)",
		report.ReleasedCount, len(orders), report.FailedCount, report.SkippedCount)

	o.log.Info("batch payout run finished",
		zap.String("run_id", runID),
		zap.Int("released", report.ReleasedCount),
		zap.Int("failed", report.FailedCount),
		zap.Int("skipped", report.SkippedCount),
		zap.Int64("released_total", report.ReleasedTotalAmount))
	return report, nil
}

// ReleaseOne runs the single-order release path used by the admin endpoint.
// It shares the claim-execute-revert sequence with the batch run.
func (o *Orchestrator) ReleaseOne(ctx context.Context, orderID string, initiatedBy primitive.ObjectID) (models.BatchItemResult, error) {
	order, err := o.ledger.Get(ctx, orderID)
	if err != nil {
		return models.BatchItemResult{}, err
	}
	if order.EscrowStatus != models.EscrowFunded {
		return models.BatchItemResult{}, models.ConflictError(
			fmt.Sprintf("Escrow is %s, only funded orders can be released", order.EscrowStatus))
	}

	item := o.processOne(ctx, order, initiatedBy)
	if item.Skipped {
		return item, models.ConflictError(item.Error)
	}
	if !item.OK {
		return item, models.PayoutError(item.Error)
	}
	return item, nil
}

func (o *Orchestrator) processOne(ctx context.Context, order models.BuyerOrder, initiatedBy primitive.ObjectID) models.BatchItemResult {
	item := models.BatchItemResult{
		OrderID:     order.ID.Hex(),
		OrderNumber: order.OrderNumber,
		Amount:      order.PayoutAmount(),
	}

	blocked, err := o.workroom.HasBlocking(ctx, order.ID)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	if blocked {
		item.Skipped = true
		item.Error = "release blocked by open dispute"
		return item
	}

	// manual rails are recorded but never claimed; escrow stays funded until
	// the operations desk settles the transfer offline
	if manualRail(order.PaymentMethod) {
		result := o.executor.RecordManualRequired(ctx, order, initiatedBy)
		item.Provider = result.Provider
		item.Method = result.Method
		item.ExecutionMode = result.ExecutionMode
		item.AuditID = result.AuditID
		item.Skipped = true
		item.Error = result.Error
		return item
	}

	released, claimed, err := o.ledger.ReleaseEscrow(ctx, order.ID.Hex(), models.EscrowFunded)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	if !claimed {
		// another run already moved this order on
		item.Skipped = true
		item.Error = "escrow is no longer funded"
		return item
	}

	result := o.executor.Execute(ctx, released, initiatedBy)
	item.Provider = result.Provider
	item.Method = result.Method
	item.ExternalReference = result.ExternalReference
	item.ExecutionMode = result.ExecutionMode
	item.AuditID = result.AuditID

	if !result.OK {
		if _, failErr := o.ledger.MarkReleaseFailed(ctx, order.ID.Hex()); failErr != nil {
			o.log.Error("release rollback failed",
				zap.String("order_number", order.OrderNumber), zap.Error(failErr))
		}
		if _, dispErr := o.workroom.UpsertPayoutFailure(ctx, released, result.Error); dispErr != nil {
			o.log.Error("payout failure dispute upsert failed",
				zap.String("order_number", order.OrderNumber), zap.Error(dispErr))
		}
		go o.notifier.SendPayoutFailedNotification(released, result.Error)
		metrics.EscrowReleaseFailures.Inc()
		item.Error = result.Error
		return item
	}

	if result.ExternalReference != "" {
		if err := o.ledger.AttachTransfer(ctx, order.ID.Hex(), result.ExternalReference); err != nil {
			o.log.Error("transfer reference attach failed",
				zap.String("order_number", order.OrderNumber), zap.Error(err))
		}
	}
	metrics.EscrowReleases.Inc()
	item.OK = true
	return item
}
