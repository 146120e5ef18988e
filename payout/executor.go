package payout

import (
	"context"
	"fmt"
	"time"

	"agrilink-bend/metrics"
	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AuditStore is the append-only persistence contract for payout audits.
// Records are inserted, counted and listed; never updated.
type AuditStore interface {
	Insert(ctx context.Context, audit models.PayoutAudit) error
	CountByOrder(ctx context.Context, orderID primitive.ObjectID) (int64, error)
	ListByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.PayoutAudit, error)
	ListAll(ctx context.Context) ([]models.PayoutAudit, error)
}

// UserStore resolves the farmer a payout goes to
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Executor runs one payout attempt end to end: provider selection, the
// provider call, and the audit write. Every attempt leaves exactly one audit
// record whatever the outcome, and no provider error escapes past Execute.
type Executor struct {
	audits    AuditStore
	users     UserStore
	providers map[string]Provider
	log       *zap.Logger
	now       func() time.Time
}

// NewExecutor wires the automated rails. Bank orders never reach a provider;
// they go through RecordManualRequired instead. Tests swap rails in with
// Register.
func NewExecutor(audits AuditStore, users UserStore, log *zap.Logger) *Executor {
	e := &Executor{
		audits:    audits,
		users:     users,
		providers: make(map[string]Provider),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	e.Register(NewPaypalProvider())
	e.Register(NewMobileMoneyProvider())
	return e
}

// Register ...
func (e *Executor) Register(p Provider) {
	e.providers[p.Name()] = p
}

// Execute attempts one disbursement for a release-claimed order
func (e *Executor) Execute(ctx context.Context, order models.BuyerOrder, initiatedBy primitive.ObjectID) models.PayoutResult {
	providerName := providerForMethod(order.PaymentMethod)
	amount := order.PayoutAmount()
	now := e.now()

	audit := models.PayoutAudit{
		ID:          primitive.NewObjectID(),
		Order:       order.ID,
		Batch:       order.Batch,
		Buyer:       order.Buyer,
		Farmer:      order.Farmer,
		InitiatedBy: initiatedBy,
		Provider:    providerName,
		Method:      order.PaymentMethod,
		Amount:      amount,
		Currency:    order.Currency,
		ProcessedAt: now,
		CreatedAt:   now,
	}

	result := models.PayoutResult{
		Provider: providerName,
		Method:   order.PaymentMethod,
		Amount:   amount,
	}

	attempts, err := e.audits.CountByOrder(ctx, order.ID)
	if err != nil {
		return e.finish(ctx, audit, result, err)
	}
	// attempt-numbered reference; a retried attempt gets a fresh one while a
	// replay of the same attempt reuses it
	reference := fmt.Sprintf("payout_%s_%d", order.ID.Hex(), attempts+1)
	result.ExternalReference = reference
	audit.ExternalReference = reference

	provider, ok := e.providers[providerName]
	if !ok {
		return e.finish(ctx, audit, result,
			models.PayoutError(fmt.Sprintf("No payout rail for payment method %s", order.PaymentMethod)))
	}

	farmer, err := e.users.FindByID(ctx, order.Farmer.Hex())
	if err != nil {
		return e.finish(ctx, audit, result, models.PayoutError("Farmer account not found"))
	}

	receipt, err := provider.Disburse(ctx, Disbursement{
		Order:     order,
		Farmer:    farmer,
		Amount:    amount,
		Currency:  order.Currency,
		Reference: reference,
	})
	if err != nil {
		return e.finish(ctx, audit, result, err)
	}

	if receipt.ExternalReference != "" {
		audit.ExternalReference = receipt.ExternalReference
		result.ExternalReference = receipt.ExternalReference
	}
	audit.ProviderCode = receipt.ProviderCode
	audit.ProviderLabel = receipt.ProviderLabel
	audit.ExecutionMode = receipt.ExecutionMode
	result.ExecutionMode = receipt.ExecutionMode
	audit.Status = models.PayoutSucceeded

	return e.finish(ctx, audit, result, nil)
}

// RecordManualRequired writes the skipped-with-justification audit for rails
// the platform cannot automate. The caller must leave escrow funded: no money
// moves until the operations desk settles the transfer offline and reconciles
// it against this record.
func (e *Executor) RecordManualRequired(ctx context.Context, order models.BuyerOrder, initiatedBy primitive.ObjectID) models.PayoutResult {
	providerName := providerForMethod(order.PaymentMethod)
	amount := order.PayoutAmount()
	now := e.now()

	audit := models.PayoutAudit{
		ID:            primitive.NewObjectID(),
		Order:         order.ID,
		Batch:         order.Batch,
		Buyer:         order.Buyer,
		Farmer:        order.Farmer,
		InitiatedBy:   initiatedBy,
		Provider:      providerName,
		Method:        order.PaymentMethod,
		ExecutionMode: models.ExecutionStub,
		Status:        models.PayoutManualRequired,
		Amount:        amount,
		Currency:      order.Currency,
		ProviderLabel: "Bank transfer (manual)",
		ErrorCode:     "MANUAL_PAYOUT_REQUIRED",
		ErrorMessage:  "Bank transfer payouts require manual reconciliation and are not auto-released",
		ProcessedAt:   now,
		CreatedAt:     now,
	}

	result := models.PayoutResult{
		Skipped:       true,
		Provider:      providerName,
		Method:        order.PaymentMethod,
		ExecutionMode: models.ExecutionStub,
		Amount:        amount,
		Error:         "Manual bank payout required",
		AuditID:       audit.ID.Hex(),
	}

	e.record(ctx, audit)
	return result
}

// finish stamps the outcome, writes the audit and returns the result. The
// audit write itself failing is logged but does not flip a completed
// transfer to failed.
func (e *Executor) finish(ctx context.Context, audit models.PayoutAudit, result models.PayoutResult, err error) models.PayoutResult {
	if err != nil {
		audit.Status = models.PayoutFailed
		audit.ErrorCode = models.ErrCode(err)
		audit.ErrorMessage = err.Error()
		result.Error = err.Error()
	} else {
		result.OK = true
		released := audit.ProcessedAt
		result.ReleasedAt = &released
	}
	result.AuditID = audit.ID.Hex()

	e.record(ctx, audit)
	return result
}

func (e *Executor) record(ctx context.Context, audit models.PayoutAudit) {
	if insertErr := e.audits.Insert(ctx, audit); insertErr != nil {
		e.log.Error("payout audit write failed",
			zap.String("order_id", audit.Order.Hex()), zap.Error(insertErr))
	}

	metrics.PayoutAttempts.WithLabelValues(audit.Provider, audit.Status).Inc()
	e.log.Info("payout attempt recorded",
		zap.String("order_id", audit.Order.Hex()),
		zap.String("provider", audit.Provider),
		zap.String("status", audit.Status),
		zap.Int64("amount", audit.Amount))
}
