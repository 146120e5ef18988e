package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payout providers
const (
	ProviderPaypal      = "paypal"
	ProviderMobileMoney = "mobile_money"
	ProviderBank        = "bank_transfer"
	ProviderUnknown     = "unknown"
)

// Payout execution modes
const (
	ExecutionLive = "live"
	ExecutionStub = "stub"
)

// Payout audit statuses
const (
	PayoutPending        = "pending"
	PayoutSubmitted      = "submitted"
	PayoutSucceeded      = "succeeded"
	PayoutFailed         = "failed"
	PayoutManualRequired = "manual_required"
	PayoutSkipped        = "skipped"
)

// PayoutAudit is the immutable record of one attempt to transfer escrowed
// funds to a farmer. Retries create new records; existing ones are never
// mutated.
type PayoutAudit struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	Order       primitive.ObjectID `json:"order" bson:"order"`
	Batch       primitive.ObjectID `json:"batch,omitempty" bson:"batch,omitempty"`
	Buyer       primitive.ObjectID `json:"buyer,omitempty" bson:"buyer,omitempty"`
	Farmer      primitive.ObjectID `json:"farmer,omitempty" bson:"farmer,omitempty"`
	InitiatedBy primitive.ObjectID `json:"initiated_by,omitempty" bson:"initiated_by,omitempty"`

	Provider      string `json:"provider" bson:"provider"`
	Method        string `json:"method" bson:"method"`
	ExecutionMode string `json:"execution_mode" bson:"execution_mode"`
	Status        string `json:"status" bson:"status"`

	Amount   int64  `json:"amount" bson:"amount"`
	Currency string `json:"currency" bson:"currency"`

	ExternalReference string `json:"external_reference,omitempty" bson:"external_reference,omitempty"`
	ProviderCode      string `json:"provider_code,omitempty" bson:"provider_code,omitempty"`
	ProviderLabel     string `json:"provider_label,omitempty" bson:"provider_label,omitempty"`
	ErrorCode         string `json:"error_code,omitempty" bson:"error_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty" bson:"error_message,omitempty"`

	ProcessedAt time.Time `json:"processed_at" bson:"processed_at"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

// PayoutResult is the structured outcome of one executor attempt; the
// executor never lets provider errors escape past its boundary.
type PayoutResult struct {
	OK                bool       `json:"ok"`
	Skipped           bool       `json:"skipped"`
	Provider          string     `json:"provider"`
	Method            string     `json:"method"`
	ExecutionMode     string     `json:"execution_mode"`
	ExternalReference string     `json:"external_reference,omitempty"`
	Error             string     `json:"error,omitempty"`
	AuditID           string     `json:"audit_id,omitempty"`
	Amount            int64      `json:"amount"`
	ReleasedAt        *time.Time `json:"released_at,omitempty"`
}

// BatchItemResult is the per-order entry of a batch release report
type BatchItemResult struct {
	OrderID           string `json:"order_id"`
	OrderNumber       string `json:"order_number"`
	OK                bool   `json:"ok"`
	Skipped           bool   `json:"skipped"`
	Error             string `json:"error,omitempty"`
	Provider          string `json:"provider,omitempty"`
	Method            string `json:"method,omitempty"`
	Amount            int64  `json:"amount"`
	ExternalReference string `json:"external_reference,omitempty"`
	ExecutionMode     string `json:"execution_mode,omitempty"`
	AuditID           string `json:"audit_id,omitempty"`
}

// BatchReleaseReport aggregates one orchestrator run. Partial failure is
// normal; the report always covers every selected order.
type BatchReleaseReport struct {
	RunID               string            `json:"run_id"`
	ReleasedCount       int               `json:"released_count"`
	FailedCount         int               `json:"failed_count"`
	SkippedCount        int               `json:"skipped_count"`
	ReleasedTotalAmount int64             `json:"released_total_amount"`
	Message             string            `json:"message"`
	ProcessedAt         time.Time         `json:"processed_at"`
	Items               []BatchItemResult `json:"items"`
}
