package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Dispute statuses
const (
	DisputePendingReview     = "pending_review"
	DisputeUnderReview       = "under_review"
	DisputePendingEscalation = "pending_escalation"
	DisputeResolved          = "resolved"
	DisputeDismissed         = "dismissed"
)

// Dispute severities
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Dispute sources
const (
	SourceSystemDerived  = "system_derived"
	SourceHubOperator    = "hub_operator"
	SourceAdminManual    = "admin_manual"
	SourcePayoutFailure  = "payout_failure"
	SourcePaymentFailure = "payment_failure"
)

// Review actions
const (
	ActionCreated     = "created"
	ActionStartReview = "start_review"
	ActionEscalate    = "escalate"
	ActionResolve     = "resolve"
	ActionDismiss     = "dismiss"
	ActionComment     = "comment"
	ActionSystemSync  = "system_sync"
	ActionReopened    = "reopened"
)

// Actor roles recorded on dispute events
const (
	RoleSystem = "SYSTEM"
	RoleAdmin  = "ADMIN"
	RoleFarmer = "FARMER"
	RoleBuyer  = "BUYER"
)

// DisputeEvent is one immutable entry of a dispute's history; events are
// insert-only and never edited or removed.
type DisputeEvent struct {
	Action         string             `json:"action" bson:"action"`
	ActorRole      string             `json:"actor_role" bson:"actor_role"`
	ActorID        primitive.ObjectID `json:"actor_id,omitempty" bson:"actor_id,omitempty"`
	Message        string             `json:"message" bson:"message"`
	PreviousStatus string             `json:"previous_status,omitempty" bson:"previous_status,omitempty"`
	NextStatus     string             `json:"next_status,omitempty" bson:"next_status,omitempty"`
	CreatedAt      time.Time          `json:"created_at" bson:"created_at"`
}

// Dispute is a flagged quality/process anomaly against an order or batch.
// For a given order, (anomaly_type, issue) identifies at most one open dispute.
type Dispute struct {
	ID    primitive.ObjectID `json:"id" bson:"_id"`
	Order primitive.ObjectID `json:"order,omitempty" bson:"order,omitempty"`
	Batch primitive.ObjectID `json:"batch,omitempty" bson:"batch,omitempty"`

	HubID       string `json:"hub_id" bson:"hub_id"`
	HubName     string `json:"hub_name" bson:"hub_name"`
	Region      string `json:"region" bson:"region"`
	Commodity   string `json:"commodity" bson:"commodity"`
	Issue       string `json:"issue" bson:"issue"`
	AnomalyType string `json:"anomaly_type" bson:"anomaly_type"`
	Severity    string `json:"severity" bson:"severity"`
	Status      string `json:"status" bson:"status"`
	Source      string `json:"source" bson:"source"`

	ConfidenceScore  float64 `json:"confidence_score,omitempty" bson:"confidence_score,omitempty"`
	AIDetectedGrade  string  `json:"ai_detected_grade,omitempty" bson:"ai_detected_grade,omitempty"`
	IssueDeltaPct    float64 `json:"issue_delta_percent,omitempty" bson:"issue_delta_percent,omitempty"`
	OperatorComments string  `json:"operator_comments" bson:"operator_comments"`
	AdminComments    string  `json:"admin_comments" bson:"admin_comments"`

	AssignedAdmin primitive.ObjectID `json:"assigned_admin,omitempty" bson:"assigned_admin,omitempty"`
	CreatedBy     primitive.ObjectID `json:"created_by,omitempty" bson:"created_by,omitempty"`
	LastActionAt  time.Time          `json:"last_action_at" bson:"last_action_at"`
	Events        []DisputeEvent     `json:"events" bson:"events"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Open reports whether the dispute counts toward the open-uniqueness key and
// the payout-blocking check.
func (d *Dispute) Open() bool {
	switch d.Status {
	case DisputePendingReview, DisputeUnderReview, DisputePendingEscalation:
		return true
	}
	return false
}

// Blocking reports whether the dispute gates escrow release for its order
func (d *Dispute) Blocking() bool {
	return d.Severity == SeverityHigh && d.Open()
}

// reviewEdges maps a review action to the statuses it may be applied from and
// the status it produces. comment and system_sync are event-only and handled
// separately.
var reviewEdges = map[string]struct {
	from []string
	to   string
}{
	ActionStartReview: {from: []string{DisputePendingReview}, to: DisputeUnderReview},
	ActionEscalate:    {from: []string{DisputeUnderReview}, to: DisputePendingEscalation},
	ActionResolve:     {from: []string{DisputeUnderReview, DisputePendingEscalation}, to: DisputeResolved},
	ActionDismiss:     {from: []string{DisputeUnderReview, DisputePendingEscalation}, to: DisputeDismissed},
	ActionReopened:    {from: []string{DisputeResolved, DisputeDismissed}, to: DisputeUnderReview},
}

// NextDisputeStatus resolves the status a review action leads to from the
// current one. ok is false for any action-from-status pair that is not a
// single allowed edge. comment never changes status.
func NextDisputeStatus(current, action string) (string, bool) {
	if action == ActionComment {
		return current, true
	}
	edge, known := reviewEdges[action]
	if !known {
		return "", false
	}
	for _, from := range edge.from {
		if from == current {
			return edge.to, true
		}
	}
	return "", false
}
