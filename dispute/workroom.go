package dispute

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the persistence contract for disputes. InsertIfNoOpen enforces
// the open-uniqueness key (order, anomaly_type, issue): at most one open
// dispute per key, checked and inserted atomically.
type Store interface {
	InsertIfNoOpen(ctx context.Context, dispute models.Dispute) (bool, error)
	FindByID(ctx context.Context, id string) (models.Dispute, error)
	FindOpenByOrderKey(ctx context.Context, orderID primitive.ObjectID, anomalyType, issue string) (models.Dispute, bool, error)
	Update(ctx context.Context, dispute models.Dispute) error
	ListByOrder(ctx context.Context, orderID primitive.ObjectID) ([]models.Dispute, error)
	ListByHub(ctx context.Context, hubID string) ([]models.Dispute, error)
	ListAll(ctx context.Context) ([]models.Dispute, error)
}

// Workroom runs the dispute review lifecycle. Status moves only along the
// review edge table, and every successful action appends exactly one
// immutable event to the dispute history.
type Workroom struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// New ...
func New(store Store, log *zap.Logger) *Workroom {
	return &Workroom{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Open files a new dispute in pending_review with its created event. A
// second open dispute for the same (order, anomaly_type, issue) is rejected
// with a conflict.
func (w *Workroom) Open(ctx context.Context, actorID primitive.ObjectID, actorRole string, req models.CreateDisputeReq) (models.Dispute, error) {
	if strings.TrimSpace(req.Issue) == "" {
		return models.Dispute{}, models.ValidationError("issue is required")
	}
	if strings.TrimSpace(req.AnomalyType) == "" {
		return models.Dispute{}, models.ValidationError("anomaly_type is required")
	}
	severity := normalizeSeverity(req.Severity)

	now := w.now()
	dispute := models.Dispute{
		ID:               primitive.NewObjectID(),
		HubID:            req.HubID,
		HubName:          req.HubName,
		Region:           req.Region,
		Commodity:        req.Commodity,
		Issue:            strings.TrimSpace(req.Issue),
		AnomalyType:      strings.TrimSpace(req.AnomalyType),
		Severity:         severity,
		Status:           models.DisputePendingReview,
		Source:           sourceForRole(actorRole),
		ConfidenceScore:  req.ConfidenceScore,
		AIDetectedGrade:  req.AIDetectedGrade,
		IssueDeltaPct:    req.IssueDeltaPct,
		OperatorComments: req.OperatorComment,
		AdminComments:    req.AdminComment,
		CreatedBy:        actorID,
		LastActionAt:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.OrderID != "" {
		orderID, err := primitive.ObjectIDFromHex(req.OrderID)
		if err != nil {
			return models.Dispute{}, models.ValidationError("order_id is not a valid id")
		}
		dispute.Order = orderID
	}
	if req.BatchID != "" {
		batchID, err := primitive.ObjectIDFromHex(req.BatchID)
		if err != nil {
			return models.Dispute{}, models.ValidationError("batch_id is not a valid id")
		}
		dispute.Batch = batchID
	}

	dispute.Events = []models.DisputeEvent{{
		Action:     models.ActionCreated,
		ActorRole:  actorRole,
		ActorID:    actorID,
		Message:    dispute.Issue,
		NextStatus: models.DisputePendingReview,
		CreatedAt:  now,
	}}

	inserted, err := w.store.InsertIfNoOpen(ctx, dispute)
	if err != nil {
		return models.Dispute{}, err
	}
	if !inserted {
		return models.Dispute{}, models.ConflictError("An open dispute already exists for this order and issue")
	}

	w.log.Info("dispute opened",
		zap.String("dispute_id", dispute.ID.Hex()),
		zap.String("anomaly_type", dispute.AnomalyType),
		zap.String("severity", dispute.Severity))
	return dispute, nil
}

// Review applies one review action. Invalid edges conflict and leave the
// dispute untouched, event history included.
func (w *Workroom) Review(ctx context.Context, disputeID string, adminID primitive.ObjectID, req models.ReviewDisputeReq) (models.Dispute, error) {
	dispute, err := w.store.FindByID(ctx, disputeID)
	if err != nil {
		return models.Dispute{}, models.NotFoundError("Dispute not found")
	}

	if req.Action == models.ActionComment && strings.TrimSpace(req.Comment) == "" {
		return models.Dispute{}, models.ValidationError("comment requires a message")
	}

	next, ok := models.NextDisputeStatus(dispute.Status, req.Action)
	if !ok {
		return models.Dispute{}, models.ConflictError(
			fmt.Sprintf("Action %s is not allowed while dispute is %s", req.Action, dispute.Status))
	}

	now := w.now()
	event := models.DisputeEvent{
		Action:         req.Action,
		ActorRole:      models.RoleAdmin,
		ActorID:        adminID,
		Message:        req.Comment,
		PreviousStatus: dispute.Status,
		NextStatus:     next,
		CreatedAt:      now,
	}

	dispute.Status = next
	dispute.Events = append(dispute.Events, event)
	dispute.LastActionAt = now
	dispute.UpdatedAt = now
	if req.Action != models.ActionComment {
		dispute.AssignedAdmin = adminID
	}
	if strings.TrimSpace(req.Comment) != "" {
		dispute.AdminComments = req.Comment
	}

	if err := w.store.Update(ctx, dispute); err != nil {
		return models.Dispute{}, err
	}

	w.log.Info("dispute reviewed",
		zap.String("dispute_id", dispute.ID.Hex()),
		zap.String("action", req.Action),
		zap.String("status", dispute.Status))
	return dispute, nil
}

// Get ...
func (w *Workroom) Get(ctx context.Context, disputeID string) (models.Dispute, error) {
	dispute, err := w.store.FindByID(ctx, disputeID)
	if err != nil {
		return models.Dispute{}, models.NotFoundError("Dispute not found")
	}
	return dispute, nil
}

// HasBlocking reports whether any open high-severity dispute gates escrow
// release for the order.
func (w *Workroom) HasBlocking(ctx context.Context, orderID primitive.ObjectID) (bool, error) {
	disputes, err := w.store.ListByOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	for i := range disputes {
		if disputes[i].Blocking() {
			return true, nil
		}
	}
	return false, nil
}

// UpsertPayoutFailure records a failed payout attempt as a dispute. The
// first failure opens a high-severity payout_failure dispute; repeats append
// a system_sync event to the open one instead of filing duplicates.
func (w *Workroom) UpsertPayoutFailure(ctx context.Context, order models.BuyerOrder, reason string) (models.Dispute, error) {
	const anomaly = "payout_failure"
	issue := fmt.Sprintf("Escrow release failed for order %s", order.OrderNumber)

	existing, found, err := w.store.FindOpenByOrderKey(ctx, order.ID, anomaly, issue)
	if err != nil {
		return models.Dispute{}, err
	}
	now := w.now()
	if found {
		existing.Events = append(existing.Events, models.DisputeEvent{
			Action:    models.ActionSystemSync,
			ActorRole: models.RoleSystem,
			Message:   reason,
			CreatedAt: now,
		})
		existing.LastActionAt = now
		existing.UpdatedAt = now
		if err := w.store.Update(ctx, existing); err != nil {
			return models.Dispute{}, err
		}
		return existing, nil
	}

	dispute := models.Dispute{
		ID:               primitive.NewObjectID(),
		Order:            order.ID,
		Batch:            order.Batch,
		Commodity:        order.CropKey,
		Issue:            issue,
		AnomalyType:      anomaly,
		Severity:         models.SeverityHigh,
		Status:           models.DisputePendingReview,
		Source:           models.SourcePayoutFailure,
		OperatorComments: reason,
		LastActionAt:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
		Events: []models.DisputeEvent{{
			Action:     models.ActionCreated,
			ActorRole:  models.RoleSystem,
			Message:    reason,
			NextStatus: models.DisputePendingReview,
			CreatedAt:  now,
		}},
	}

	inserted, err := w.store.InsertIfNoOpen(ctx, dispute)
	if err != nil {
		return models.Dispute{}, err
	}
	if !inserted {
		// lost the race to a concurrent failure; sync onto the winner
		return w.UpsertPayoutFailure(ctx, order, reason)
	}

	w.log.Warn("payout failure dispute opened",
		zap.String("order_number", order.OrderNumber),
		zap.String("dispute_id", dispute.ID.Hex()))
	return dispute, nil
}

// ListByHub ...
func (w *Workroom) ListByHub(ctx context.Context, hubID string) ([]models.Dispute, error) {
	return w.store.ListByHub(ctx, hubID)
}

// ListAll ...
func (w *Workroom) ListAll(ctx context.Context) ([]models.Dispute, error) {
	return w.store.ListAll(ctx)
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityLow:
		return models.SeverityLow
	default:
		return models.SeverityMedium
	}
}

func sourceForRole(role string) string {
	switch role {
	case models.RoleSystem:
		return models.SourceSystemDerived
	case models.RoleAdmin:
		return models.SourceAdminManual
	default:
		return models.SourceHubOperator
	}
}
