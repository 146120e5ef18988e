package buyer

import (
	"net/http"
	"time"

	"agrilink-bend/dao"
	"agrilink-bend/ledger"
	"agrilink-bend/models"
	"agrilink-bend/payout"
	"agrilink-bend/utils"
	"agrilink-bend/utils/notifications"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Service represents the buyer-facing order API
type Service struct {
	ledger     *ledger.Ledger
	orderDAO   ledger.OrderStore
	batchDAO   ledger.BatchStore
	orch       *payout.Orchestrator
	notifiable notifications.Notifiable
	log        *zap.Logger
}

// NewBuyerService returns a new buyer service
func NewBuyerService(l *ledger.Ledger, orders ledger.OrderStore, batches ledger.BatchStore, orch *payout.Orchestrator, userDAO *dao.UserDAO, log *zap.Logger) *Service {
	notifiable, err := notifications.NewNotifiable(userDAO)
	if err != nil {
		log.Fatal("notifiable_init", zap.Error(err))
		return nil
	}
	return &Service{ledger: l, orderDAO: orders, batchDAO: batches, orch: orch, notifiable: notifiable, log: log}
}

// ListBatches returns the farmer batches a buyer can order
func (s *Service) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.batchDAO.ListAll(r.Context())
	if err != nil {
		s.log.Error("list batches failed", zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}

	active := make([]models.Batch, 0, len(batches))
	for _, batch := range batches {
		if batch.Status == models.BatchActive {
			active = append(active, batch)
		}
	}
	utils.RespondWithData(w, http.StatusOK, active)
}

// GetQuote previews the commercial breakdown for a batch without creating
// an order.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["id"]
	batch, err := s.batchDAO.FindByID(r.Context(), batchID)
	if err != nil {
		utils.RespondWithErr(w, models.NotFoundError("Batch not found"))
		return
	}

	quote := models.CalculateOrderQuote(batch.TotalPrice, models.DefaultQuoteOptions())
	utils.RespondWithData(w, http.StatusOK, map[string]interface{}{
		"batch_id":    batch.ID.Hex(),
		"total_price": batch.TotalPrice,
		"currency":    "RWF",
		"quote":       quote,
	})
}

// CreateOrder creates a new buyer order against a farmer batch
func (s *Service) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderReq
	if err := utils.DecodeReq(r, &req); err != nil {
		s.log.Warn("create order decode failed", zap.Error(err))
		utils.RespondWithErr(w, models.ValidationError("Invalid request data sent"))
		return
	}

	userID := r.Context().Value(models.ContextKey("user_id"))
	order, err := s.ledger.CreateOrder(r.Context(), userID.(string), req)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	utils.RespondWithData(w, http.StatusCreated, order)
}

// CreateCheckoutSession opens a payment session for the order's amount due
// today. Payment confirmation comes back through the payment webhook, never
// from this endpoint.
func (s *Service) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	order, err := s.ledger.Get(r.Context(), orderID)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	userID := r.Context().Value(models.ContextKey("user_id"))
	if order.Buyer.Hex() != userID.(string) {
		utils.RespondWithErr(w, models.NewError(models.CodeForbidden, "Order belongs to another buyer"))
		return
	}
	if order.PaymentStatus == models.PaymentDepositPaid {
		utils.RespondWithErr(w, models.ConflictError("Order deposit has already been paid"))
		return
	}
	if order.Status != models.OrderActive {
		utils.RespondWithErr(w, models.ConflictError("Order is no longer active"))
		return
	}

	// payment stays pending until the webhook lands; only the session id is
	// persisted here. A failed checkout re-enters pending with the new session.
	sessionID := "cs_" + uuid.NewString()
	if order.PaymentStatus == models.PaymentFailed {
		order.PaymentStatus = models.PaymentPending
	}
	order.CheckoutSessionID = sessionID
	order.UpdatedAt = time.Now().UTC()
	if err := s.orderDAO.Update(r.Context(), order); err != nil {
		s.log.Error("checkout session save failed", zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}

	utils.RespondWithData(w, http.StatusCreated, map[string]interface{}{
		"session_id":       sessionID,
		"order_number":     order.OrderNumber,
		"amount_due_today": order.AmountDueToday,
		"currency":         order.Currency,
		"payment_method":   order.PaymentMethod,
		"transfer_group":   order.TransferGroup,
	})
}

// ReleaseEscrow lets the buyer release the escrowed deposit to the farmer
// once they are satisfied the goods arrived. It shares the compare-and-swap
// claim with batch runs, so a concurrent run simply wins or loses the claim.
func (s *Service) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	order, err := s.ledger.Get(r.Context(), orderID)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	userID := r.Context().Value(models.ContextKey("user_id"))
	if order.Buyer.Hex() != userID.(string) {
		utils.RespondWithErr(w, models.NewError(models.CodeForbidden, "Order belongs to another buyer"))
		return
	}
	buyerOID, err := primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid user id in token"))
		return
	}

	item, err := s.orch.ReleaseOne(r.Context(), orderID, buyerOID)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	if released, getErr := s.ledger.Get(r.Context(), orderID); getErr == nil {
		go s.notifiable.SendEscrowReleasedNotification(released, item.Amount)
	}
	utils.RespondWithData(w, http.StatusOK, item)
}

// GetUserOrders returns the caller's orders, optionally filtered by status
func (s *Service) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(models.ContextKey("user_id"))
	buyerID, err := primitive.ObjectIDFromHex(userID.(string))
	if err != nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid user id in token"))
		return
	}

	status := r.URL.Query().Get("status")
	orders, err := s.orderDAO.ListByBuyer(r.Context(), buyerID, status)
	if err != nil {
		s.log.Error("list buyer orders failed", zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, orders)
}

// ViewOrder returns one order with its delivery timeline
func (s *Service) ViewOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	order, err := s.ledger.Get(r.Context(), orderID)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	userID := r.Context().Value(models.ContextKey("user_id"))
	if order.Buyer.Hex() != userID.(string) {
		utils.RespondWithErr(w, models.NewError(models.CodeForbidden, "Order belongs to another buyer"))
		return
	}

	utils.RespondWithData(w, http.StatusOK, map[string]interface{}{
		"order":    order,
		"timeline": BuildTimeline(order),
	})
}

// CancelOrder cancels the caller's order while it is still cancellable
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]
	var req models.CancelOrderReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid request data sent"))
		return
	}

	order, err := s.ledger.Get(r.Context(), orderID)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	userID := r.Context().Value(models.ContextKey("user_id"))
	if order.Buyer.Hex() != userID.(string) {
		utils.RespondWithErr(w, models.NewError(models.CodeForbidden, "Order belongs to another buyer"))
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "cancelled by buyer"
	}

	cancelled, err := s.ledger.Cancel(r.Context(), orderID, reason)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	go s.notifiable.SendOrderCancelledNotification(cancelled, reason)
	utils.RespondWithData(w, http.StatusOK, cancelled)
}

// TimelineStep is one entry of the buyer-facing delivery timeline
type TimelineStep struct {
	Stage     string     `json:"stage"`
	Label     string     `json:"label"`
	Done      bool       `json:"done"`
	Current   bool       `json:"current"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

var stageLabels = map[string]string{
	models.StageAwaitingPayment:     "Awaiting payment",
	models.StagePaymentConfirmed:    "Payment confirmed",
	models.StageFarmerDispatching:   "Farmer dispatching",
	models.StageHubInspection:       "Hub inspection",
	models.StageReleasedForDelivery: "Released for delivery",
	models.StageDelivered:           "Delivered",
}

// BuildTimeline renders the fixed delivery pipeline against an order's
// current stage. A cancelled order gets a single terminal entry appended.
func BuildTimeline(order models.BuyerOrder) []TimelineStep {
	var steps []TimelineStep
	reached := order.TrackingStage != models.StageCancelled

	currentIdx := -1
	for i, stage := range models.TrackingSequence {
		if stage == order.TrackingStage {
			currentIdx = i
		}
	}

	for i, stage := range models.TrackingSequence {
		step := TimelineStep{
			Stage: stage,
			Label: stageLabels[stage],
		}
		if reached && currentIdx >= 0 {
			step.Done = i < currentIdx
			step.Current = i == currentIdx
		}
		switch stage {
		case models.StagePaymentConfirmed:
			step.Timestamp = order.PaymentConfirmedAt
		case models.StageReleasedForDelivery:
			step.Timestamp = order.EscrowReleasedAt
		case models.StageDelivered:
			step.Timestamp = order.DeliveryConfirmedAt
		}
		steps = append(steps, step)
	}

	if order.TrackingStage == models.StageCancelled {
		steps = append(steps, TimelineStep{
			Stage:     models.StageCancelled,
			Label:     "Cancelled",
			Current:   true,
			Timestamp: order.CancelledAt,
		})
	}
	return steps
}
