package admin

import (
	"net/http"

	"agrilink-bend/audit"
	"agrilink-bend/dao"
	"agrilink-bend/dispute"
	"agrilink-bend/ledger"
	"agrilink-bend/metrics"
	"agrilink-bend/models"
	"agrilink-bend/payout"
	"agrilink-bend/utils"
	"agrilink-bend/utils/notifications"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Hub is one aggregation hub the platform operates
type Hub struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

// Hubs is the fixed aggregation hub registry
var Hubs = []Hub{
	{ID: "hub_kigali", Name: "Kigali Central Aggregator", Region: "Kigali"},
	{ID: "hub_musanze", Name: "Musanze Highland Hub", Region: "Northern"},
	{ID: "hub_huye", Name: "Huye Collection Center", Region: "Southern"},
	{ID: "hub_rubavu", Name: "Rubavu Lakeside Hub", Region: "Western"},
	{ID: "hub_nyagatare", Name: "Nyagatare Grain Hub", Region: "Eastern"},
}

// Service represents the admin API over the ledger, workroom and payouts
type Service struct {
	ledger     *ledger.Ledger
	workroom   *dispute.Workroom
	orch       *payout.Orchestrator
	view       *audit.View
	orderDAO   ledger.OrderStore
	notifiable notifications.Notifiable
	log        *zap.Logger
}

// NewAdminService returns a new admin service
func NewAdminService(
	l *ledger.Ledger,
	w *dispute.Workroom,
	orch *payout.Orchestrator,
	view *audit.View,
	orders ledger.OrderStore,
	userDAO *dao.UserDAO,
	log *zap.Logger,
) *Service {
	notifiable, err := notifications.NewNotifiable(userDAO)
	if err != nil {
		log.Fatal("notifiable_init", zap.Error(err))
		return nil
	}
	return &Service{
		ledger:     l,
		workroom:   w,
		orch:       orch,
		view:       view,
		orderDAO:   orders,
		notifiable: notifiable,
		log:        log,
	}
}

// GetOverview returns the operations dashboard counters
func (s *Service) GetOverview(w http.ResponseWriter, r *http.Request) {
	report, err := s.view.Build(r.Context())
	if err != nil {
		s.log.Error("overview build failed", zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}

	disputes, err := s.workroom.ListAll(r.Context())
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	openDisputes, blockingDisputes := 0, 0
	escalations := []models.Dispute{}
	for i := range disputes {
		if disputes[i].Open() {
			openDisputes++
		}
		if disputes[i].Blocking() {
			blockingDisputes++
		}
		if disputes[i].Status == models.DisputePendingEscalation && len(escalations) < 5 {
			escalations = append(escalations, disputes[i])
		}
	}

	utils.RespondWithData(w, http.StatusOK, map[string]interface{}{
		"escrow":             report.Summary,
		"open_disputes":      openDisputes,
		"blocking_disputes":  blockingDisputes,
		"recent_escalations": escalations,
		"hubs":               Hubs,
	})
}

// GetEscrowAudit returns the full escrow reconciliation report
func (s *Service) GetEscrowAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.view.Build(r.Context())
	if err != nil {
		s.log.Error("escrow audit build failed", zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, report)
}

// GetOrderTrail returns the payout attempt history of one order
func (s *Service) GetOrderTrail(w http.ResponseWriter, r *http.Request) {
	trail, err := s.view.OrderTrail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, trail)
}

// ListOrders returns every order, newest first
func (s *Service) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orderDAO.ListAll(r.Context())
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, orders)
}

// AdvanceTracking moves an order to the next delivery stage
func (s *Service) AdvanceTracking(w http.ResponseWriter, r *http.Request) {
	var req models.AdvanceTrackingReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid request data sent"))
		return
	}

	order, err := s.ledger.AdvanceTracking(r.Context(), mux.Vars(r)["id"], req.NextStage)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, order)
}

// ReleaseEscrow releases one funded order to its farmer
func (s *Service) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	adminID := s.actorID(r)
	orderID := mux.Vars(r)["id"]

	item, err := s.orch.ReleaseOne(r.Context(), orderID, adminID)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	order, getErr := s.ledger.Get(r.Context(), orderID)
	if getErr == nil {
		go s.notifiable.SendEscrowReleasedNotification(order, item.Amount)
	}
	utils.RespondWithData(w, http.StatusOK, item)
}

// RetryRelease re-queues a failed release
func (s *Service) RetryRelease(w http.ResponseWriter, r *http.Request) {
	order, err := s.ledger.RetryRelease(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, order)
}

// CancelOrder cancels an order on the buyer's or platform's behalf
func (s *Service) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CancelOrderReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid request data sent"))
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by admin"
	}

	order, err := s.ledger.Cancel(r.Context(), mux.Vars(r)["id"], reason)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	go s.notifiable.SendOrderCancelledNotification(order, reason)
	utils.RespondWithData(w, http.StatusOK, order)
}

// BatchRelease runs the batch payout orchestrator
func (s *Service) BatchRelease(w http.ResponseWriter, r *http.Request) {
	var req models.BatchReleaseReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid request data sent"))
		return
	}

	report, err := s.orch.Run(r.Context(), s.actorID(r), req.Limit)
	if err != nil {
		s.log.Error("batch release failed", zap.Error(err))
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, report)
}

// HubStats is one hub's dispute position on the dashboard
type HubStats struct {
	Hub          Hub `json:"hub"`
	Open         int `json:"open"`
	HighSeverity int `json:"high_severity"`
}

// GetHubsDisputes returns the hub/dispute dashboard: per-hub dispute stats
// plus the dispute list, optionally narrowed to one hub with ?hub=.
func (s *Service) GetHubsDisputes(w http.ResponseWriter, r *http.Request) {
	hubID := r.URL.Query().Get("hub")
	if hubID != "" && !knownHub(hubID) {
		utils.RespondWithErr(w, models.NotFoundError("Hub not found"))
		return
	}

	var (
		disputes []models.Dispute
		err      error
	)
	if hubID != "" {
		disputes, err = s.workroom.ListByHub(r.Context(), hubID)
	} else {
		disputes, err = s.workroom.ListAll(r.Context())
	}
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	byHub := make(map[string]*HubStats, len(Hubs))
	stats := make([]*HubStats, 0, len(Hubs))
	for _, h := range Hubs {
		if hubID != "" && h.ID != hubID {
			continue
		}
		hs := &HubStats{Hub: h}
		byHub[h.ID] = hs
		stats = append(stats, hs)
	}
	for i := range disputes {
		hs, ok := byHub[disputes[i].HubID]
		if !ok {
			continue
		}
		if disputes[i].Open() {
			hs.Open++
		}
		if disputes[i].Severity == models.SeverityHigh {
			hs.HighSeverity++
		}
	}

	utils.RespondWithData(w, http.StatusOK, map[string]interface{}{
		"hubs":     stats,
		"disputes": disputes,
	})
}

// ListDisputes returns every dispute, most recently actioned first
func (s *Service) ListDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := s.workroom.ListAll(r.Context())
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, disputes)
}

// GetDispute ...
func (s *Service) GetDispute(w http.ResponseWriter, r *http.Request) {
	d, err := s.workroom.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, d)
}

// CreateDispute files a new dispute
func (s *Service) CreateDispute(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDisputeReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid request data sent"))
		return
	}

	d, err := s.workroom.Open(r.Context(), s.actorID(r), models.RoleAdmin, req)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	metrics.DisputesOpened.WithLabelValues(d.Source).Inc()

	if !d.Order.IsZero() {
		if order, getErr := s.ledger.Get(r.Context(), d.Order.Hex()); getErr == nil {
			go s.notifiable.SendDisputeOpenedNotification(d, order)
		}
	}
	utils.RespondWithData(w, http.StatusCreated, d)
}

// ReviewDispute applies one review action to a dispute
func (s *Service) ReviewDispute(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewDisputeReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid request data sent"))
		return
	}

	d, err := s.workroom.Review(r.Context(), mux.Vars(r)["id"], s.actorID(r), req)
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, d)
}

func (s *Service) actorID(r *http.Request) primitive.ObjectID {
	userID, _ := r.Context().Value(models.ContextKey("user_id")).(string)
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

func knownHub(id string) bool {
	for _, hub := range Hubs {
		if hub.ID == id {
			return true
		}
	}
	return false
}
