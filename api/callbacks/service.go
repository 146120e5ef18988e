package callbacks

import (
	"crypto/subtle"
	"net/http"
	"os"

	"agrilink-bend/dao"
	"agrilink-bend/ledger"
	"agrilink-bend/models"
	"agrilink-bend/utils"
	"agrilink-bend/utils/notifications"

	"go.uber.org/zap"
)

// Service represents the Callbacks Service
type Service struct {
	ledger     *ledger.Ledger
	orderDAO   ledger.OrderStore
	notifiable notifications.Notifiable
	log        *zap.Logger
}

// NewCallbacksService returns a new callbacks service
func NewCallbacksService(l *ledger.Ledger, orders ledger.OrderStore, userDAO *dao.UserDAO, log *zap.Logger) *Service {
	notifiable, err := notifications.NewNotifiable(userDAO)
	if err != nil {
		log.Fatal("notifiable_init", zap.Error(err))
		return nil
	}
	return &Service{ledger: l, orderDAO: orders, notifiable: notifiable, log: log}
}

// webhookEvent is the payload the payment provider posts back
type webhookEvent struct {
	Type            string `json:"type"`
	SessionID       string `json:"session_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ChargeID        string `json:"charge_id"`
	PayStatus       string `json:"pay_status"`
}

// PaymentWebhook handles checkout session outcomes from the payment
// provider. Completed sessions fund the escrow; failed and expired ones
// keep the order open for another checkout attempt.
func (s *Service) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if !validSignature(r) {
		utils.RespondWithError(w, http.StatusUnauthorized, models.CodeUnauthorized, "Invalid webhook signature")
		return
	}

	var event webhookEvent
	if err := utils.DecodeReq(r, &event); err != nil {
		s.log.Warn("webhook decode failed", zap.Error(err))
		utils.RespondWithErr(w, models.ValidationError("Invalid webhook payload"))
		return
	}
	if event.SessionID == "" {
		utils.RespondWithErr(w, models.ValidationError("session_id is required"))
		return
	}

	order, err := s.orderDAO.FindByCheckoutSession(r.Context(), event.SessionID)
	if err != nil {
		utils.RespondWithErr(w, models.NotFoundError("No order for checkout session"))
		return
	}

	refs := ledger.ProviderRefs{
		CheckoutSessionID: event.SessionID,
		PaymentIntentID:   event.PaymentIntentID,
		ChargeID:          event.ChargeID,
		PayStatus:         event.PayStatus,
	}

	switch event.Type {
	case "checkout.session.completed":
		funded, err := s.ledger.ConfirmPayment(r.Context(), order.ID.Hex(), refs)
		if err != nil {
			// replays of an already-confirmed session are acknowledged, not errored
			if models.IsConflict(err) && order.PaymentStatus == models.PaymentDepositPaid {
				utils.RespondWithData(w, http.StatusOK, map[string]string{"result": "already_processed"})
				return
			}
			utils.RespondWithErr(w, err)
			return
		}
		go s.notifiable.SendEscrowFundedNotification(funded)
		utils.RespondWithData(w, http.StatusOK, map[string]string{"result": "funded"})

	case "checkout.session.expired", "payment.failed":
		if _, err := s.ledger.MarkPaymentFailed(r.Context(), order.ID.Hex(), refs); err != nil {
			if models.IsConflict(err) {
				utils.RespondWithData(w, http.StatusOK, map[string]string{"result": "ignored"})
				return
			}
			utils.RespondWithErr(w, err)
			return
		}
		utils.RespondWithData(w, http.StatusOK, map[string]string{"result": "payment_failed"})

	default:
		s.log.Info("unhandled webhook event", zap.String("type", event.Type))
		utils.RespondWithData(w, http.StatusOK, map[string]string{"result": "ignored"})
	}
}

func validSignature(r *http.Request) bool {
	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		return false
	}
	got := r.Header.Get("X-Webhook-Secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}
