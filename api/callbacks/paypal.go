package callbacks

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"agrilink-bend/ledger"
	"agrilink-bend/models"
	"agrilink-bend/utils"

	"github.com/plutov/paypal/v4"
	"go.uber.org/zap"
)

// paypalConfirmReq is the payload the mobile client posts after an approved
// PayPal checkout.
type paypalConfirmReq struct {
	PaypalOrderID string `json:"paypal_order_id"`
	SessionID     string `json:"session_id"`
}

// ConfirmPaypalPayment confirms a PayPal orderID and validates the captured
// amount against the order's amount due today before funding the escrow.
func (s *Service) ConfirmPaypalPayment(w http.ResponseWriter, r *http.Request) {
	var (
		base         = paypal.APIBaseSandBox
		req          paypalConfirmReq
		clientID     = os.Getenv("PAYPAL_CLIENT_ID")
		clientSecret = os.Getenv("PAYPAL_CLIENT_SECRET")
	)
	if err := utils.DecodeReq(r, &req); err != nil {
		s.log.Warn("paypal confirm decode failed", zap.Error(err))
		utils.RespondWithErr(w, models.ValidationError("Invalid request data detected"))
		return
	}
	if req.PaypalOrderID == "" || req.SessionID == "" {
		utils.RespondWithErr(w, models.ValidationError("paypal_order_id and session_id are required"))
		return
	}

	if os.Getenv("ENV") != "dev" {
		base = paypal.APIBaseLive
	}

	order, err := s.orderDAO.FindByCheckoutSession(r.Context(), req.SessionID)
	if err != nil {
		utils.RespondWithErr(w, models.NotFoundError("No order for checkout session"))
		return
	}
	if order.PaymentStatus == models.PaymentDepositPaid {
		utils.RespondWithErr(w, models.ConflictError("Payment already processed"))
		return
	}

	c, err := paypal.NewClient(clientID, clientSecret, base)
	if err != nil {
		s.log.Error("paypal client init failed", zap.Error(err))
		utils.RespondWithErr(w, models.ValidationError("Invalid request data detected"))
		return
	}

	accessToken, err := c.GetAccessToken(context.Background())
	if err != nil {
		s.log.Error("paypal access token failed", zap.Error(err))
		utils.RespondWithErr(w, models.ValidationError("Invalid request data detected"))
		return
	}
	c.SetAccessToken(accessToken.Token)

	paypalOrder, err := c.GetOrder(context.Background(), req.PaypalOrderID)
	if err != nil {
		s.log.Error("paypal order fetch failed", zap.Error(err))
		utils.RespondWithErr(w, models.ValidationError("Error validating order"))
		return
	}

	if len(paypalOrder.PurchaseUnits) == 0 || paypalOrder.PurchaseUnits[0].Amount == nil {
		utils.RespondWithErr(w, models.ValidationError("Invalid order detected"))
		return
	}
	paid, err := strconv.ParseFloat(paypalOrder.PurchaseUnits[0].Amount.Value, 64)
	if err != nil || int64(paid) != order.AmountDueToday {
		utils.RespondWithErr(w, models.ValidationError(
			fmt.Sprintf("Captured amount does not match amount due for order %s", order.OrderNumber)))
		return
	}

	funded, err := s.ledger.ConfirmPayment(r.Context(), order.ID.Hex(), ledger.ProviderRefs{
		CheckoutSessionID: req.SessionID,
		PaymentIntentID:   req.PaypalOrderID,
		PayStatus:         string(paypalOrder.Status),
	})
	if err != nil {
		utils.RespondWithErr(w, err)
		return
	}

	go s.notifiable.SendEscrowFundedNotification(funded)
	utils.RespondWithData(w, http.StatusCreated, funded)
}
