package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"agrilink-bend/models"
)

// MobileMoneyProvider disburses momo and airtel payouts through the mobile
// money aggregator API. Without PAYOUT_MODE=live it runs in stub mode and
// fabricates a provider reference instead of calling out, so local and
// staging environments never move real money.
type MobileMoneyProvider struct {
	client http.Client
}

// NewMobileMoneyProvider ...
func NewMobileMoneyProvider() *MobileMoneyProvider {
	return &MobileMoneyProvider{
		client: http.Client{Timeout: time.Second * 10},
	}
}

// Name ...
func (p *MobileMoneyProvider) Name() string {
	return models.ProviderMobileMoney
}

// Disburse ...
func (p *MobileMoneyProvider) Disburse(ctx context.Context, d Disbursement) (Receipt, error) {
	if d.Farmer.PhoneNumber == "" {
		return Receipt{}, models.PayoutError("Farmer has no mobile money number on file")
	}

	if os.Getenv("PAYOUT_MODE") != models.ExecutionLive {
		return Receipt{
			ExternalReference: "stub_" + d.Reference,
			ProviderCode:      "OK",
			ProviderLabel:     mobileRailLabel(d.Order.PaymentMethod),
			ExecutionMode:     models.ExecutionStub,
		}, nil
	}

	endpoint := fmt.Sprintf("%s/v1/disbursements", os.Getenv("MOMO_API_URL"))
	payload := map[string]interface{}{
		"reference":    d.Reference,
		"msisdn":       d.Farmer.PhoneNumber,
		"amount":       d.Amount,
		"currency":     d.Currency,
		"rail":         d.Order.PaymentMethod,
		"narration":    fmt.Sprintf("Escrow release for order %s", d.Order.OrderNumber),
		"callback_url": os.Getenv("MOMO_CALLBACK_URL"),
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(b))
	if err != nil {
		return Receipt{}, err
	}
	req.Close = true
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Authorization", "Bearer "+os.Getenv("MOMO_API_KEY"))

	resp, err := p.client.Do(req)
	if err != nil {
		return Receipt{}, err
	}
	defer resp.Body.Close()

	var body struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Receipt{}, fmt.Errorf("mobile money response unreadable: %w", err)
	}
	if resp.StatusCode >= 300 {
		return Receipt{}, models.PayoutError(
			fmt.Sprintf("Mobile money disbursement rejected (%d): %s", resp.StatusCode, body.Error))
	}

	return Receipt{
		ExternalReference: body.Reference,
		ProviderCode:      body.Status,
		ProviderLabel:     mobileRailLabel(d.Order.PaymentMethod),
		ExecutionMode:     models.ExecutionLive,
	}, nil
}

func mobileRailLabel(method string) string {
	if method == models.MethodAirtel {
		return "Airtel Money"
	}
	return "MTN Mobile Money"
}
