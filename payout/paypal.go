package payout

import (
	"context"
	"fmt"
	"os"

	"agrilink-bend/models"

	"github.com/plutov/paypal/v4"
)

// PaypalProvider pays card-funded orders out through the PayPal Payouts API.
// The disbursement reference doubles as the sender batch id, so replays of
// the same attempt collapse on the provider side. Without PAYOUT_MODE=live it
// runs in stub mode and fabricates a provider reference instead of calling
// out.
type PaypalProvider struct{}

// NewPaypalProvider ...
func NewPaypalProvider() *PaypalProvider {
	return &PaypalProvider{}
}

// Name ...
func (p *PaypalProvider) Name() string {
	return models.ProviderPaypal
}

// Disburse ...
func (p *PaypalProvider) Disburse(ctx context.Context, d Disbursement) (Receipt, error) {
	var (
		base         = paypal.APIBaseSandBox
		clientID     = os.Getenv("PAYPAL_CLIENT_ID")
		clientSecret = os.Getenv("PAYPAL_CLIENT_SECRET")
	)
	if os.Getenv("ENV") != "dev" {
		base = paypal.APIBaseLive
	}

	if d.Farmer.PaypalPayoutEmail == "" {
		return Receipt{}, models.PayoutError("Farmer has no PayPal payout email on file")
	}

	if os.Getenv("PAYOUT_MODE") != models.ExecutionLive {
		return Receipt{
			ExternalReference: "stub_" + d.Reference,
			ProviderCode:      "PENDING",
			ProviderLabel:     "PayPal Payouts",
			ExecutionMode:     models.ExecutionStub,
		}, nil
	}

	c, err := paypal.NewClient(clientID, clientSecret, base)
	if err != nil {
		return Receipt{}, err
	}
	accessToken, err := c.GetAccessToken(ctx)
	if err != nil {
		return Receipt{}, err
	}
	c.SetAccessToken(accessToken.Token)

	payoutReq := paypal.Payout{
		SenderBatchHeader: &paypal.SenderBatchHeader{
			SenderBatchID: d.Reference,
			EmailSubject:  "AgriLink escrow release",
		},
		Items: []paypal.PayoutItem{
			{
				RecipientType: "EMAIL",
				Receiver:      d.Farmer.PaypalPayoutEmail,
				Amount: &paypal.AmountPayout{
					Value:    fmt.Sprintf("%d", d.Amount),
					Currency: d.Currency,
				},
				Note:         fmt.Sprintf("Escrow release for order %s", d.Order.OrderNumber),
				SenderItemID: d.Reference,
			},
		},
	}

	resp, err := c.CreateSinglePayout(ctx, payoutReq)
	if err != nil {
		return Receipt{}, err
	}
	if resp.BatchHeader == nil {
		return Receipt{}, models.PayoutError("PayPal returned no batch header")
	}

	return Receipt{
		ExternalReference: resp.BatchHeader.PayoutBatchID,
		ProviderCode:      resp.BatchHeader.BatchStatus,
		ProviderLabel:     "PayPal Payouts",
		ExecutionMode:     models.ExecutionLive,
	}, nil
}
