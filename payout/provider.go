package payout

import (
	"context"

	"agrilink-bend/models"
)

// Disbursement is one transfer request handed to a provider
type Disbursement struct {
	Order     models.BuyerOrder
	Farmer    models.User
	Amount    int64
	Currency  string
	Reference string
}

// Receipt is what a provider reports back for a disbursement
type Receipt struct {
	ExternalReference string
	ProviderCode      string
	ProviderLabel     string
	ExecutionMode     string
}

// Provider is one payout rail
type Provider interface {
	Name() string
	Disburse(ctx context.Context, d Disbursement) (Receipt, error)
}

// manualRail reports rails with no automated provider. Their orders are
// never release-claimed; each attempt only records a manual_required audit
// for the operations desk.
func manualRail(method string) bool {
	return method == models.MethodBank
}

// providerForMethod maps the buyer's payment method onto the farmer payout
// rail.
func providerForMethod(method string) string {
	switch method {
	case models.MethodCard:
		return models.ProviderPaypal
	case models.MethodMomo, models.MethodAirtel:
		return models.ProviderMobileMoney
	case models.MethodBank:
		return models.ProviderBank
	default:
		return models.ProviderUnknown
	}
}
