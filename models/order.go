package models

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment statuses
const (
	PaymentPending     = "pending"
	PaymentDepositPaid = "deposit_paid"
	PaymentFailed      = "failed"
	PaymentRefunded    = "refunded"
)

// Escrow statuses
const (
	EscrowAwaitingPayment = "awaiting_payment"
	EscrowFunded          = "funded"
	EscrowReleased        = "released"
	EscrowRefunded        = "refunded"
	EscrowReleaseFailed   = "release_failed"
)

// Order lifecycle roll-up statuses
const (
	OrderActive    = "active"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
)

// Tracking stages, in delivery-pipeline order
const (
	StageAwaitingPayment     = "awaiting_payment"
	StagePaymentConfirmed    = "payment_confirmed"
	StageFarmerDispatching   = "farmer_dispatching"
	StageHubInspection       = "hub_inspection"
	StageReleasedForDelivery = "released_for_delivery"
	StageDelivered           = "delivered"
	StageCancelled           = "cancelled"
)

// TrackingSequence is the fixed delivery pipeline; cancelled is an absorbing
// state reachable from any non-terminal stage and is not part of the sequence.
var TrackingSequence = []string{
	StageAwaitingPayment,
	StagePaymentConfirmed,
	StageFarmerDispatching,
	StageHubInspection,
	StageReleasedForDelivery,
	StageDelivered,
}

// Payment methods
const (
	MethodMomo   = "momo"
	MethodAirtel = "airtel"
	MethodBank   = "bank"
	MethodCard   = "card"
)

// BuyerOrder represents one buyer purchase of one farmer batch. The payment,
// escrow and tracking axes are independent and never collapsed into one field.
type BuyerOrder struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	OrderNumber string             `json:"order_number" bson:"order_number"`
	Buyer       primitive.ObjectID `json:"buyer" bson:"buyer"`
	Farmer      primitive.ObjectID `json:"farmer" bson:"farmer"`
	Batch       primitive.ObjectID `json:"batch" bson:"batch"`

	Title       string   `json:"title" bson:"title"`
	CropKey     string   `json:"crop_key" bson:"crop_key"`
	CropNames   []string `json:"crop_names" bson:"crop_names"`
	Destination string   `json:"destination" bson:"destination"`
	FarmerName  string   `json:"farmer_name" bson:"farmer_name"`
	BuyerName   string   `json:"buyer_name" bson:"buyer_name"`

	TotalWeight float64 `json:"total_weight" bson:"total_weight"`
	TotalPrice  int64   `json:"total_price" bson:"total_price"`
	PricePerKg  int64   `json:"price_per_kg" bson:"price_per_kg"`
	Currency    string  `json:"currency" bson:"currency"`

	DepositPercent float64 `json:"deposit_percent" bson:"deposit_percent"`
	DepositAmount  int64   `json:"deposit_amount" bson:"deposit_amount"`
	BalanceDue     int64   `json:"balance_due" bson:"balance_due"`
	ServiceFee     int64   `json:"service_fee" bson:"service_fee"`
	InsuranceFee   int64   `json:"insurance_fee" bson:"insurance_fee"`
	AmountDueToday int64   `json:"amount_due_today" bson:"amount_due_today"`

	PaymentMethod string `json:"payment_method" bson:"payment_method"`
	PaymentStatus string `json:"payment_status" bson:"payment_status"`
	EscrowStatus  string `json:"escrow_status" bson:"escrow_status"`
	Status        string `json:"status" bson:"status"`
	TrackingStage string `json:"tracking_stage" bson:"tracking_stage"`

	// Provider linkage; at most one non-empty transfer id per released order
	CheckoutSessionID string `json:"checkout_session_id,omitempty" bson:"checkout_session_id"`
	PaymentIntentID   string `json:"payment_intent_id,omitempty" bson:"payment_intent_id"`
	ChargeID          string `json:"charge_id,omitempty" bson:"charge_id"`
	TransferID        string `json:"transfer_id,omitempty" bson:"transfer_id"`
	TransferGroup     string `json:"transfer_group,omitempty" bson:"transfer_group"`
	ProviderPayStatus string `json:"provider_pay_status,omitempty" bson:"provider_pay_status"`

	// Write-once transition timestamps
	TrackingUpdatedAt   time.Time  `json:"tracking_updated_at" bson:"tracking_updated_at"`
	EstimatedArrivalAt  *time.Time `json:"estimated_arrival_at,omitempty" bson:"estimated_arrival_at"`
	PaymentConfirmedAt  *time.Time `json:"payment_confirmed_at,omitempty" bson:"payment_confirmed_at"`
	EscrowFundedAt      *time.Time `json:"escrow_funded_at,omitempty" bson:"escrow_funded_at"`
	EscrowReleasedAt    *time.Time `json:"escrow_released_at,omitempty" bson:"escrow_released_at"`
	DeliveryConfirmedAt *time.Time `json:"delivery_confirmed_at,omitempty" bson:"delivery_confirmed_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" bson:"completed_at"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// PayoutAmount is the amount disbursed to the farmer on escrow release
func (o *BuyerOrder) PayoutAmount() int64 {
	if o.DepositAmount > 0 {
		return o.DepositAmount
	}
	return o.AmountDueToday
}

// Terminal reports whether the order can no longer be cancelled
func (o *BuyerOrder) Terminal() bool {
	return o.Status != OrderActive ||
		o.EscrowStatus == EscrowReleased ||
		o.TrackingStage == StageDelivered
}

// escrowEdges maps an escrow status to the statuses reachable from it
var escrowEdges = map[string][]string{
	EscrowAwaitingPayment: {EscrowFunded, EscrowRefunded},
	EscrowFunded:          {EscrowReleased, EscrowReleaseFailed, EscrowRefunded},
	EscrowReleaseFailed:   {EscrowFunded},
	EscrowReleased:        {},
	EscrowRefunded:        {},
}

// ValidEscrowTransition reports whether from -> to is an allowed escrow edge
func ValidEscrowTransition(from, to string) bool {
	for _, next := range escrowEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextTrackingStage returns the stage that follows current in the fixed
// sequence; empty string when current is terminal or unknown.
func NextTrackingStage(current string) string {
	for i, stage := range TrackingSequence {
		if stage == current && i+1 < len(TrackingSequence) {
			return TrackingSequence[i+1]
		}
	}
	return ""
}

// QuoteOptions tune the commercial terms of an order quote
type QuoteOptions struct {
	DepositPercent    float64
	ServiceFeeRate    float64
	ServiceFeeMinimum int64
	InsuranceFee      int64
}

// DefaultQuoteOptions mirror the platform defaults: 60% deposit, 1% service
// fee with a 5000 RWF floor, no insurance.
func DefaultQuoteOptions() QuoteOptions {
	return QuoteOptions{
		DepositPercent:    0.6,
		ServiceFeeRate:    0.01,
		ServiceFeeMinimum: 5000,
		InsuranceFee:      0,
	}
}

// OrderQuote is the computed commercial breakdown for an order
type OrderQuote struct {
	DepositPercent float64 `json:"deposit_percent"`
	DepositAmount  int64   `json:"deposit_amount"`
	BalanceDue     int64   `json:"balance_due"`
	ServiceFee     int64   `json:"service_fee"`
	InsuranceFee   int64   `json:"insurance_fee"`
	AmountDueToday int64   `json:"amount_due_today"`
}

// CalculateOrderQuote derives deposit, balance and fees from a total price.
// Invariants: depositAmount+balanceDue == totalPrice and amountDueToday ==
// depositAmount+serviceFee+insuranceFee; all amounts are whole currency units.
func CalculateOrderQuote(totalPrice int64, opts QuoteOptions) OrderQuote {
	if totalPrice < 0 {
		totalPrice = 0
	}

	deposit := int64(math.Round(float64(totalPrice) * opts.DepositPercent))
	balance := totalPrice - deposit
	if balance < 0 {
		balance = 0
	}

	var serviceFee int64
	if totalPrice > 0 {
		serviceFee = int64(math.Round(float64(totalPrice) * opts.ServiceFeeRate))
		if serviceFee < opts.ServiceFeeMinimum {
			serviceFee = opts.ServiceFeeMinimum
		}
	}

	return OrderQuote{
		DepositPercent: opts.DepositPercent,
		DepositAmount:  deposit,
		BalanceDue:     balance,
		ServiceFee:     serviceFee,
		InsuranceFee:   opts.InsuranceFee,
		AmountDueToday: deposit + serviceFee + opts.InsuranceFee,
	}
}

// TransferGroupFor builds the provider correlation id linking a checkout
// session to its eventual payout transfer.
func TransferGroupFor(orderNumber string) string {
	return fmt.Sprintf("buyer_order_%s", orderNumber)
}
