package models

// CreateOrderReq represents the request payload to order a farmer batch
type CreateOrderReq struct {
	BatchID       string `json:"batch_id"`
	PaymentMethod string `json:"payment_method"`
}

// CancelOrderReq ...
type CancelOrderReq struct {
	Reason string `json:"reason"`
}

// AdvanceTrackingReq moves an order to the next delivery stage
type AdvanceTrackingReq struct {
	NextStage string `json:"next_stage"`
}

// CreateDisputeReq represents an admin-submitted dispute
type CreateDisputeReq struct {
	OrderID         string  `json:"order_id"`
	BatchID         string  `json:"batch_id"`
	HubID           string  `json:"hub_id"`
	HubName         string  `json:"hub_name"`
	Region          string  `json:"region"`
	Commodity       string  `json:"commodity"`
	Issue           string  `json:"issue"`
	AnomalyType     string  `json:"anomaly_type"`
	Severity        string  `json:"severity"`
	ConfidenceScore float64 `json:"confidence_score"`
	AIDetectedGrade string  `json:"ai_detected_grade"`
	IssueDeltaPct   float64 `json:"issue_delta_percent"`
	OperatorComment string  `json:"operator_comments"`
	AdminComment    string  `json:"admin_comments"`
}

// ReviewDisputeReq carries one review action against a dispute
type ReviewDisputeReq struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

// BatchReleaseReq triggers a batch payout run
type BatchReleaseReq struct {
	Limit int `json:"limit"`
}
