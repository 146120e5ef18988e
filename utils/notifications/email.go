package notifications

import (
	"agrilink-bend/utils"
)

// OrderMailData represents order lifecycle email notification data
type OrderMailData struct {
	OrderNumber string
	Name        string
	Amount      int64
	Currency    string
	Reason      string
}

// PayoutFailedData ...
type PayoutFailedData struct {
	OrderNumber string
	FarmerName  string
	Amount      int64
	Currency    string
	Reason      string
}

// DisputeMailData ...
type DisputeMailData struct {
	OrderNumber string
	Issue       string
	Severity    string
	HubName     string
}

// SendEscrowFundedMail ...
func SendEscrowFundedMail(to string, data OrderMailData) error {
	subject := "Deposit Secured in Escrow"
	err := send(to, subject, "escrow_funded.html", data)
	return err
}

// SendEscrowReleasedMail ...
func SendEscrowReleasedMail(to string, data OrderMailData) error {
	subject := "Your Payout Has Been Released"
	err := send(to, subject, "escrow_released.html", data)

	return err
}

// SendPayoutFailedMail ...
func SendPayoutFailedMail(to string, data PayoutFailedData) error {
	subject := "Escrow Release Failed"
	err := send(to, subject, "payout_failed.html", data)

	return err
}

// SendDisputeOpenedMail ...
func SendDisputeOpenedMail(to string, data DisputeMailData) error {
	subject := "New Dispute Opened"
	return send(to, subject, "dispute_opened.html", data)
}

// SendOrderCancelledMail ...
func SendOrderCancelledMail(to string, data OrderMailData) error {
	subject := "Order Cancelled"
	return send(to, subject, "order_cancelled.html", data)
}

func send(to, subject, temp string, data interface{}) error {
	payload := utils.EmailData{
		Title:       subject,
		ContentData: data,
		Template:    temp,
		EmailTo:     to,
	}

	// mailgun first, SMTP when it is down or unconfigured
	if err := utils.SendEmail(payload); err != nil {
		cErr("err_mailgun_send", err)
		return utils.SendEmailSMTP(payload)
	}
	return nil
}
