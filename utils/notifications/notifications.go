package notifications

import (
	"context"
	"fmt"
	"log"
	"os"

	"agrilink-bend/models"
)

func cErr(tag string, err error) {
	if err != nil {
		log.Printf("%s: %v", tag, err)
		return
	}
}

// SendEscrowFundedNotification tells both parties the deposit landed in
// escrow.
func (n *notifiable) SendEscrowFundedNotification(order models.BuyerOrder) {
	buyer, err := n.getUser(order.Buyer.Hex())
	cErr("rtv_buyer", err)
	farmer, err := n.getUser(order.Farmer.Hex())
	cErr("rtv_farmer", err)

	data := OrderMailData{
		OrderNumber: order.OrderNumber,
		Name:        buyer.FullName,
		Amount:      order.DepositAmount,
		Currency:    order.Currency,
	}
	err = SendEscrowFundedMail(buyer.Email, data)
	cErr("err_send_escrow_funded_mail", err)

	message := fmt.Sprintf(escrowFundedMsg, order.OrderNumber)
	err = n.PushNotification(buyer.FCMToken, escrowFundedTitle, message)
	cErr("err_escrow_funded_PN", err)

	farmerMsg := fmt.Sprintf(orderCommittedMsg, order.OrderNumber)
	err = n.PushNotification(farmer.FCMToken, orderCommittedTitle, farmerMsg)
	cErr("err_order_committed_PN", err)
}

// SendEscrowReleasedNotification tells the farmer their payout is on the way
func (n *notifiable) SendEscrowReleasedNotification(order models.BuyerOrder, amount int64) {
	farmer, err := n.getUser(order.Farmer.Hex())
	cErr("rtv_farmer", err)

	data := OrderMailData{
		OrderNumber: order.OrderNumber,
		Name:        farmer.FullName,
		Amount:      amount,
		Currency:    order.Currency,
	}
	err = SendEscrowReleasedMail(farmer.Email, data)
	cErr("err_send_escrow_released_mail", err)

	message := fmt.Sprintf(escrowReleasedMsg, amount, order.Currency, order.OrderNumber)
	err = n.PushNotification(farmer.FCMToken, escrowReleasedTitle, message)
	cErr("err_escrow_released_PN", err)
}

// SendPayoutFailedNotification alerts the finance desk about a failed
// release.
func (n *notifiable) SendPayoutFailedNotification(order models.BuyerOrder, reason string) {
	financeEmail := os.Getenv("FINANCE_ALERT_EMAIL")
	if financeEmail == "" {
		return
	}

	data := PayoutFailedData{
		OrderNumber: order.OrderNumber,
		FarmerName:  order.FarmerName,
		Amount:      order.PayoutAmount(),
		Currency:    order.Currency,
		Reason:      reason,
	}
	err := SendPayoutFailedMail(financeEmail, data)
	cErr("err_send_payout_failed_mail", err)
}

// SendDisputeOpenedNotification ...
func (n *notifiable) SendDisputeOpenedNotification(dispute models.Dispute, order models.BuyerOrder) {
	financeEmail := os.Getenv("FINANCE_ALERT_EMAIL")
	if financeEmail != "" {
		data := DisputeMailData{
			OrderNumber: order.OrderNumber,
			Issue:       dispute.Issue,
			Severity:    dispute.Severity,
			HubName:     dispute.HubName,
		}
		err := SendDisputeOpenedMail(financeEmail, data)
		cErr("err_send_dispute_opened_mail", err)
	}

	farmer, err := n.getUser(order.Farmer.Hex())
	cErr("rtv_farmer", err)

	message := fmt.Sprintf(disputeOpenedMsg, order.OrderNumber)
	err = n.PushNotification(farmer.FCMToken, disputeOpenedTitle, message)
	cErr("err_dispute_opened_PN", err)
}

// SendOrderCancelledNotification ...
func (n *notifiable) SendOrderCancelledNotification(order models.BuyerOrder, reason string) {
	buyer, err := n.getUser(order.Buyer.Hex())
	cErr("rtv_buyer", err)

	data := OrderMailData{
		OrderNumber: order.OrderNumber,
		Name:        buyer.FullName,
		Amount:      order.DepositAmount,
		Currency:    order.Currency,
		Reason:      reason,
	}
	err = SendOrderCancelledMail(buyer.Email, data)
	cErr("err_send_order_cancelled_mail", err)

	message := fmt.Sprintf(orderCancelledMsg, order.OrderNumber)
	err = n.PushNotification(buyer.FCMToken, orderCancelledTitle, message)
	cErr("err_order_cancelled_PN", err)
}

// private

func (n *notifiable) getUser(id string) (models.User, error) {
	return n.userDAO.FindByID(context.Background(), id)
}
