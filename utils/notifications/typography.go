package notifications

var (
	escrowFundedMsg   = "Your deposit for order #%s is secured in escrow"
	orderCommittedMsg = "Order #%s is funded, prepare your batch for dispatch"
	escrowReleasedMsg = "%d %s has been released to you for order #%s"
	disputeOpenedMsg  = "A dispute was opened on order #%s"
	orderCancelledMsg = "Order #%s has been cancelled"
)

var (
	escrowFundedTitle   = "Deposit Secured"
	orderCommittedTitle = "New Funded Order"
	escrowReleasedTitle = "Payout Released"
	disputeOpenedTitle  = "Dispute Opened"
	orderCancelledTitle = "Order Cancelled"
)
