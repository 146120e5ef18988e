package notifications

import (
	"context"
	"os"

	"agrilink-bend/dao"
	"agrilink-bend/models"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// Notifiable defines the functionality of a notification object
type Notifiable interface {
	// Dispatches a push notification to currently configured message server (FCM)
	PushNotification(recipientToken, title, message string) error
	SendEscrowFundedNotification(order models.BuyerOrder)
	SendEscrowReleasedNotification(order models.BuyerOrder, amount int64)
	SendPayoutFailedNotification(order models.BuyerOrder, reason string)
	SendDisputeOpenedNotification(dispute models.Dispute, order models.BuyerOrder)
	SendOrderCancelledNotification(order models.BuyerOrder, reason string)
}

type notifiable struct {
	app     *firebase.App
	userDAO *dao.UserDAO
}

// NewNotifiable returns a new Notifiable implementation with access to all
// notifiable objects (email, fcm)
func NewNotifiable(userDAO *dao.UserDAO) (Notifiable, error) {
	serviceAccountKeyPath := os.Getenv("SERVICE_ACCOUNT_KEY_PATH")
	opt := option.WithCredentialsFile(serviceAccountKeyPath)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		return nil, err
	}

	return &notifiable{app: app, userDAO: userDAO}, nil
}
