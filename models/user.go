package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles
const (
	RoleUserAdmin  = "ADMIN"
	RoleUserFarmer = "FARMER"
	RoleUserBuyer  = "BUYER"
)

// SystemActorID marks actions taken by background jobs rather than a user
var SystemActorID = primitive.NilObjectID

// User represents an app user; only the fields the financial lifecycle
// touches are modelled here.
type User struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	FullName    string             `json:"full_name" bson:"full_name"`
	Email       string             `json:"email" bson:"email"`
	PhoneNumber string             `json:"phone_number" bson:"phone_number"`
	Role        string             `json:"role" bson:"role"`
	FCMToken    string             `json:"fcm_token" bson:"fcm_token"`
	// PaypalPayoutEmail is the farmer's card-rail payout destination
	PaypalPayoutEmail string    `json:"paypal_payout_email" bson:"paypal_payout_email"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" bson:"updated_at"`
}
