package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Batch statuses
const (
	BatchDraft     = "draft"
	BatchActive    = "active"
	BatchSold      = "sold"
	BatchCancelled = "cancelled"
)

// BatchProduct is one crop line of a farmer batch
type BatchProduct struct {
	Name     string  `json:"name" bson:"name"`
	Unit     string  `json:"unit" bson:"unit"`
	Quantity float64 `json:"quantity" bson:"quantity"`
}

// Batch is a farmer produce listing a buyer orders against
type Batch struct {
	ID          primitive.ObjectID `json:"id" bson:"_id"`
	Farmer      primitive.ObjectID `json:"farmer" bson:"farmer"`
	Products    []BatchProduct     `json:"products" bson:"products"`
	TotalWeight float64            `json:"total_weight" bson:"total_weight"`
	TotalPrice  int64              `json:"total_price" bson:"total_price"`
	Status      string             `json:"status" bson:"status"`
	Destination string             `json:"destination" bson:"destination"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	SoldAt      *time.Time         `json:"sold_at,omitempty" bson:"sold_at,omitempty"`
}
