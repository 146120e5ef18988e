package dao

import (
	"context"

	"agrilink-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserDAO represents a user DAO
type UserDAO struct {
	db         *mongo.Database
	Collection *mongo.Collection
}

// NewUserDAO returns a configured UserDAO
func NewUserDAO(ctx context.Context, db *mongo.Database) *UserDAO {
	return &UserDAO{
		db:         db,
		Collection: db.Collection("user"),
	}
}

// FindByID ... get a user by its id
func (dao *UserDAO) FindByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	docID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return user, mongo.ErrNoDocuments
	}
	err = dao.Collection.FindOne(ctx, bson.M{"_id": docID}).Decode(&user)
	return user, err
}
