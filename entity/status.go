package entity

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

type Status struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	User           primitive.ObjectID `bson:"user"`
	Content        string             `bson:"content"`
	Duration       string             `bson:"duration"`
	ExpirationDate time.Time          `bson:"expiration_date"`
}
