package entity

import "go.mongodb.org/mongo-driver/bson/primitive"

type User struct {
	ID    primitive.ObjectID `bson:"_id" json:"_id"`
	Email string             `bson:"email" json:"email"`
	Name  string             `bson:"name" json:"name"`
	Photo string             `bson:"photo" json:"photo"`
	About About              `bson:"about" json:"about"`

	Status       string              `bson:"status" json:"status"`
	StatusID     *primitive.ObjectID `bson:"status_id,omitempty" json:"statusId,omitempty"`
	IsInDevspace bool                `bson:"is_in_devspace" json:"isInDevspace"`

	Embedding []float64 `bson:"embedding,omitempty" json:"-"`
}

type About struct {
	Gender  string   `bson:"gender" json:"gender"`
	Campus  string   `bson:"campus" json:"campus"`
	Bio     string   `bson:"bio" json:"bio"`
	Skills  []string `bson:"skills" json:"skills"`
	Hobbies []string `bson:"hobbies" json:"hobbies"`
	Socials []string `bson:"socials" json:"socials"`
}

// UserSummary is the lightweight projection shown next to devspace entries.
type UserSummary struct {
	ID    primitive.ObjectID `bson:"_id" json:"_id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email" json:"email"`
	Photo string             `bson:"photo" json:"photo"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Photo: u.Photo}
}
