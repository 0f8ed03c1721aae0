// Package store holds the MongoDB collections backing users, statuses and
// devspace records.
package store

import (
	"context"
	"time"

	"devspace-backend/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/bsonx"
	"go.uber.org/zap"
)

const (
	UsersCollection     = "users"
	StatusesCollection  = "statuses"
	DevspacesCollection = "devspaces"
)

type Store struct {
	DB        *mongo.Database
	Users     *Users
	Statuses  *Statuses
	Devspaces *Devspaces
}

func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return client, nil
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)

	return &Store{
		DB:        db,
		Users:     &Users{c: db.Collection(UsersCollection)},
		Statuses:  &Statuses{c: db.Collection(StatusesCollection)},
		Devspaces: &Devspaces{c: db.Collection(DevspacesCollection)},
	}
}

// EnsureIndexes creates the unique and TTL indexes the application relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.Devspaces.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bsonx.Doc{{Key: "owner", Value: bsonx.Int32(1)}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		log.Logger.Error("unable to create index", zap.String("collection", DevspacesCollection), zap.Error(err))
		return err
	}

	_, err = s.Users.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bsonx.Doc{{Key: "email", Value: bsonx.Int32(1)}}, Options: options.Index().SetUnique(true)},
		{Keys: bsonx.Doc{{Key: "status_id", Value: bsonx.Int32(1)}}},
	})
	if err != nil {
		log.Logger.Error("unable to create index", zap.String("collection", UsersCollection), zap.Error(err))
		return err
	}

	_, err = s.Statuses.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bsonx.Doc{{Key: "user", Value: bsonx.Int32(1)}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expiration_date", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		log.Logger.Error("unable to create index", zap.String("collection", StatusesCollection), zap.Error(err))
		return err
	}

	return nil
}
