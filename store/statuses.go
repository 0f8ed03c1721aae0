package store

import (
	"context"
	"time"

	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type Statuses struct {
	c *mongo.Collection
}

func (s *Statuses) Collection() *mongo.Collection {
	return s.c
}

func (s *Statuses) Get(ctx context.Context, user primitive.ObjectID) (*entity.Status, error) {
	st := &entity.Status{}
	err := s.c.FindOne(ctx, bson.M{"user": user}).Decode(st)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotFound
		}

		log.Logger.Error("database error", zap.String("userID", user.Hex()), zap.Error(err))
		return nil, errs.ErrDatabase
	}

	return st, nil
}

// Upsert creates or replaces the content of a user's single status.
func (s *Statuses) Upsert(ctx context.Context, user primitive.ObjectID, content, duration string, expiration time.Time) (*entity.Status, error) {
	st := &entity.Status{}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"user": user},
		bson.M{"$set": bson.M{
			"content":         content,
			"duration":        duration,
			"expiration_date": expiration,
		}},
		opts,
	).Decode(st)
	if err != nil {
		log.Logger.Error("database error", zap.String("userID", user.Hex()), zap.Error(err))
		return nil, errs.ErrDatabase
	}

	return st, nil
}
