package store

import (
	"context"

	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Devspaces implements devspace.Registry. Saves replace the whole document
// guarded by its version.
type Devspaces struct {
	c *mongo.Collection
}

func (s *Devspaces) Create(ctx context.Context, rec *entity.Devspace) error {
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	rec.Version = 1

	_, err := s.c.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrAlreadyExists
		}

		log.Logger.Error("failed inserting devspace", zap.String("owner", rec.Owner.Hex()), zap.Error(err))
		return errs.ErrDatabase
	}

	return nil
}

func (s *Devspaces) Get(ctx context.Context, owner primitive.ObjectID) (*entity.Devspace, error) {
	rec := &entity.Devspace{}
	err := s.c.FindOne(ctx, bson.M{"owner": owner}).Decode(rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotFound
		}

		log.Logger.Error("database error", zap.String("owner", owner.Hex()), zap.Error(err))
		return nil, errs.ErrDatabase
	}

	normalize(rec)
	return rec, nil
}

func (s *Devspaces) Save(ctx context.Context, rec *entity.Devspace) error {
	next := *rec
	next.Version = rec.Version + 1

	res, err := s.c.ReplaceOne(ctx, bson.M{"owner": rec.Owner, "version": rec.Version}, &next)
	if err != nil {
		log.Logger.Error("database error", zap.String("owner", rec.Owner.Hex()), zap.Error(err))
		return errs.ErrDatabase
	}

	if res.MatchedCount == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"owner": rec.Owner})
		if err != nil {
			log.Logger.Error("database error", zap.String("owner", rec.Owner.Hex()), zap.Error(err))
			return errs.ErrDatabase
		}
		if n == 0 {
			return errs.ErrNotFound
		}

		return errs.ErrConflict
	}

	rec.Version = next.Version
	return nil
}

func (s *Devspaces) Delete(ctx context.Context, owner primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"owner": owner})
	if err != nil {
		log.Logger.Error("database error", zap.String("owner", owner.Hex()), zap.Error(err))
		return errs.ErrDatabase
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}

	return nil
}

// Ideas returns the ideas of the given owners keyed by owner.
func (s *Devspaces) Ideas(ctx context.Context, owners []primitive.ObjectID) (map[primitive.ObjectID]*entity.Idea, error) {
	res := make(map[primitive.ObjectID]*entity.Idea)
	if len(owners) == 0 {
		return res, nil
	}

	cursor, err := s.c.Find(ctx, bson.M{"owner": bson.M{"$in": owners}, "idea": bson.M{"$exists": true}})
	if err != nil {
		log.Logger.Error("database error", zap.Error(err))
		return nil, errs.ErrDatabase
	}
	defer cursor.Close(context.Background())

	for cursor.Next(ctx) {
		rec := &entity.Devspace{}
		if err := cursor.Decode(rec); err != nil {
			log.Logger.Error("decode error", zap.Error(err))
			return nil, errs.ErrDatabase
		}
		res[rec.Owner] = rec.Idea
	}
	if err := cursor.Err(); err != nil {
		log.Logger.Error("cursor error", zap.Error(err))
		return nil, errs.ErrDatabase
	}

	return res, nil
}

// normalize replaces nil slices so records encode as empty arrays.
func normalize(rec *entity.Devspace) {
	if rec.Team == nil {
		rec.Team = []primitive.ObjectID{}
	}
	if rec.PendingInvitations == nil {
		rec.PendingInvitations = []entity.Invitation{}
	}
	if rec.SentInvitations == nil {
		rec.SentInvitations = []entity.SentInvitation{}
	}
}
