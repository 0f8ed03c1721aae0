package store

import (
	"context"

	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const VectorIndex = "vector_index"

var withoutEmbedding = bson.M{"embedding": 0}

type Users struct {
	c *mongo.Collection
}

func (s *Users) Collection() *mongo.Collection {
	return s.c
}

// Get returns the user without its embedding.
func (s *Users) Get(ctx context.Context, id primitive.ObjectID) (*entity.User, error) {
	u := &entity.User{}
	err := s.c.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(withoutEmbedding)).Decode(u)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotFound
		}

		log.Logger.Error("database error", zap.String("userID", id.Hex()), zap.Error(err))
		return nil, errs.ErrDatabase
	}

	return u, nil
}

func (s *Users) SetInDevspace(ctx context.Context, id primitive.ObjectID, in bool) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{"is_in_devspace": in}})
	if err != nil {
		log.Logger.Error("database error", zap.String("userID", id.Hex()), zap.Error(err))
		return errs.ErrDatabase
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}

	return nil
}

func (s *Users) Summaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]entity.UserSummary, error) {
	res := make(map[primitive.ObjectID]entity.UserSummary, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	opts := options.Find().SetProjection(bson.M{"name": 1, "email": 1, "photo": 1})
	cursor, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		log.Logger.Error("database error", zap.Error(err))
		return nil, errs.ErrDatabase
	}
	defer cursor.Close(context.Background())

	for cursor.Next(ctx) {
		u := entity.UserSummary{}
		if err := cursor.Decode(&u); err != nil {
			log.Logger.Error("decode error", zap.Error(err))
			return nil, errs.ErrDatabase
		}
		res[u.ID] = u
	}
	if err := cursor.Err(); err != nil {
		log.Logger.Error("cursor error", zap.Error(err))
		return nil, errs.ErrDatabase
	}

	return res, nil
}

// SaveProfile overwrites the editable profile fields and the embedding.
func (s *Users) SaveProfile(ctx context.Context, u *entity.User) error {
	res, err := s.c.UpdateByID(ctx, u.ID, bson.M{"$set": bson.M{
		"name":      u.Name,
		"photo":     u.Photo,
		"about":     u.About,
		"embedding": u.Embedding,
	}})
	if err != nil {
		log.Logger.Error("database error", zap.String("userID", u.ID.Hex()), zap.Error(err))
		return errs.ErrDatabase
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}

	return nil
}

func (s *Users) SetStatus(ctx context.Context, id, statusID primitive.ObjectID, content string, embedding []float64) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"status":    content,
		"status_id": statusID,
		"embedding": embedding,
	}})
	if err != nil {
		log.Logger.Error("database error", zap.String("userID", id.Hex()), zap.Error(err))
		return errs.ErrDatabase
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}

	return nil
}

// ClearStatus resets the status of the user that referenced statusID and
// returns that user.
func (s *Users) ClearStatus(ctx context.Context, statusID primitive.ObjectID) (*entity.User, error) {
	u := &entity.User{}
	opts := options.FindOneAndUpdate().
		SetProjection(withoutEmbedding).
		SetReturnDocument(options.After)
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"status_id": statusID},
		bson.M{"$set": bson.M{"status": ""}, "$unset": bson.M{"status_id": ""}},
		opts,
	).Decode(u)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errs.ErrNotFound
		}

		log.Logger.Error("database error", zap.String("statusID", statusID.Hex()), zap.Error(err))
		return nil, errs.ErrDatabase
	}

	return u, nil
}

// Community lists users that either have a status or joined devspace.
func (s *Users) Community(ctx context.Context) ([]*entity.User, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"status": bson.M{"$exists": true, "$ne": ""}},
		bson.M{"is_in_devspace": true},
	}}
	cursor, err := s.c.Find(ctx, filter, options.Find().SetProjection(withoutEmbedding))
	if err != nil {
		log.Logger.Error("database error", zap.Error(err))
		return nil, errs.ErrDatabase
	}

	users := make([]*entity.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		log.Logger.Error("database error", zap.Error(err))
		return nil, errs.ErrDatabase
	}

	return users, nil
}

// VectorSearch runs an Atlas $vectorSearch over user embeddings.
func (s *Users) VectorSearch(ctx context.Context, vector []float64, limit int) ([]*entity.User, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         VectorIndex,
			"path":          "embedding",
			"queryVector":   vector,
			"numCandidates": limit * 10,
			"limit":         limit,
		}}},
		{{Key: "$project", Value: withoutEmbedding}},
	}

	cursor, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		log.Logger.Error("database error", zap.Error(err))
		return nil, errs.ErrDatabase
	}

	users := make([]*entity.User, 0, limit)
	if err := cursor.All(ctx, &users); err != nil {
		log.Logger.Error("database error", zap.Error(err))
		return nil, errs.ErrDatabase
	}

	return users, nil
}
