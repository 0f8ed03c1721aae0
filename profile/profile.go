// Package profile manages user profiles, statuses and the community listing.
// Every profile or status change recomputes the user's search embedding.
package profile

import (
	"context"
	"errors"
	"time"

	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/log"
	"devspace-backend/ratelimit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Users interface {
	Get(ctx context.Context, id primitive.ObjectID) (*entity.User, error)
	SaveProfile(ctx context.Context, u *entity.User) error
	SetStatus(ctx context.Context, id, statusID primitive.ObjectID, content string, embedding []float64) error
	Community(ctx context.Context) ([]*entity.User, error)
}

type Statuses interface {
	Get(ctx context.Context, user primitive.ObjectID) (*entity.Status, error)
	Upsert(ctx context.Context, user primitive.ObjectID, content, duration string, expiration time.Time) (*entity.Status, error)
}

type Ideas interface {
	Ideas(ctx context.Context, owners []primitive.ObjectID) (map[primitive.ObjectID]*entity.Idea, error)
}

// Embedder turns text chunks into a single vector.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([]float64, error)
}

type Limits struct {
	Profile ratelimit.Limiter
	Status  ratelimit.Limiter
}

type StatusView struct {
	Status         string     `json:"status"`
	ExpirationDate *time.Time `json:"expirationDate"`
	Duration       string     `json:"duration"`
}

type CommunityUser struct {
	*entity.User
	Idea *entity.Idea `json:"idea"`
}

type Service struct {
	users    Users
	statuses Statuses
	ideas    Ideas
	embedder Embedder
	limits   Limits
}

func NewService(users Users, statuses Statuses, ideas Ideas, embedder Embedder, limits Limits) *Service {
	if limits.Profile == nil {
		limits.Profile = ratelimit.Unlimited{}
	}
	if limits.Status == nil {
		limits.Status = ratelimit.Unlimited{}
	}

	return &Service{
		users:    users,
		statuses: statuses,
		ideas:    ideas,
		embedder: embedder,
		limits:   limits,
	}
}

func (s *Service) embed(ctx context.Context, u *entity.User, status string) ([]float64, error) {
	vector, err := s.embedder.Embed(ctx, Chunk(Describe(u, status), ChunkSize))
	if err != nil {
		log.Logger.Error("embedding failed", zap.String("userID", u.ID.Hex()), zap.Error(err))
		if errors.Is(err, errs.ErrEmbedding) {
			return nil, err
		}
		return nil, errs.ErrEmbedding
	}
	return vector, nil
}

// Save overwrites the editable profile fields of in.ID and refreshes the embedding.
func (s *Service) Save(ctx context.Context, in *entity.User) error {
	if in == nil || in.ID.IsZero() {
		return errs.ErrInvalidID
	}
	if err := ratelimit.Guard(s.limits.Profile, in.ID.Hex()); err != nil {
		return err
	}

	u, err := s.users.Get(ctx, in.ID)
	if err != nil {
		return err
	}
	u.Name = in.Name
	u.Photo = in.Photo
	u.About = in.About

	status := ""
	st, err := s.statuses.Get(ctx, u.ID)
	switch {
	case err == nil:
		status = st.Content
	case !errors.Is(err, errs.ErrNotFound):
		return err
	}

	if u.Embedding, err = s.embed(ctx, u, status); err != nil {
		return err
	}
	if err := s.users.SaveProfile(ctx, u); err != nil {
		return err
	}

	log.Logger.Debug("profile saved", zap.String("userID", u.ID.Hex()))
	return nil
}

// SetStatus creates or replaces the user's status. The status document
// expires at expiration.
func (s *Service) SetStatus(ctx context.Context, userID primitive.ObjectID, content, duration string, expiration time.Time) (*entity.Status, error) {
	if content == "" || duration == "" || expiration.IsZero() {
		return nil, errs.ErrStatusRequired
	}
	if err := ratelimit.Guard(s.limits.Status, userID.Hex()); err != nil {
		return nil, err
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	st, err := s.statuses.Upsert(ctx, userID, content, duration, expiration)
	if err != nil {
		return nil, err
	}

	vector, err := s.embed(ctx, u, content)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetStatus(ctx, userID, st.ID, content, vector); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *Service) GetStatus(ctx context.Context, userID primitive.ObjectID) (*StatusView, error) {
	st, err := s.statuses.Get(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return &StatusView{}, nil
	}
	if err != nil {
		return nil, err
	}

	exp := st.ExpirationDate
	return &StatusView{Status: st.Content, ExpirationDate: &exp, Duration: st.Duration}, nil
}

// Community lists users that have a status or a devspace idea with a title.
func (s *Service) Community(ctx context.Context) ([]CommunityUser, error) {
	users, err := s.users.Community(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(users))
	for _, u := range users {
		if u.IsInDevspace {
			ids = append(ids, u.ID)
		}
	}
	ideas, err := s.ideas.Ideas(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := make([]CommunityUser, 0, len(users))
	for _, u := range users {
		idea := ideas[u.ID]
		if u.Status == "" && (idea == nil || idea.Title == "") {
			continue
		}
		res = append(res, CommunityUser{User: u, Idea: idea})
	}

	return res, nil
}

func (s *Service) Me(ctx context.Context, userID primitive.ObjectID) (*entity.User, error) {
	return s.users.Get(ctx, userID)
}
