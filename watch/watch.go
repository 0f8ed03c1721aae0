// Package watch turns MongoDB change streams on users and statuses into
// pushes to the affected user.
package watch

import (
	"context"
	"errors"

	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	EventUserUpdate   = "user-update"
	EventStatusDelete = "status-delete"
)

type Users interface {
	Get(ctx context.Context, id primitive.ObjectID) (*entity.User, error)
	ClearStatus(ctx context.Context, statusID primitive.ObjectID) (*entity.User, error)
}

type Emitter interface {
	Emit(userID, event string, data interface{}) bool
}

// Change is the part of a change stream event the watcher needs.
type Change struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
}

type StatusCleared struct {
	Content  string `json:"content"`
	Duration string `json:"duration"`
}

type Watcher struct {
	users   Users
	emitter Emitter
}

func NewWatcher(users Users, emitter Emitter) *Watcher {
	return &Watcher{users: users, emitter: emitter}
}

// HandleUser pushes the current user document to its owner.
func (w *Watcher) HandleUser(ctx context.Context, c *Change) {
	if c.OperationType == "delete" {
		return
	}

	u, err := w.users.Get(ctx, c.DocumentKey.ID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			log.Logger.Error("unable to load changed user", zap.String("userID", c.DocumentKey.ID.Hex()), zap.Error(err))
		}
		return
	}

	w.emitter.Emit(u.ID.Hex(), EventUserUpdate, u)
}

// HandleStatus clears the status of the user whose status document was
// deleted, usually by the expiry index.
func (w *Watcher) HandleStatus(ctx context.Context, c *Change) {
	if c.OperationType != "delete" {
		return
	}

	u, err := w.users.ClearStatus(ctx, c.DocumentKey.ID)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			log.Logger.Error("unable to clear status", zap.String("statusID", c.DocumentKey.ID.Hex()), zap.Error(err))
		}
		return
	}

	w.emitter.Emit(u.ID.Hex(), EventStatusDelete, StatusCleared{})
}

// Run watches both collections until ctx is done or either stream fails.
func (w *Watcher) Run(ctx context.Context, users, statuses *mongo.Collection) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() { errc <- stream(ctx, users, w.HandleUser) }()
	go func() { errc <- stream(ctx, statuses, w.HandleStatus) }()

	err := <-errc
	cancel()
	if err2 := <-errc; err == nil {
		err = err2
	}
	return err
}

func stream(ctx context.Context, c *mongo.Collection, handle func(context.Context, *Change)) error {
	logger := log.Logger.With(zap.String("collection", c.Name()))

	cs, err := c.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		logger.Error("failed to watch database", zap.Error(err))
		return errs.ErrDatabase
	}
	defer cs.Close(context.Background())

	for cs.Next(ctx) {
		change := &Change{}
		if err := cs.Decode(change); err != nil {
			logger.Error("decode error", zap.Error(err))
			continue
		}
		logger.Debug("change", zap.String("op", change.OperationType), zap.String("id", change.DocumentKey.ID.Hex()))

		handle(ctx, change)
	}
	if err := cs.Err(); err != nil && ctx.Err() == nil {
		logger.Error("change stream error", zap.Error(err))
		return errs.ErrDatabase
	}

	return nil
}
