package devspace

import (
	"context"

	"devspace-backend/entity"
	"devspace-backend/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Kind string

const (
	KindInvitationSent      Kind = "invitation-sent"
	KindInvitationReceived  Kind = "invitation-received"
	KindInvitationCancelled Kind = "invitation-cancelled"
	KindInvitationRejected  Kind = "invitation-rejected"
	KindInvitationWithdrawn Kind = "invitation-withdrawn"
	KindTeamUpdated         Kind = "devspace-update"
	KindLeft                Kind = "devspace-left"
)

// Event is emitted after a record has been persisted. Record is the state of
// UserID's record after the commit and is nil once the record is gone.
type Event struct {
	Kind       Kind
	UserID     primitive.ObjectID
	Record     *entity.Devspace
	Invitation *entity.Invitation
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev *Event) error
}

type DispatcherFunc func(ctx context.Context, ev *Event) error

func (f DispatcherFunc) Dispatch(ctx context.Context, ev *Event) error {
	return f(ctx, ev)
}

// Dispatchers fans an event out to every dispatcher, logging failures.
type Dispatchers []Dispatcher

func (d Dispatchers) Dispatch(ctx context.Context, ev *Event) error {
	for _, v := range d {
		if err := v.Dispatch(ctx, ev); err != nil {
			log.Logger.Warn("dispatch failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("userID", ev.UserID.Hex()),
				zap.Error(err),
			)
		}
	}
	return nil
}

var nopDispatcher = DispatcherFunc(func(context.Context, *Event) error { return nil })
