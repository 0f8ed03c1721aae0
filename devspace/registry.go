package devspace

import (
	"context"

	"devspace-backend/entity"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Registry persists one devspace record per owner.
//
// Implementations return errs.ErrNotFound for a missing owner,
// errs.ErrAlreadyExists when Create hits an existing owner and
// errs.ErrConflict when Save finds that the stored version has moved since
// the record was read. A successful Save increments rec.Version.
type Registry interface {
	Create(ctx context.Context, rec *entity.Devspace) error
	Get(ctx context.Context, owner primitive.ObjectID) (*entity.Devspace, error)
	Save(ctx context.Context, rec *entity.Devspace) error
	Delete(ctx context.Context, owner primitive.ObjectID) error
}

// Users is the slice of the user directory the workflow depends on.
type Users interface {
	Get(ctx context.Context, id primitive.ObjectID) (*entity.User, error)
	SetInDevspace(ctx context.Context, id primitive.ObjectID, in bool) error
	Summaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]entity.UserSummary, error)
}

// FindInvitation returns the pending invitation with the given id, or nil.
func FindInvitation(rec *entity.Devspace, id primitive.ObjectID) *entity.Invitation {
	for i := range rec.PendingInvitations {
		if rec.PendingInvitations[i].ID == id {
			return &rec.PendingInvitations[i]
		}
	}
	return nil
}

func withoutID(ids []primitive.ObjectID, drop primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// union appends the ids of b missing from a, keeping order and dropping duplicates.
func union(a []primitive.ObjectID, b ...primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(a)+len(b))
	for _, id := range append(append([]primitive.ObjectID{}, a...), b...) {
		if !containsID(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func removeSentTo(rec *entity.Devspace, to primitive.ObjectID) bool {
	out := make([]entity.SentInvitation, 0, len(rec.SentInvitations))
	for _, s := range rec.SentInvitations {
		if s.To != to {
			out = append(out, s)
		}
	}
	changed := len(out) != len(rec.SentInvitations)
	rec.SentInvitations = out
	return changed
}

func removePendingFrom(rec *entity.Devspace, from primitive.ObjectID) bool {
	out := make([]entity.Invitation, 0, len(rec.PendingInvitations))
	for _, p := range rec.PendingInvitations {
		if p.From != from {
			out = append(out, p)
		}
	}
	changed := len(out) != len(rec.PendingInvitations)
	rec.PendingInvitations = out
	return changed
}

func removePendingID(rec *entity.Devspace, id primitive.ObjectID) bool {
	out := make([]entity.Invitation, 0, len(rec.PendingInvitations))
	for _, p := range rec.PendingInvitations {
		if p.ID != id {
			out = append(out, p)
		}
	}
	changed := len(out) != len(rec.PendingInvitations)
	rec.PendingInvitations = out
	return changed
}
