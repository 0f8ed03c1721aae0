// Package devspace implements team formation through invitations.
//
// Every user that joined devspace owns one record holding their teammates,
// the invitations they received and the invitations they sent. The Engine
// mutates those records and keeps teammates' records consistent with each
// other. Records are saved one at a time with a version check; there is no
// transaction spanning several records.
package devspace

import (
	"context"
	"errors"
	"fmt"

	"devspace-backend/entity"
	"devspace-backend/errs"
	"devspace-backend/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultMaxTeamSize    = 4
	DefaultMaxOutstanding = 3
	DefaultMaxRetries     = 3
)

// errUnchanged aborts an update without saving.
var errUnchanged = errors.New("record unchanged")

type Options struct {
	// MaxTeamSize bounds a team, the owner included.
	MaxTeamSize int
	// MaxOutstanding bounds len(team) + len(sent invitations) of a record.
	MaxOutstanding int
	// MaxRetries is how many times a conflicting save is retried.
	MaxRetries int
}

type Engine struct {
	registry   Registry
	users      Users
	dispatcher Dispatcher
	opts       Options
	newID      func() primitive.ObjectID
	tracer     trace.Tracer
}

func NewEngine(registry Registry, users Users, dispatcher Dispatcher, opts Options) *Engine {
	if opts.MaxTeamSize <= 0 {
		opts.MaxTeamSize = DefaultMaxTeamSize
	}
	if opts.MaxOutstanding <= 0 {
		opts.MaxOutstanding = DefaultMaxOutstanding
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if dispatcher == nil {
		dispatcher = nopDispatcher
	}

	return &Engine{
		registry:   registry,
		users:      users,
		dispatcher: dispatcher,
		opts:       opts,
		newID:      primitive.NewObjectID,
		tracer:     otel.Tracer("devspace-backend/devspace"),
	}
}

func (e *Engine) Options() Options {
	return e.opts
}

// update loads owner's record, applies fn and saves it, reloading and
// reapplying fn when the save loses a version race.
func (e *Engine) update(ctx context.Context, owner primitive.ObjectID, fn func(rec *entity.Devspace) error) (*entity.Devspace, bool, error) {
	for attempt := 0; ; attempt++ {
		rec, err := e.registry.Get(ctx, owner)
		if err != nil {
			return nil, false, err
		}

		if err := fn(rec); err != nil {
			if err == errUnchanged {
				return rec, false, nil
			}
			return nil, false, err
		}

		err = e.registry.Save(ctx, rec)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, errs.ErrConflict) || attempt >= e.opts.MaxRetries {
			return nil, false, err
		}

		log.Logger.Debug("retrying conflicting save", zap.String("owner", owner.Hex()), zap.Int("attempt", attempt+1))
	}
}

func (e *Engine) emit(ctx context.Context, kind Kind, userID primitive.ObjectID, rec *entity.Devspace, inv *entity.Invitation) {
	ev := &Event{Kind: kind, UserID: userID, Record: rec, Invitation: inv}
	if err := e.dispatcher.Dispatch(ctx, ev); err != nil {
		log.Logger.Warn("dispatch failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "devspace."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Join marks the user as part of devspace and creates their record. Joining
// again returns the existing record.
func (e *Engine) Join(ctx context.Context, userID primitive.ObjectID) (user *entity.User, rec *entity.Devspace, err error) {
	ctx, span := e.start(ctx, "Join", attribute.String("user", userID.Hex()))
	defer func() { finish(span, err) }()

	user, err = e.users.Get(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	rec, err = e.registry.Get(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		rec = entity.NewDevspace(userID)
		err = e.registry.Create(ctx, rec)
		if errors.Is(err, errs.ErrAlreadyExists) {
			rec, err = e.registry.Get(ctx, userID)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	if !user.IsInDevspace {
		if err = e.users.SetInDevspace(ctx, userID, true); err != nil {
			return nil, nil, err
		}
		user.IsInDevspace = true
	}

	return user, rec, nil
}

// Send records an invitation from sender to receiver on both records. The
// receiver gets a snapshot of the sender's team, sender included.
func (e *Engine) Send(ctx context.Context, senderID, receiverID primitive.ObjectID) (err error) {
	ctx, span := e.start(ctx, "Send", attribute.String("sender", senderID.Hex()), attribute.String("receiver", receiverID.Hex()))
	defer func() { finish(span, err) }()
	logger := log.Logger.With(zap.String("sender", senderID.Hex()), zap.String("receiver", receiverID.Hex()))

	if senderID == receiverID {
		return errs.ErrSelfInvite
	}

	sender, err := e.registry.Get(ctx, senderID)
	if err != nil {
		return err
	}
	if _, err = e.registry.Get(ctx, receiverID); err != nil {
		return err
	}
	if err = e.checkCanSend(sender, receiverID); err != nil {
		return err
	}

	var snapshot []primitive.ObjectID
	sender, _, err = e.update(ctx, senderID, func(rec *entity.Devspace) error {
		if err := e.checkCanSend(rec, receiverID); err != nil {
			return err
		}
		snapshot = union(rec.Team, senderID)
		rec.SentInvitations = append(rec.SentInvitations, entity.SentInvitation{To: receiverID})
		return nil
	})
	if err != nil {
		return err
	}

	inv := entity.Invitation{ID: e.newID(), From: senderID, TeamMembers: snapshot}
	receiver, _, err := e.update(ctx, receiverID, func(rec *entity.Devspace) error {
		removePendingFrom(rec, senderID)
		rec.PendingInvitations = append(rec.PendingInvitations, inv)
		return nil
	})
	if err != nil {
		logger.Error("receiver update failed after sender was saved", zap.Error(err))
		return err
	}

	logger.Debug("invitation sent", zap.String("invitation", inv.ID.Hex()))
	e.emit(ctx, KindInvitationSent, sender.Owner, sender, nil)
	e.emit(ctx, KindInvitationReceived, receiver.Owner, receiver, &inv)

	return nil
}

func (e *Engine) checkCanSend(sender *entity.Devspace, receiverID primitive.ObjectID) error {
	if sender.HasSentTo(receiverID) {
		return errs.ErrAlreadyInvited
	}
	if containsID(sender.Team, receiverID) {
		return errs.ErrAlreadyExists
	}
	if sender.Outstanding() >= e.opts.MaxOutstanding {
		return errs.ErrCapacityExceeded
	}
	return nil
}

// Cancel withdraws sender's invitation to receiver. Cancelling an invitation
// that no longer exists is not an error.
func (e *Engine) Cancel(ctx context.Context, senderID, receiverID primitive.ObjectID) (err error) {
	ctx, span := e.start(ctx, "Cancel", attribute.String("sender", senderID.Hex()), attribute.String("receiver", receiverID.Hex()))
	defer func() { finish(span, err) }()

	if _, err = e.registry.Get(ctx, senderID); err != nil {
		return err
	}
	if _, err = e.registry.Get(ctx, receiverID); err != nil {
		return err
	}

	sender, senderChanged, err := e.update(ctx, senderID, func(rec *entity.Devspace) error {
		if !removeSentTo(rec, receiverID) {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return err
	}

	receiver, receiverChanged, err := e.update(ctx, receiverID, func(rec *entity.Devspace) error {
		if !removePendingFrom(rec, senderID) {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return err
	}

	if senderChanged {
		e.emit(ctx, KindInvitationCancelled, sender.Owner, sender, nil)
	}
	if receiverChanged {
		e.emit(ctx, KindInvitationCancelled, receiver.Owner, receiver, nil)
	}

	return nil
}

// Accept joins userID to the inviter's current team. The accepting user
// drops every other invitation they held or sent and leaves any previous
// team, and every member of the new team is updated to list the same
// membership.
func (e *Engine) Accept(ctx context.Context, userID, invitationID primitive.ObjectID) (team []primitive.ObjectID, err error) {
	ctx, span := e.start(ctx, "Accept", attribute.String("user", userID.Hex()), attribute.String("invitation", invitationID.Hex()))
	defer func() { finish(span, err) }()
	logger := log.Logger.With(zap.String("userID", userID.Hex()), zap.String("invitation", invitationID.Hex()))

	var (
		full      []primitive.ObjectID
		former    []primitive.ObjectID
		discarded []entity.Invitation
		withdrawn []entity.SentInvitation
	)
	rec, _, err := e.update(ctx, userID, func(rec *entity.Devspace) error {
		found := FindInvitation(rec, invitationID)
		if found == nil {
			return errs.ErrNotFound
		}
		if len(union(found.TeamMembers, userID)) > e.opts.MaxTeamSize {
			return errs.ErrCapacityExceeded
		}

		members, err := e.currentMembers(ctx, found)
		if err != nil {
			return err
		}
		full = union(members, userID)
		if len(full) > e.opts.MaxTeamSize {
			return errs.ErrCapacityExceeded
		}

		former = former[:0]
		for _, m := range rec.Team {
			if !containsID(full, m) {
				former = append(former, m)
			}
		}
		discarded = discarded[:0]
		for _, p := range rec.PendingInvitations {
			if p.ID != invitationID {
				discarded = append(discarded, p)
			}
		}
		withdrawn = append(withdrawn[:0], rec.SentInvitations...)

		rec.Team = withoutID(full, userID)
		rec.PendingInvitations = []entity.Invitation{}
		rec.SentInvitations = []entity.SentInvitation{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, KindTeamUpdated, rec.Owner, rec, nil)

	var merr error
	for _, member := range former {
		if err := e.dropMember(ctx, member, userID); err != nil {
			merr = multierr.Append(merr, fmt.Errorf("former teammate %s: %w", member.Hex(), err))
		}
	}
	for _, member := range full {
		if member == userID {
			continue
		}
		if err := e.joinMember(ctx, member, userID, full); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				logger.Warn("team member has no devspace record", zap.String("member", member.Hex()))
				continue
			}
			merr = multierr.Append(merr, fmt.Errorf("member %s: %w", member.Hex(), err))
		}
	}

	for _, p := range discarded {
		if containsID(full, p.From) {
			continue
		}
		if err := e.dropSent(ctx, p.From, userID, KindInvitationRejected); err != nil {
			merr = multierr.Append(merr, fmt.Errorf("inviter %s: %w", p.From.Hex(), err))
		}
	}
	for _, s := range withdrawn {
		if err := e.dropPending(ctx, s.To, userID); err != nil {
			merr = multierr.Append(merr, fmt.Errorf("invitee %s: %w", s.To.Hex(), err))
		}
	}

	if merr != nil {
		logger.Error("accept left some records behind", zap.Error(merr))
		return rec.Team, fmt.Errorf("%w: %v", errs.ErrDatabase, merr)
	}

	logger.Debug("invitation accepted", zap.Int("teamSize", len(full)))
	return rec.Team, nil
}

// currentMembers resolves the team an invitation joins from the inviter's
// record at accept time. The snapshot is used when the inviter has no record.
func (e *Engine) currentMembers(ctx context.Context, inv *entity.Invitation) ([]primitive.ObjectID, error) {
	inviter, err := e.registry.Get(ctx, inv.From)
	if errors.Is(err, errs.ErrNotFound) {
		return union(inv.TeamMembers), nil
	}
	if err != nil {
		return nil, err
	}
	return union(inviter.Team, inv.From), nil
}

// dropMember removes `gone` from member's team. A missing member record is ignored.
func (e *Engine) dropMember(ctx context.Context, member, gone primitive.ObjectID) error {
	rec, changed, err := e.update(ctx, member, func(r *entity.Devspace) error {
		if !containsID(r.Team, gone) {
			return errUnchanged
		}
		r.Team = withoutID(r.Team, gone)
		return nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if changed {
		e.emit(ctx, KindTeamUpdated, rec.Owner, rec, nil)
	}
	return nil
}

// joinMember rewrites member's team to the full membership minus itself and
// forgets member's invitation to the joining user. Sent invitations that no
// longer fit under MaxOutstanding are withdrawn, newest first.
func (e *Engine) joinMember(ctx context.Context, member, joined primitive.ObjectID, full []primitive.ObjectID) error {
	var overflow []entity.SentInvitation
	rec, _, err := e.update(ctx, member, func(rec *entity.Devspace) error {
		rec.Team = withoutID(full, member)
		removeSentTo(rec, joined)

		overflow = overflow[:0]
		for len(rec.SentInvitations) > 0 && rec.Outstanding() > e.opts.MaxOutstanding {
			last := len(rec.SentInvitations) - 1
			overflow = append(overflow, rec.SentInvitations[last])
			rec.SentInvitations = rec.SentInvitations[:last]
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(ctx, KindTeamUpdated, rec.Owner, rec, nil)

	var merr error
	for _, s := range overflow {
		merr = multierr.Append(merr, e.dropPending(ctx, s.To, member))
	}
	return merr
}

// dropSent removes owner's sent invitation to `to`. A missing owner record is ignored.
func (e *Engine) dropSent(ctx context.Context, owner, to primitive.ObjectID, kind Kind) error {
	rec, changed, err := e.update(ctx, owner, func(rec *entity.Devspace) error {
		if !removeSentTo(rec, to) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if changed {
		e.emit(ctx, kind, rec.Owner, rec, nil)
	}
	return nil
}

// dropPending removes the invitation from `from` held by owner. A missing owner record is ignored.
func (e *Engine) dropPending(ctx context.Context, owner, from primitive.ObjectID) error {
	rec, changed, err := e.update(ctx, owner, func(rec *entity.Devspace) error {
		if !removePendingFrom(rec, from) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if changed {
		e.emit(ctx, KindInvitationWithdrawn, rec.Owner, rec, nil)
	}
	return nil
}

// Reject discards the invitation and clears the matching sent entries on the
// inviting side. Rejecting an unknown invitation is a no-op.
func (e *Engine) Reject(ctx context.Context, userID, invitationID primitive.ObjectID) (err error) {
	ctx, span := e.start(ctx, "Reject", attribute.String("user", userID.Hex()), attribute.String("invitation", invitationID.Hex()))
	defer func() { finish(span, err) }()

	rec, err := e.registry.Get(ctx, userID)
	if err != nil {
		return err
	}

	var merr error
	if inv := FindInvitation(rec, invitationID); inv != nil {
		for _, member := range inv.TeamMembers {
			if member == userID {
				continue
			}
			merr = multierr.Append(merr, e.dropSent(ctx, member, userID, KindInvitationRejected))
		}
	}

	rec, changed, err := e.update(ctx, userID, func(rec *entity.Devspace) error {
		if !removePendingID(rec, invitationID) {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return err
	}
	if changed {
		e.emit(ctx, KindInvitationRejected, rec.Owner, rec, nil)
	}

	if merr != nil {
		return fmt.Errorf("%w: %v", errs.ErrDatabase, merr)
	}
	return nil
}

// Leave removes the user from every teammate, drops all invitations that
// reference them and deletes their record.
func (e *Engine) Leave(ctx context.Context, userID primitive.ObjectID) (err error) {
	ctx, span := e.start(ctx, "Leave", attribute.String("user", userID.Hex()))
	defer func() { finish(span, err) }()

	rec, err := e.registry.Get(ctx, userID)
	if err != nil {
		return err
	}

	var merr error
	for _, member := range rec.Team {
		mrec, _, err := e.update(ctx, member, func(r *entity.Devspace) error {
			if !containsID(r.Team, userID) {
				return errUnchanged
			}
			r.Team = withoutID(r.Team, userID)
			return nil
		})
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			merr = multierr.Append(merr, err)
			continue
		}
		e.emit(ctx, KindTeamUpdated, mrec.Owner, mrec, nil)
	}
	for _, s := range rec.SentInvitations {
		merr = multierr.Append(merr, e.dropPending(ctx, s.To, userID))
	}
	for _, p := range rec.PendingInvitations {
		merr = multierr.Append(merr, e.dropSent(ctx, p.From, userID, KindInvitationRejected))
	}
	if merr != nil {
		return fmt.Errorf("%w: %v", errs.ErrDatabase, merr)
	}

	if err = e.registry.Delete(ctx, userID); err != nil {
		return err
	}
	if err = e.users.SetInDevspace(ctx, userID, false); err != nil {
		return err
	}

	e.emit(ctx, KindLeft, userID, nil, nil)
	return nil
}

// SetIdea stores the project pitch shown next to the user in the community list.
func (e *Engine) SetIdea(ctx context.Context, userID primitive.ObjectID, idea entity.Idea) (rec *entity.Devspace, err error) {
	ctx, span := e.start(ctx, "SetIdea", attribute.String("user", userID.Hex()))
	defer func() { finish(span, err) }()

	rec, _, err = e.update(ctx, userID, func(r *entity.Devspace) error {
		if idea.Title == "" && idea.Description == "" {
			r.Idea = nil
			return nil
		}
		r.Idea = &idea
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.emit(ctx, KindTeamUpdated, rec.Owner, rec, nil)
	return rec, nil
}

// Info resolves the user references of a record into profile summaries.
func (e *Engine) Info(ctx context.Context, userID primitive.ObjectID) (info *entity.DevspaceInfo, err error) {
	ctx, span := e.start(ctx, "Info", attribute.String("user", userID.Hex()))
	defer func() { finish(span, err) }()

	rec, err := e.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := append([]primitive.ObjectID{}, rec.Team...)
	for _, p := range rec.PendingInvitations {
		ids = append(ids, p.From)
	}
	for _, s := range rec.SentInvitations {
		ids = append(ids, s.To)
	}

	summaries, err := e.users.Summaries(ctx, union(ids))
	if err != nil {
		return nil, err
	}
	summary := func(id primitive.ObjectID) entity.UserSummary {
		if s, ok := summaries[id]; ok {
			return s
		}
		return entity.UserSummary{ID: id}
	}

	info = &entity.DevspaceInfo{
		Owner:              rec.Owner,
		Team:               make([]entity.UserSummary, 0, len(rec.Team)),
		PendingInvitations: make([]entity.InvitationInfo, 0, len(rec.PendingInvitations)),
		SentInvitations:    make([]entity.SentInfo, 0, len(rec.SentInvitations)),
		Idea:               rec.Idea,
	}
	for _, id := range rec.Team {
		info.Team = append(info.Team, summary(id))
	}
	for _, p := range rec.PendingInvitations {
		info.PendingInvitations = append(info.PendingInvitations, entity.InvitationInfo{
			ID:          p.ID,
			From:        summary(p.From),
			TeamMembers: p.TeamMembers,
		})
	}
	for _, s := range rec.SentInvitations {
		info.SentInvitations = append(info.SentInvitations, entity.SentInfo{To: summary(s.To)})
	}

	return info, nil
}
