package devspace

import (
	"context"

	"devspace-backend/entity"
	"devspace-backend/errs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		registry *memRegistry
		users    *memUsers
		events   *recorder
		engine   *Engine

		a, b, c, d, e, x primitive.ObjectID
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = newMemRegistry()
		users = newMemUsers()
		events = &recorder{}
		engine = NewEngine(registry, users, events, Options{MaxTeamSize: 4, MaxOutstanding: 3, MaxRetries: 2})

		a = users.add("a")
		b = users.add("b")
		c = users.add("c")
		d = users.add("d")
		e = users.add("e")
		x = users.add("x")
	})

	join := func(ids ...primitive.ObjectID) {
		for _, id := range ids {
			_, _, err := engine.Join(ctx, id)
			Expect(err).To(BeNil())
		}
	}

	send := func(from, to primitive.ObjectID) {
		Expect(engine.Send(ctx, from, to)).To(Succeed())
	}

	invitationFrom := func(owner, from primitive.ObjectID) entity.Invitation {
		for _, p := range registry.snapshot(owner).PendingInvitations {
			if p.From == from {
				return p
			}
		}
		Fail("no invitation from " + from.Hex())
		return entity.Invitation{}
	}

	accept := func(owner, from primitive.ObjectID) {
		_, err := engine.Accept(ctx, owner, invitationFrom(owner, from).ID)
		Expect(err).To(BeNil())
	}

	members := func(owner primitive.ObjectID) []primitive.ObjectID {
		return append(registry.snapshot(owner).Team, owner)
	}

	expectWithinCap := func() {
		for owner := range registry.recs {
			Expect(registry.snapshot(owner).Outstanding()).To(BeNumerically("<=", 3), "owner %s", owner.Hex())
		}
	}

	Describe("Join", func() {
		Specify("creates an empty record and marks the user", func() {
			user, rec, err := engine.Join(ctx, a)
			Expect(err).To(BeNil())
			Expect(user.IsInDevspace).To(BeTrue())
			Expect(rec.Owner).To(Equal(a))
			Expect(rec.Team).To(BeEmpty())
			Expect(rec.PendingInvitations).To(BeEmpty())
			Expect(rec.SentInvitations).To(BeEmpty())

			stored, err := users.Get(ctx, a)
			Expect(err).To(BeNil())
			Expect(stored.IsInDevspace).To(BeTrue())
		})

		Specify("joining twice keeps the existing record", func() {
			join(a, b)
			send(a, b)

			_, rec, err := engine.Join(ctx, a)
			Expect(err).To(BeNil())
			Expect(rec.SentInvitations).To(HaveLen(1))
		})

		Specify("unknown user", func() {
			ghost := primitive.NewObjectID()
			_, _, err := engine.Join(ctx, ghost)
			Expect(err).To(MatchBackendError(errs.ErrNotFound))
			Expect(registry.snapshot(ghost)).To(BeNil())
		})
	})

	Describe("Send", func() {
		BeforeEach(func() {
			join(a, b, c, d, e)
		})

		Specify("records the invitation on both sides", func() {
			send(a, b)

			pending := registry.snapshot(b).PendingInvitations
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].From).To(Equal(a))
			Expect(pending[0].TeamMembers).To(Equal([]primitive.ObjectID{a}))
			Expect(pending[0].ID.IsZero()).To(BeFalse())

			Expect(registry.snapshot(a).SentInvitations).To(Equal([]entity.SentInvitation{{To: b}}))
		})

		Specify("notifies sender and receiver", func() {
			send(a, b)

			Expect(events.kinds(a)).To(ConsistOf(KindInvitationSent))
			Expect(events.kinds(b)).To(ConsistOf(KindInvitationReceived))
			for _, ev := range events.events {
				if ev.Kind == KindInvitationReceived {
					Expect(ev.Invitation).NotTo(BeNil())
					Expect(ev.Invitation.From).To(Equal(a))
				}
			}
		})

		Specify("missing receiver record", func() {
			err := engine.Send(ctx, a, x)
			Expect(err).To(MatchBackendError(errs.ErrNotFound))
			Expect(registry.snapshot(a).SentInvitations).To(BeEmpty())
		})

		Specify("missing sender record", func() {
			err := engine.Send(ctx, x, a)
			Expect(err).To(MatchBackendError(errs.ErrNotFound))
			Expect(registry.snapshot(a).PendingInvitations).To(BeEmpty())
		})

		Specify("cannot invite yourself", func() {
			Expect(engine.Send(ctx, a, a)).To(MatchBackendError(errs.ErrSelfInvite))
		})

		Specify("cannot invite the same user twice", func() {
			send(a, b)
			Expect(engine.Send(ctx, a, b)).To(MatchBackendError(errs.ErrAlreadyInvited))
			Expect(registry.snapshot(b).PendingInvitations).To(HaveLen(1))
		})

		Specify("refuses once team and sent invitations reach the cap", func() {
			send(a, b)
			send(a, c)
			send(a, d)
			before := registry.saves

			err := engine.Send(ctx, a, e)
			Expect(err).To(MatchBackendError(errs.ErrCapacityExceeded))
			Expect(registry.saves).To(Equal(before))
			Expect(registry.snapshot(a).SentInvitations).To(HaveLen(3))
			Expect(registry.snapshot(e).PendingInvitations).To(BeEmpty())
		})

		Specify("the cap holds for every record after every send", func() {
			ids := []primitive.ObjectID{a, b, c, d, e}
			for _, from := range ids {
				for _, to := range ids {
					_ = engine.Send(ctx, from, to)
					expectWithinCap()
				}
			}
		})

		Specify("retries a save that lost a version race", func() {
			registry.conflicts[a] = 1

			send(a, b)
			Expect(registry.snapshot(a).SentInvitations).To(HaveLen(1))
			Expect(registry.snapshot(b).PendingInvitations).To(HaveLen(1))
		})

		Specify("gives up after the retry budget", func() {
			registry.conflicts[a] = 5

			err := engine.Send(ctx, a, b)
			Expect(err).To(MatchBackendError(errs.ErrConflict))
			Expect(registry.snapshot(b).PendingInvitations).To(BeEmpty())
		})
	})

	Describe("Cancel", func() {
		BeforeEach(func() {
			join(a, b)
			send(a, b)
		})

		Specify("removes the invitation from both records", func() {
			Expect(engine.Cancel(ctx, a, b)).To(Succeed())

			Expect(registry.snapshot(a).SentInvitations).To(BeEmpty())
			Expect(registry.snapshot(b).PendingInvitations).To(BeEmpty())
		})

		Specify("is idempotent", func() {
			Expect(engine.Cancel(ctx, a, b)).To(Succeed())
			saves := registry.saves
			before := events.events

			Expect(engine.Cancel(ctx, a, b)).To(Succeed())
			Expect(registry.saves).To(Equal(saves))
			Expect(events.events).To(HaveLen(len(before)))
		})

		Specify("missing record", func() {
			Expect(engine.Cancel(ctx, a, x)).To(MatchBackendError(errs.ErrNotFound))
		})
	})

	Describe("Accept", func() {
		BeforeEach(func() {
			join(a, b, c, d, e, x)
		})

		Specify("two users form a team", func() {
			send(a, b)

			team, err := engine.Accept(ctx, b, invitationFrom(b, a).ID)
			Expect(err).To(BeNil())
			Expect(team).To(Equal([]primitive.ObjectID{a}))

			recB := registry.snapshot(b)
			Expect(recB.Team).To(Equal([]primitive.ObjectID{a}))
			Expect(recB.PendingInvitations).To(BeEmpty())
			Expect(recB.SentInvitations).To(BeEmpty())

			recA := registry.snapshot(a)
			Expect(recA.Team).To(Equal([]primitive.ObjectID{b}))
			Expect(recA.SentInvitations).To(BeEmpty())

			Expect(events.kinds(a)).To(ContainElement(KindTeamUpdated))
			Expect(events.kinds(b)).To(ContainElement(KindTeamUpdated))
		})

		Specify("every member sees the same team", func() {
			send(a, b)
			accept(b, a)
			send(a, c)
			accept(c, a)

			for _, m := range []primitive.ObjectID{a, b, c} {
				Expect(members(m)).To(ConsistOf(a, b, c))
			}

			send(b, d)
			accept(d, b)

			for _, m := range []primitive.ObjectID{a, b, c, d} {
				Expect(members(m)).To(ConsistOf(a, b, c, d))
			}

			Expect(engine.Send(ctx, a, e)).To(MatchBackendError(errs.ErrCapacityExceeded))
		})

		Specify("refuses a snapshot that would exceed the team size", func() {
			inv := entity.Invitation{ID: primitive.NewObjectID(), From: a, TeamMembers: []primitive.ObjectID{a, b, c, e}}
			rec := entity.NewDevspace(d)
			rec.PendingInvitations = []entity.Invitation{inv}
			registry.put(rec)
			recA := registry.snapshot(a)
			recA.SentInvitations = []entity.SentInvitation{{To: d}}
			registry.put(recA)

			beforeD := registry.snapshot(d)
			beforeA := registry.snapshot(a)

			_, err := engine.Accept(ctx, d, inv.ID)
			Expect(err).To(MatchBackendError(errs.ErrCapacityExceeded))
			Expect(registry.snapshot(d)).To(Equal(beforeD))
			Expect(registry.snapshot(a)).To(Equal(beforeA))
		})

		Specify("unknown invitation", func() {
			_, err := engine.Accept(ctx, b, primitive.NewObjectID())
			Expect(err).To(MatchBackendError(errs.ErrNotFound))
		})

		Specify("unknown record", func() {
			_, err := engine.Accept(ctx, primitive.NewObjectID(), primitive.NewObjectID())
			Expect(err).To(MatchBackendError(errs.ErrNotFound))
		})

		Specify("prunes the sent entry of a competing inviter", func() {
			send(e, d)
			send(c, d)

			accept(d, e)

			Expect(registry.snapshot(c).SentInvitations).To(BeEmpty())
			Expect(registry.snapshot(c).Team).To(BeEmpty())
			Expect(registry.snapshot(e).Team).To(Equal([]primitive.ObjectID{d}))
			Expect(registry.snapshot(d).PendingInvitations).To(BeEmpty())
		})

		Specify("withdraws the invitations the accepting user had sent", func() {
			send(b, c)
			send(a, b)

			accept(b, a)

			Expect(registry.snapshot(b).SentInvitations).To(BeEmpty())
			Expect(registry.snapshot(c).PendingInvitations).To(BeEmpty())
		})

		Specify("withdraws a teammate's newest invitations that no longer fit", func() {
			send(a, x)
			accept(x, a)
			send(x, c)
			send(x, d)
			send(a, b)

			accept(b, a)

			Expect(members(x)).To(ConsistOf(a, b, x))
			Expect(registry.snapshot(x).SentInvitations).To(Equal([]entity.SentInvitation{{To: c}}))
			Expect(registry.snapshot(d).PendingInvitations).To(BeEmpty())
			Expect(registry.snapshot(c).PendingInvitations).To(HaveLen(1))
			expectWithinCap()
		})

		Specify("skips members without a record", func() {
			ghost := primitive.NewObjectID()
			inv := entity.Invitation{ID: primitive.NewObjectID(), From: a, TeamMembers: []primitive.ObjectID{ghost, a}}
			rec := registry.snapshot(b)
			rec.PendingInvitations = []entity.Invitation{inv}
			registry.put(rec)
			recA := registry.snapshot(a)
			recA.Team = []primitive.ObjectID{ghost}
			registry.put(recA)

			team, err := engine.Accept(ctx, b, inv.ID)
			Expect(err).To(BeNil())
			Expect(team).To(ConsistOf(ghost, a))
			Expect(registry.snapshot(a).Team).To(ConsistOf(ghost, b))
		})

		Specify("an older invitation joins the inviter's current team", func() {
			send(a, b)
			send(a, x)
			accept(x, a)
			Expect(invitationFrom(b, a).TeamMembers).To(Equal([]primitive.ObjectID{a}))

			accept(b, a)

			for _, m := range []primitive.ObjectID{a, b, x} {
				Expect(members(m)).To(ConsistOf(a, b, x))
			}
			expectWithinCap()
		})

		Specify("refuses when the inviter's team has grown past the team size", func() {
			inv := entity.Invitation{ID: primitive.NewObjectID(), From: a, TeamMembers: []primitive.ObjectID{a}}
			rec := registry.snapshot(e)
			rec.PendingInvitations = []entity.Invitation{inv}
			registry.put(rec)
			recA := registry.snapshot(a)
			recA.Team = []primitive.ObjectID{b, c, d}
			registry.put(recA)

			beforeE := registry.snapshot(e)

			_, err := engine.Accept(ctx, e, inv.ID)
			Expect(err).To(MatchBackendError(errs.ErrCapacityExceeded))
			Expect(registry.snapshot(e)).To(Equal(beforeE))
			Expect(registry.snapshot(a).Team).To(Equal([]primitive.ObjectID{b, c, d}))
		})

		Specify("switching teams removes the user from the old team", func() {
			send(a, b)
			accept(b, a)
			send(a, c)
			accept(c, a)
			send(d, b)

			accept(b, d)

			Expect(members(b)).To(ConsistOf(b, d))
			Expect(members(d)).To(ConsistOf(b, d))
			Expect(members(a)).To(ConsistOf(a, c))
			Expect(members(c)).To(ConsistOf(a, c))
			Expect(registry.snapshot(a).Outstanding()).To(Equal(1))
			Expect(events.kinds(a)).To(ContainElement(KindTeamUpdated))
			expectWithinCap()
		})

		Specify("a failing member does not undo the accepting user", func() {
			send(a, b)
			registry.failSave[a] = errs.ErrDatabase

			_, err := engine.Accept(ctx, b, invitationFrom(b, a).ID)
			Expect(err).To(MatchBackendError(errs.ErrDatabase))
			Expect(registry.snapshot(b).Team).To(Equal([]primitive.ObjectID{a}))
		})
	})

	Describe("Reject", func() {
		BeforeEach(func() {
			join(a, b, x)
		})

		Specify("removes the invitation and the sender's entry", func() {
			send(a, b)

			Expect(engine.Reject(ctx, b, invitationFrom(b, a).ID)).To(Succeed())
			Expect(registry.snapshot(b).PendingInvitations).To(BeEmpty())
			Expect(registry.snapshot(a).SentInvitations).To(BeEmpty())
			Expect(events.kinds(a)).To(ContainElement(KindInvitationRejected))
		})

		Specify("touches every member named in the snapshot", func() {
			send(a, x)
			accept(x, a)
			send(a, b)
			inv := invitationFrom(b, a)
			Expect(inv.TeamMembers).To(ConsistOf(a, x))

			Expect(engine.Reject(ctx, b, inv.ID)).To(Succeed())
			Expect(registry.snapshot(a).SentInvitations).To(BeEmpty())
			Expect(registry.snapshot(x).SentInvitations).To(BeEmpty())
			Expect(registry.snapshot(x).Team).To(Equal([]primitive.ObjectID{a}))
		})

		Specify("unknown invitation is a no-op", func() {
			saves := registry.saves
			Expect(engine.Reject(ctx, b, primitive.NewObjectID())).To(Succeed())
			Expect(registry.saves).To(Equal(saves))
		})

		Specify("missing record", func() {
			Expect(engine.Reject(ctx, primitive.NewObjectID(), primitive.NewObjectID())).To(MatchBackendError(errs.ErrNotFound))
		})
	})

	Describe("Leave", func() {
		BeforeEach(func() {
			join(a, b, c, d)
			send(a, b)
			accept(b, a)
			send(a, c)
			send(d, a)
		})

		Specify("removes every trace of the user", func() {
			Expect(engine.Leave(ctx, a)).To(Succeed())

			Expect(registry.snapshot(a)).To(BeNil())
			Expect(registry.snapshot(b).Team).To(BeEmpty())
			Expect(registry.snapshot(c).PendingInvitations).To(BeEmpty())
			Expect(registry.snapshot(d).SentInvitations).To(BeEmpty())

			user, err := users.Get(ctx, a)
			Expect(err).To(BeNil())
			Expect(user.IsInDevspace).To(BeFalse())
			Expect(events.kinds(a)).To(ContainElement(KindLeft))
		})

		Specify("leaving twice", func() {
			Expect(engine.Leave(ctx, a)).To(Succeed())
			Expect(engine.Leave(ctx, a)).To(MatchBackendError(errs.ErrNotFound))
		})
	})

	Describe("Info", func() {
		BeforeEach(func() {
			join(a, b, c)
			send(a, b)
		})

		Specify("resolves the invitations to profile summaries", func() {
			info, err := engine.Info(ctx, b)
			Expect(err).To(BeNil())
			Expect(info.PendingInvitations).To(HaveLen(1))
			Expect(info.PendingInvitations[0].From.Name).To(Equal("a"))
			Expect(info.PendingInvitations[0].From.Email).To(Equal("a@asu.edu"))

			info, err = engine.Info(ctx, a)
			Expect(err).To(BeNil())
			Expect(info.SentInvitations).To(HaveLen(1))
			Expect(info.SentInvitations[0].To.Name).To(Equal("b"))
		})

		Specify("resolves teammates", func() {
			accept(b, a)

			info, err := engine.Info(ctx, a)
			Expect(err).To(BeNil())
			Expect(info.Team).To(HaveLen(1))
			Expect(info.Team[0].Photo).To(Equal("b.png"))
		})

		Specify("missing record", func() {
			_, err := engine.Info(ctx, x)
			Expect(err).To(MatchBackendError(errs.ErrNotFound))
		})
	})

	Describe("SetIdea", func() {
		BeforeEach(func() {
			join(a)
		})

		Specify("stores and clears the idea", func() {
			rec, err := engine.SetIdea(ctx, a, entity.Idea{Title: "Campus map", Description: "AR wayfinding"})
			Expect(err).To(BeNil())
			Expect(rec.Idea.Title).To(Equal("Campus map"))
			Expect(registry.snapshot(a).Idea.Description).To(Equal("AR wayfinding"))

			rec, err = engine.SetIdea(ctx, a, entity.Idea{})
			Expect(err).To(BeNil())
			Expect(rec.Idea).To(BeNil())
		})

		Specify("missing record", func() {
			_, err := engine.SetIdea(ctx, b, entity.Idea{Title: "t"})
			Expect(err).To(MatchBackendError(errs.ErrNotFound))
		})
	})
})

var _ = Describe("FindInvitation", func() {
	Specify("finds by id and returns nil when absent", func() {
		id := primitive.NewObjectID()
		rec := entity.NewDevspace(primitive.NewObjectID())
		rec.PendingInvitations = []entity.Invitation{{ID: primitive.NewObjectID()}, {ID: id}}

		Expect(FindInvitation(rec, id)).NotTo(BeNil())
		Expect(FindInvitation(rec, id).ID).To(Equal(id))
		Expect(FindInvitation(rec, primitive.NewObjectID())).To(BeNil())
	})
})
