package watch

import (
	"context"

	"devspace-backend/entity"
	"devspace-backend/errs"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeUsers struct {
	users    map[primitive.ObjectID]*entity.User
	byStatus map[primitive.ObjectID]primitive.ObjectID
}

func (f *fakeUsers) Get(_ context.Context, id primitive.ObjectID) (*entity.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) ClearStatus(_ context.Context, statusID primitive.ObjectID) (*entity.User, error) {
	id, ok := f.byStatus[statusID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	u := f.users[id]
	u.Status = ""
	u.StatusID = nil
	delete(f.byStatus, statusID)
	return u, nil
}

type push struct {
	user  string
	event string
	data  interface{}
}

type fakeEmitter struct {
	pushes []push
}

func (f *fakeEmitter) Emit(userID, event string, data interface{}) bool {
	f.pushes = append(f.pushes, push{user: userID, event: event, data: data})
	return true
}

func change(op string, id primitive.ObjectID) *Change {
	c := &Change{OperationType: op}
	c.DocumentKey.ID = id
	return c
}

var _ = Describe("Watcher", func() {
	var (
		ctx      context.Context
		users    *fakeUsers
		emitter  *fakeEmitter
		watcher  *Watcher
		ana      primitive.ObjectID
		statusID primitive.ObjectID
	)

	BeforeEach(func() {
		ctx = context.Background()
		ana = primitive.NewObjectID()
		statusID = primitive.NewObjectID()
		users = &fakeUsers{
			users:    map[primitive.ObjectID]*entity.User{ana: {ID: ana, Name: "Ana", Status: "busy", StatusID: &statusID}},
			byStatus: map[primitive.ObjectID]primitive.ObjectID{statusID: ana},
		}
		emitter = &fakeEmitter{}
		watcher = NewWatcher(users, emitter)
	})

	Specify("pushes the changed user to its owner", func() {
		watcher.HandleUser(ctx, change("update", ana))

		Expect(emitter.pushes).To(HaveLen(1))
		Expect(emitter.pushes[0].user).To(Equal(ana.Hex()))
		Expect(emitter.pushes[0].event).To(Equal(EventUserUpdate))
		Expect(emitter.pushes[0].data.(*entity.User).Name).To(Equal("Ana"))
	})

	Specify("ignores deleted or unknown users", func() {
		watcher.HandleUser(ctx, change("delete", ana))
		watcher.HandleUser(ctx, change("update", primitive.NewObjectID()))
		Expect(emitter.pushes).To(BeEmpty())
	})

	Specify("an expired status is cleared and pushed", func() {
		watcher.HandleStatus(ctx, change("delete", statusID))

		Expect(users.users[ana].Status).To(BeEmpty())
		Expect(users.users[ana].StatusID).To(BeNil())
		Expect(emitter.pushes).To(Equal([]push{{user: ana.Hex(), event: EventStatusDelete, data: StatusCleared{}}}))
	})

	Specify("other status changes are ignored", func() {
		watcher.HandleStatus(ctx, change("insert", statusID))
		watcher.HandleStatus(ctx, change("delete", primitive.NewObjectID()))

		Expect(users.users[ana].Status).To(Equal("busy"))
		Expect(emitter.pushes).To(BeEmpty())
	})
})
