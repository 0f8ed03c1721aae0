// Package mail emails users when they receive a devspace invitation.
package mail

import (
	"context"
	"fmt"
	"time"

	"devspace-backend/devspace"
	"devspace-backend/entity"
	"devspace-backend/log"
	"github.com/mailgun/mailgun-go/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// Sender delivers a single plain text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Users interface {
	Get(ctx context.Context, id primitive.ObjectID) (*entity.User, error)
}

type Mailgun struct {
	mg   mailgun.Mailgun
	from string
}

func NewMailgun(domain, apiKey, from string) *Mailgun {
	return &Mailgun{mg: mailgun.NewMailgun(domain, apiKey), from: from}
}

func (m *Mailgun) Send(ctx context.Context, to, subject, body string) error {
	msg := m.mg.NewMessage(m.from, subject, body, to)
	_, id, err := m.mg.Send(ctx, msg)
	if err != nil {
		return err
	}

	log.Logger.Debug("mail queued", zap.String("id", id))
	return nil
}

// Notifier sends an email for every received invitation. Sending happens in
// the background; failures are logged.
type Notifier struct {
	sender Sender
	users  Users
	async  bool
}

func NewNotifier(sender Sender, users Users) *Notifier {
	return &Notifier{sender: sender, users: users, async: true}
}

func (n *Notifier) Dispatch(ctx context.Context, ev *devspace.Event) error {
	if ev.Kind != devspace.KindInvitationReceived || ev.Invitation == nil {
		return nil
	}

	if !n.async {
		return n.notify(ctx, ev.UserID, ev.Invitation.From)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := n.notify(ctx, ev.UserID, ev.Invitation.From); err != nil {
			log.Logger.Warn("invitation mail failed", zap.String("userID", ev.UserID.Hex()), zap.Error(err))
		}
	}()

	return nil
}

func (n *Notifier) notify(ctx context.Context, to, from primitive.ObjectID) error {
	receiver, err := n.users.Get(ctx, to)
	if err != nil {
		return err
	}
	sender, err := n.users.Get(ctx, from)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s invited you to their devspace team", sender.Name)
	body := fmt.Sprintf("Hi %s,\n\n%s (%s) invited you to join their team.\nOpen devspace to accept or reject the invitation.\n",
		receiver.Name, sender.Name, sender.Email)

	return n.sender.Send(ctx, receiver.Email, subject, body)
}
