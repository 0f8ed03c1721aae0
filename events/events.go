// Package events carries devspace events between backend instances over
// RabbitMQ, so a user's socket receives them whichever instance they are
// connected to.
package events

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"devspace-backend/devspace"
	"devspace-backend/errs"
	"devspace-backend/log"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const DevspaceExchange = "devspace"

const dialAttempts = 6

type Events struct {
	Conn *amqp.Connection
}

// Connect dials RabbitMQ, retrying with exponential backoff, and declares the
// devspace topic exchange.
func Connect(ctx context.Context, url string) (*Events, error) {
	log.Logger.Info("Trying to connect to rabbitmq...")

	var conn *amqp.Connection
	t := time.Second
	for i := 0; i < dialAttempts; i++ {
		var err error
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		if i == dialAttempts-1 {
			log.Logger.Error("unable to connect to rabbitmq", zap.Error(err))
			return nil, errs.ErrQueue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t):
		}
		t *= 2
	}
	log.Logger.Info("Connected to rabbitmq")

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		DevspaceExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Events{Conn: conn}, nil
}

func (e *Events) Close() error {
	return e.Conn.Close()
}

func encode(ev *devspace.Event) ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(ev); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decode(body []byte) (*devspace.Event, error) {
	var ev *devspace.Event
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Dispatch publishes ev on the devspace exchange keyed by the user id.
func (e *Events) Dispatch(ctx context.Context, ev *devspace.Event) error {
	body, err := encode(ev)
	if err != nil {
		return err
	}

	rch, err := e.Conn.Channel()
	if err != nil {
		log.Logger.Error("unable to open channel", zap.Error(err))
		return errs.ErrQueue
	}
	defer rch.Close()

	err = rch.Publish(DevspaceExchange, ev.UserID.Hex(), false, false, amqp.Publishing{
		ContentType: "application/x-gob",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		log.Logger.Error("unable to publish event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		return errs.ErrQueue
	}

	return nil
}

// Consume subscribes an exclusive queue to every devspace event. The returned
// channel is closed when ctx is done or the broker closes the delivery stream.
func (e *Events) Consume(ctx context.Context) (<-chan *devspace.Event, error) {
	ch := make(chan *devspace.Event)

	rch, err := e.Conn.Channel()
	if err != nil {
		return nil, err
	}
	q, err := rch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = rch.Close()
		return nil, err
	}

	err = rch.QueueBind(
		q.Name,
		"#", // matches all keys
		DevspaceExchange,
		false,
		nil,
	)
	if err != nil {
		_ = rch.Close()
		return nil, err
	}

	tag := "devspace-" + uuid.NewString()
	msgs, err := rch.Consume(q.Name, tag, true, false, false, false, nil)
	if err != nil {
		_ = rch.Close()
		return nil, err
	}

	go func() {
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				if err := rch.Close(); err != nil {
					log.Logger.Error("unable to close channel", zap.Error(err))
				}
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}

				ev, err := decode(d.Body)
				if err != nil {
					log.Logger.Error("unable to decode event", zap.Error(err))
					continue
				}

				select {
				case ch <- ev:
				case <-ctx.Done():
				}
			}
		}
	}()

	return ch, nil
}

// Forward passes every consumed event to dispatcher until events closes.
func Forward(ctx context.Context, events <-chan *devspace.Event, dispatcher devspace.Dispatcher) {
	for ev := range events {
		if err := dispatcher.Dispatch(ctx, ev); err != nil {
			log.Logger.Warn("forwarding event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
}
