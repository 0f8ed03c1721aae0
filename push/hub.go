// Package push delivers realtime events to connected browser clients.
package push

import (
	"context"
	"sync"
	"time"

	"devspace-backend/devspace"
	"devspace-backend/entity"
	"devspace-backend/log"
	"devspace-backend/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultInactiveTimeout = 30 * time.Minute
	DefaultSweepInterval   = 5 * time.Minute
)

// Conn is a live client connection.
type Conn interface {
	Emit(event string, args ...interface{})
}

type client struct {
	conn         Conn
	lastActivity time.Time
}

// Hub maps user ids to their live connection. A user has at most one
// connection; a newer one replaces the older.
type Hub struct {
	timeout time.Duration
	clock   ratelimit.Clock

	mu      sync.Mutex
	clients map[string]*client
}

func NewHub(timeout time.Duration, clock ratelimit.Clock) *Hub {
	if timeout <= 0 {
		timeout = DefaultInactiveTimeout
	}
	if clock == nil {
		clock = ratelimit.SystemClock
	}

	return &Hub{
		timeout: timeout,
		clock:   clock,
		clients: make(map[string]*client),
	}
}

func (h *Hub) Set(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[userID] = &client{conn: conn, lastActivity: h.clock.Now()}
}

// Remove forgets userID. When conn is not nil the entry is only removed if it
// still belongs to conn.
func (h *Hub) Remove(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[userID]
	if !ok {
		return
	}
	if conn != nil && c.conn != conn {
		return
	}
	delete(h.clients, userID)
}

// Emit sends event to userID and reports whether the user was connected.
func (h *Hub) Emit(userID, event string, data interface{}) bool {
	h.mu.Lock()
	c, ok := h.clients[userID]
	if ok {
		c.lastActivity = h.clock.Now()
	}
	h.mu.Unlock()

	if !ok {
		return false
	}

	c.conn.Emit(event, data)
	return true
}

// Sweep drops clients idle for longer than the inactive timeout.
func (h *Hub) Sweep() int {
	now := h.clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for id, c := range h.clients {
		if now.Sub(c.lastActivity) > h.timeout {
			delete(h.clients, id)
			n++
		}
	}
	return n
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Run sweeps every interval until ctx is done.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := h.Sweep(); n > 0 {
				log.Logger.Debug("swept inactive clients", zap.Int("removed", n))
			}
		}
	}
}

type devspacePayload struct {
	Devspace   *entity.Devspace   `json:"devspace"`
	Invitation *entity.Invitation `json:"invitation,omitempty"`
}

// Dispatch forwards a devspace event to the affected user, named by its kind.
func (h *Hub) Dispatch(_ context.Context, ev *devspace.Event) error {
	h.Emit(ev.UserID.Hex(), string(ev.Kind), devspacePayload{Devspace: ev.Record, Invitation: ev.Invitation})
	return nil
}
