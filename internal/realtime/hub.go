package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"coincall-platform/internal/calls"
	"coincall-platform/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// EventsChannel is the Redis channel carrying accepted transactions to every instance.
const EventsChannel = "calltx:events"

// HistorySource lists a user's recent transactions, newest first.
type HistorySource interface {
	History(ctx context.Context, userID string, limit int) ([]calls.Transaction, error)
}

type Options struct {
	SessionSeenCapacity int
	SessionSeenTTL      time.Duration
	SyncLimit           int
	// MaxConnsPerUser is enforced only when the hub has a Redis client. 0 disables the cap.
	MaxConnsPerUser int
	AllowedOrigins  []string
}

func (o Options) withDefaults() Options {
	if o.SessionSeenCapacity <= 0 {
		o.SessionSeenCapacity = 2_000
	}
	if o.SessionSeenTTL <= 0 {
		o.SessionSeenTTL = 24 * time.Hour
	}
	if o.SyncLimit <= 0 {
		o.SyncLimit = 50
	}
	return o
}

// Hub tracks the websocket clients of this instance and routes transactions to them.
//
// With a Redis client, Publish goes through EventsChannel and every instance
// (this one included) delivers from its subscriber. Without one, Publish delivers
// locally.
type Hub struct {
	rdb     *redis.Client
	history HistorySource
	opts    Options
	log     *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub(rdb *redis.Client, history HistorySource, opts Options, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rdb:     rdb,
		history: history,
		opts:    opts.withDefaults(),
		log:     log,
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Publish sends tx to the connections of both participants on every instance.
func (h *Hub) Publish(ctx context.Context, tx calls.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	if h.rdb == nil {
		h.dispatch(data)
		return nil
	}
	if err := h.rdb.Publish(ctx, EventsChannel, data).Err(); err != nil {
		// Local clients still get it; the sender's retry reaches the others.
		h.dispatch(data)
		return fmt.Errorf("publish %s: %w", EventsChannel, err)
	}
	return nil
}

// Run consumes EventsChannel until ctx is done, then closes every local connection.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()

	if h.rdb == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := h.rdb.Subscribe(ctx, EventsChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}
	h.log.Info("realtime subscriber started", "channel", EventsChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.dispatch([]byte(msg.Payload))
		}
	}
}

// dispatch delivers one transaction payload to the local clients of both participants.
func (h *Hub) dispatch(payload []byte) {
	var raw calls.RawTransaction
	if err := json.Unmarshal(payload, &raw); err != nil {
		h.log.Warn("realtime payload rejected", "err", err)
		return
	}

	users := []string{raw.Participants.InitiatorID}
	if r := raw.Participants.ReceiverID; r != "" && r != raw.Participants.InitiatorID {
		users = append(users, r)
	}

	// Held for the whole delivery so detach cannot close a send channel mid-write.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range users {
		for c := range h.clients[userID] {
			c.session.Deliver(&raw)
		}
	}
}

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.clients[c.session.UserID()]
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.clients[c.session.UserID()] = conns
	}
	conns[c] = struct{}{}
	metrics.WSConnections.Inc()
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := c.session.UserID()
	conns, ok := h.clients[userID]
	if !ok {
		return
	}
	if _, exists := conns[c]; !exists {
		return
	}
	delete(conns, c)
	close(c.send)
	metrics.WSConnections.Dec()
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.clients {
		for c := range conns {
			if c.conn != nil {
				_ = c.conn.Close()
			}
		}
	}
}

// Connections returns the number of local connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
