package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"coincall-platform/internal/calls"
	"coincall-platform/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Client is one websocket connection and its session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *Session
	log     *slog.Logger
}

func newClient(h *Hub, conn *websocket.Conn, userID string, log *slog.Logger) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		log:  log,
	}
	seen := calls.NewBoundedSeenSet(h.opts.SessionSeenCapacity, h.opts.SessionSeenTTL)
	c.session = NewSession(userID, seen, c.enqueue)
	return c
}

// enqueue never blocks; a slow client loses frames rather than stalling delivery.
func (c *Client) enqueue(f Frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		c.log.Error("marshal frame", "type", f.Type, "err", err)
		return false
	}
	select {
	case c.send <- data:
		metrics.WSFramesSent.WithLabelValues(string(f.Type)).Inc()
		return true
	default:
		metrics.WSFramesDropped.Inc()
		c.log.Warn("websocket send buffer full", "type", f.Type)
		return false
	}
}

// sync replays the user's recent transactions through the session, oldest first.
// Ids the session already delivered are skipped.
func (c *Client) sync(ctx context.Context, limit int) {
	if c.hub.history == nil {
		c.enqueue(Frame{Type: FrameError, Error: "sync unavailable"})
		return
	}
	if limit <= 0 || limit > c.hub.opts.SyncLimit {
		limit = c.hub.opts.SyncLimit
	}
	txs, err := c.hub.history.History(ctx, c.session.UserID(), limit)
	if err != nil {
		c.log.Warn("sync history failed", "err", err)
		c.enqueue(Frame{Type: FrameError, Error: "sync failed"})
		return
	}

	replayed := 0
	for i := len(txs) - 1; i >= 0; i-- {
		if c.session.Deliver(toRaw(txs[i])) != nil {
			replayed++
		}
	}
	c.enqueue(Frame{Type: FrameSyncDone, Replayed: &replayed})
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	switch msg.Type {
	case clientMessageSync:
		c.sync(ctx, msg.Limit)
	}
}

// readPump runs until the connection fails, then detaches the client.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read error", "err", err)
			}
			return
		}
		c.handleMessage(ctx, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
