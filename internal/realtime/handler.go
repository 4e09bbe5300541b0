package realtime

import (
	"context"
	"net/http"
	"time"

	"coincall-platform/internal/auth"
	"coincall-platform/pkg/logger"
	"coincall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	connCapKeyPrefix = "ws:conns:"
	// connCapTTL bounds how long a slot leaked by a crashed instance stays held.
	connCapTTL = 2 * time.Hour
)

// Handler upgrades GET /v1/ws. It expects auth.RequireAccessToken to run first.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(h *Hub) *Handler {
	return &Handler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(h.opts.AllowedOrigins),
		},
	}
}

// originChecker returns nil for an empty list, which makes the upgrader
// require same-origin requests.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

func (h *Handler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.From(ctx)

	userID, err := auth.UserID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if h.hub.rdb != nil && h.hub.opts.MaxConnsPerUser > 0 {
		key := connCapKeyPrefix + userID
		ok, err := utils.AcquireConcurrencyCap(ctx, h.hub.rdb, key, h.hub.opts.MaxConnsPerUser, connCapTTL)
		if err != nil {
			log.Error("websocket connection cap failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many connections"})
			return
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := utils.ReleaseConcurrencyCap(releaseCtx, h.hub.rdb, key); err != nil {
				log.Warn("websocket connection cap release failed", "err", err)
			}
		}()
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := newClient(h.hub, conn, userID, log.With("user_id", userID))
	h.hub.attach(client)
	log.Debug("websocket connected", "user_id", userID)

	go client.writePump()
	client.readPump(ctx)
	log.Debug("websocket disconnected", "user_id", userID)
}
