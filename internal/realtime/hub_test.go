package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"coincall-platform/internal/auth"
	"coincall-platform/internal/calls"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	mu  sync.Mutex
	txs []calls.Transaction
}

func (f *fakeHistory) History(ctx context.Context, userID string, limit int) ([]calls.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []calls.Transaction
	for _, tx := range f.txs {
		if tx.Participants.Involves(userID) {
			out = append(out, tx)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), c.Query("as"), "user")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, NewHandler(hub).ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?as=" + userID
	before := hub.Connections(userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Connections(userID) == before+1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func readTypes(t *testing.T, conn *websocket.Conn, n int) []FrameType {
	t.Helper()
	out := make([]FrameType, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, readFrame(t, conn).Type)
	}
	return out
}

func normalized(raw *calls.RawTransaction) calls.Transaction {
	return calls.Normalize(*raw, fixedNow)
}

func TestHub_PublishReachesBothParticipantsOnce(t *testing.T) {
	hub := NewHub(nil, &fakeHistory{}, Options{}, nil)
	srv := newTestServer(t, hub)
	alice := dial(t, srv, hub, "alice")
	bob := dial(t, srv, hub, "bob")

	tx := normalized(completedCall("tx-1"))
	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, tx))
	require.NoError(t, hub.Publish(ctx, tx))

	want := []FrameType{FrameChatCallEvent, FrameCallsUpdate, FrameWalletUpdate}
	assert.Equal(t, want, readTypes(t, alice, 3))
	assert.Equal(t, want, readTypes(t, bob, 3))

	// The duplicate produced nothing; the next frame is the sync acknowledgement.
	require.NoError(t, alice.WriteJSON(map[string]string{"type": "sync"}))
	done := readFrame(t, alice)
	assert.Equal(t, FrameSyncDone, done.Type)
	require.NotNil(t, done.Replayed)
	assert.Equal(t, 0, *done.Replayed)
}

func TestHub_SyncReplaysOnlyUnseen(t *testing.T) {
	seen := normalized(completedCall("tx-1"))
	missed := normalized(completedCall("tx-2"))
	history := &fakeHistory{txs: []calls.Transaction{missed, seen}}

	hub := NewHub(nil, history, Options{SyncLimit: 10}, nil)
	srv := newTestServer(t, hub)
	alice := dial(t, srv, hub, "alice")

	require.NoError(t, hub.Publish(context.Background(), seen))
	assert.Len(t, readTypes(t, alice, 3), 3)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "sync"}))
	chat := readFrame(t, alice)
	assert.Equal(t, FrameChatCallEvent, chat.Type)
	require.NotNil(t, chat.Transaction)
	assert.Equal(t, "tx-2", chat.Transaction.TransactionID)
	assert.Equal(t, []FrameType{FrameCallsUpdate, FrameWalletUpdate}, readTypes(t, alice, 2))

	done := readFrame(t, alice)
	assert.Equal(t, FrameSyncDone, done.Type)
	assert.Equal(t, 1, *done.Replayed)
}

func TestHub_DisconnectDetaches(t *testing.T) {
	hub := NewHub(nil, nil, Options{}, nil)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, hub, "alice")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, 2*time.Second, 10*time.Millisecond)

	// Nothing left to deliver to.
	require.NoError(t, hub.Publish(context.Background(), normalized(completedCall("tx-1"))))
}

func TestHub_RunWithoutRedisClosesConnectionsOnShutdown(t *testing.T) {
	hub := NewHub(nil, nil, Options{}, nil)
	srv := newTestServer(t, hub)
	conn := dial(t, srv, hub, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- hub.Run(ctx) }()
	cancel()
	require.NoError(t, <-errc)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandler_RejectsMissingIdentity(t *testing.T) {
	hub := NewHub(nil, nil, Options{}, nil)
	srv := newTestServer(t, hub)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(nil))

	check := originChecker([]string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
