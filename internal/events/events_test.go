package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AINative-Studio/rewardsy/internal/auth"
	"github.com/AINative-Studio/rewardsy/internal/zerodb"
)

type harness struct {
	hub    *Hub
	client *zerodb.MemoryClient
	pub    *Publisher
	srv    *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := zerodb.NewMemoryClient()
	hub := NewHub(zerolog.Nop())
	ws := WSHandler(hub, c, NewUpgrader(nil), zerolog.Nop())

	// stands in for the auth middleware: ?uid= names the user
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if uid := r.URL.Query().Get("uid"); uid != "" {
			ctx = auth.WithUser(ctx, auth.User{ID: uid})
		}
		ws(w, r.WithContext(ctx))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return &harness{hub: hub, client: c, pub: NewPublisher(c, hub), srv: srv}
}

func (h *harness) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?uid=" + uid
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return h.hub.Count(uid) > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestClientReceivesOwnTaskEvents(t *testing.T) {
	h := newHarness(t)
	ada := h.dial(t, "ada")
	bob := h.dial(t, "bob")
	ctx := context.Background()

	_, err := h.pub.PublishEvent(ctx, "user_ada_tasks", map[string]any{"user_id": "ada", "event_type": "task_created"})
	require.NoError(t, err)

	msg := readMessage(t, ada)
	assert.Equal(t, "user_ada_tasks", msg.Topic)
	assert.Equal(t, "task_created", msg.Payload["event_type"])

	_, err = h.pub.PublishEvent(ctx, "user_bob_tasks", map[string]any{"user_id": "bob", "event_type": "task_deleted"})
	require.NoError(t, err)
	assert.Equal(t, "user_bob_tasks", readMessage(t, bob).Topic)

	// the event is still stored on the wrapped client
	assert.Len(t, h.client.Events("user_ada_tasks"), 1)
}

func TestGlobalTopicsAreNotRelayed(t *testing.T) {
	h := newHarness(t)
	ada := h.dial(t, "ada")
	ctx := context.Background()

	_, err := h.pub.PublishEvent(ctx, TopicTasksGlobal, map[string]any{"user_id": "ada", "event_type": "noise"})
	require.NoError(t, err)
	_, err = h.pub.PublishEvent(ctx, "user_ada_tasks", map[string]any{"user_id": "ada", "event_type": "signal"})
	require.NoError(t, err)

	msg := readMessage(t, ada)
	assert.Equal(t, "signal", msg.Payload["event_type"])
}

func TestSubscriptionIsLogged(t *testing.T) {
	h := newHarness(t)
	h.dial(t, "ada")

	logs := h.client.AgentLogs(EventsAgentID)
	require.Len(t, logs, 1)
	assert.Equal(t, UserTopics("ada"), logs[0].Payload["topics"])
}

func TestWSHandler_RequiresUser(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t, "ada")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.hub.Count("ada") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &conn{userID: "ada", send: make(chan []byte, 1)}
	hub.add(c)

	hub.Broadcast("ada", Message{Topic: "t"})
	assert.Equal(t, 1, hub.Count("ada"))

	hub.Broadcast("ada", Message{Topic: "t"})
	assert.Equal(t, 0, hub.Count("ada"))

	// queued frame is still drained before the channel reports closed
	_, ok := <-c.send
	assert.True(t, ok)
	_, ok = <-c.send
	assert.False(t, ok)
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	up := NewUpgrader([]string{"http://localhost:3000"})

	r := httptest.NewRequest(http.MethodGet, "http://api.local/ws", nil)
	assert.True(t, up.CheckOrigin(r))

	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, up.CheckOrigin(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, up.CheckOrigin(r))
}
