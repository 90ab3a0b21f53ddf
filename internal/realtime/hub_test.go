package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/jasamarket/internal/auth"
)

func startHub(t *testing.T, hub *Hub, userID string, allowed map[string]struct{}) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streams := strings.Split(r.URL.Query().Get("streams"), ",")
		hub.Serve(userID, streams, allowed, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?streams=verification,admin.verifications"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, stream, userID string, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Subscribers(stream, userID) == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastToUserDeliversOnSubscribedStream(t *testing.T) {
	hub := NewHub()
	conn := startHub(t, hub, "user-1", AllowedStreams(false))
	waitForSubscribers(t, hub, StreamVerification, "user-1", 1)

	// Non-admins cannot listen to the moderation queue.
	require.Zero(t, hub.Subscribers(StreamAdminVerifications, "user-1"))

	hub.BroadcastToUser(StreamVerification, "user-2", Message{Event: "ignored"})
	hub.BroadcastToUser(StreamVerification, "user-1", Message{Event: "verification.approved", Data: map[string]any{"status": "approved"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, StreamVerification, msg.Stream)
	require.Equal(t, "verification.approved", msg.Event)
}

func TestControlMessagesSubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub()
	conn := startHub(t, hub, "admin-1", nil)
	waitForSubscribers(t, hub, StreamAdminVerifications, "admin-1", 1)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "subscribe", Streams: []string{" Notifications "}}))
	waitForSubscribers(t, hub, StreamNotifications, "admin-1", 1)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "unsubscribe", Streams: []string{"admin.verifications"}}))
	waitForSubscribers(t, hub, StreamAdminVerifications, "admin-1", 0)

	require.NoError(t, conn.WriteJSON(controlMessage{Action: "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Event)
}

func TestClosingConnectionUnregisters(t *testing.T) {
	hub := NewHub()
	conn := startHub(t, hub, "user-1", nil)
	waitForSubscribers(t, hub, StreamVerification, "user-1", 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, StreamVerification, "user-1", 0)
}

type fakeSource struct {
	mu        sync.Mutex
	listeners []auth.SessionListener
}

func (f *fakeSource) Subscribe(fn auth.SessionListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listeners = nil
	}
}

func (f *fakeSource) emit(e auth.SessionEvent) {
	f.mu.Lock()
	listeners := append([]auth.SessionListener(nil), f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}

func TestForwardSessionEvents(t *testing.T) {
	hub := NewHub()
	source := &fakeSource{}
	stop := hub.ForwardSessionEvents(source)
	defer stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve("user-9", []string{StreamSession}, nil, w, r)
	}))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	waitForSubscribers(t, hub, StreamSession, "user-9", 1)

	source.emit(auth.SessionEvent{Kind: auth.SessionProfileChanged, UserID: "user-9"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "session.profile_changed", msg.Event)
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub("https://app.jasamarket.id")
	req := httptest.NewRequest(http.MethodGet, "http://api.jasamarket.id/api/realtime", nil)

	req.Header.Set("Origin", "https://app.jasamarket.id")
	require.True(t, hub.upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, hub.upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example.com")
	require.False(t, hub.upgrader.CheckOrigin(req))
}
