package push

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mouaddiguoug/feetflight/internal/logging"
)

func dial(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.ServeWS(w, r, userID); err != nil {
			t.Logf("upgrade: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesConnectedUser(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	conn := dial(t, hub, "u1")

	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	n, err := hub.Publish("u1", map[string]string{"title": "Sold"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Sold"}`, string(msg))

	n, err = hub.Publish("someone-else", map[string]string{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDisconnectUnregisters(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	conn := dial(t, hub, "u1")
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Connections("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(logging.NewDiscard(), nil)
	conn := dial(t, hub, "u1")
	require.Eventually(t, func() bool { return hub.Connections("u1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Connections("u1"))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
