package events

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Start()
	t.Cleanup(hub.Stop)
	return hub
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count never reached %d (have %d)", want, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesAllClients(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	first := dial(t, server)
	second := dial(t, server)
	waitForClients(t, hub, 2)

	hub.Publish(EventAlertCreated, map[string]string{"licenseId": "lic-1"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, EventAlertCreated, env.Event)
		assert.False(t, env.Timestamp.IsZero())

		payload, ok := env.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "lic-1", payload["licenseId"])
	}
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Publishing with nobody listening must not block.
	done := make(chan struct{})
	go func() {
		hub.Publish(EventAuditLogged, "entry")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no clients")
	}
}

func TestStopClosesClients(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	hub.Start()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dial(t, server)
	waitForClients(t, hub, 1)

	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, hub.ClientCount())
}
