package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server, workspace string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?workspace=" + workspace
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var msg ServerMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "connected", msg.Type)
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "subscribed", msg.Type)
	return conn
}

func TestShutdownWhilePublishing(t *testing.T) {
	hub := NewWebSocketHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer srv.Close()

	conns := []*websocket.Conn{dialHub(t, srv, "w"), dialHub(t, srv, "w")}

	payload := strings.Repeat("x", 2048)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				hub.Publish("w", "tick", payload)
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Shutdown()
	close(stop)
	wg.Wait()

	for _, conn := range conns {
		var err error
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		for err == nil {
			_, _, err = conn.ReadMessage()
		}
		assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNoStatusReceived), "got %v", err)
	}

	stats := hub.Stats()
	assert.Zero(t, stats.ActiveConnections)
	assert.Zero(t, stats.Workspaces)

	// publishing after shutdown has nobody to reach
	hub.Publish("w", "tick", payload)
}

func TestConnectAfterShutdownIsRefused(t *testing.T) {
	hub := NewWebSocketHub(nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer srv.Close()
	hub.Shutdown()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?workspace=w"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, hub.Stats().ActiveConnections)
}

func TestSubscribeRequiresRegisteredClient(t *testing.T) {
	hub := NewWebSocketHub(nil, nil, nil)
	c := &Client{id: "ghost", send: make(chan ServerMessage, 1), hub: hub}
	assert.False(t, hub.Subscribe(c, "w"))
	assert.Zero(t, hub.Stats().Workspaces)
}
