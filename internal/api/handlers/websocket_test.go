package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func dialHub(t *testing.T, hub *Hub, sim Simulation) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, sim).HandleWebSocket))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Failed to connect to WebSocket")
	t.Cleanup(func() { ws.Close() })
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) WebSocketMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := ws.ReadMessage()
	require.NoError(t, err, "Failed to read message")
	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(message, &msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketStreamsLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(1)
	go hub.Run(ctx)
	sim := newSim(t, hub.Callbacks())
	loadTriangle(t, sim)

	ws := dialHub(t, hub, sim)
	state := readMessage(t, ws)
	assert.Equal(t, MessageState, state.Type)
	payload, ok := state.Payload.(map[string]any)
	require.True(t, ok, "Payload is not a map")
	assert.Equal(t, "idle", payload["state"])
	waitForClients(t, hub, 1)

	require.NoError(t, sim.Start(1))
	assert.Equal(t, MessageStart, readMessage(t, ws).Type)

	ran, err := sim.Frame(ctx, 1)
	require.NoError(t, err)
	require.True(t, ran)
	tick := readMessage(t, ws)
	assert.Equal(t, MessageTick, tick.Type)
	assert.Equal(t, 1.0, tick.Payload.(map[string]any)["tick"])

	require.NoError(t, sim.Pause())
	assert.Equal(t, MessagePause, readMessage(t, ws).Type)
	require.NoError(t, sim.Restart())
	assert.Equal(t, MessageRestart, readMessage(t, ws).Type)

	require.NoError(t, sim.Start(0.0005))
	assert.Equal(t, MessageStart, readMessage(t, ws).Type)
	ran, err = sim.Frame(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, MessageEnd, readMessage(t, ws).Type)
}

func TestWebSocketPointerMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(1)
	type move struct {
		pos     r2.Vec
		engaged bool
	}
	moves := make(chan move, 1)
	hub.OnPointer(func(pos r2.Vec, engaged bool) { moves <- move{pos, engaged} })
	go hub.Run(ctx)

	ws := dialHub(t, hub, newSim(t, hub.Callbacks()))
	readMessage(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"noise"}`)))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"pointer","x":4,"y":5,"engaged":true}`)))

	select {
	case m := <-moves:
		assert.Equal(t, r2.Vec{X: 4, Y: 5}, m.pos)
		assert.True(t, m.engaged)
	case <-time.After(2 * time.Second):
		t.Fatal("pointer message not delivered")
	}
}

func TestWebSocketClosesOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(1)
	go hub.Run(ctx)

	ws := dialHub(t, hub, newSim(t, hub.Callbacks()))
	readMessage(t, ws)
	waitForClients(t, hub, 1)

	cancel()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) ||
		strings.Contains(err.Error(), "EOF"), "unexpected error: %v", err)

	// publishing after shutdown must not block
	hub.Publish(MessageEnd, nil)
}

func TestHubThinsTicks(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 6; i++ {
		hub.Publish(MessageTick, nil)
	}
	assert.Len(t, hub.broadcast, 2)

	hub.Publish(MessagePause, nil)
	hub.Publish(MessageEnd, nil)
	assert.Len(t, hub.broadcast, 4, "lifecycle events are never thinned")
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := NewHub(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < clientQueueSize*2; i++ {
			hub.Publish(MessageTick, nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	assert.Len(t, hub.broadcast, clientQueueSize)
}
