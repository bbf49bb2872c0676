package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/ports"
	apperrors "skyfleet/pkg/errors"
	"skyfleet/pkg/logger"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTestServer collects everything the fake control server receives and
// can push events back down to the agent.
type wsTestServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	messages []receivedMessage
	ready    chan struct{}
}

type receivedMessage struct {
	msgType int
	data    []byte
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	ts := &wsTestServer{ready: make(chan struct{})}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.mu.Lock()
		ts.conn = conn
		ts.mu.Unlock()
		close(ts.ready)

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ts.mu.Lock()
			ts.messages = append(ts.messages, receivedMessage{msgType, data})
			ts.mu.Unlock()
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *wsTestServer) waitMessages(t *testing.T, n int) []receivedMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ts.mu.Lock()
		if len(ts.messages) >= n {
			out := make([]receivedMessage, len(ts.messages))
			copy(out, ts.messages)
			ts.mu.Unlock()
			return out
		}
		ts.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", n)
	return nil
}

func (ts *wsTestServer) push(t *testing.T, event string, payload interface{}) {
	t.Helper()
	<-ts.ready
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	env, err := json.Marshal(domain.Envelope{Event: event, Payload: raw})
	require.NoError(t, err)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	require.NoError(t, ts.conn.WriteMessage(websocket.TextMessage, env))
}

func dialTest(t *testing.T, ts *wsTestServer, routes map[string]ports.EventHandler, onDisconnect func(error)) ports.Channel {
	t.Helper()
	d := NewWSDialer(ts.srv.URL, "drone-001", 2*time.Second, logger.NewNop().Sugar())
	ch, err := d.Dial(context.Background(), routes, onDisconnect)
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestWSChannel_EmitJSON(t *testing.T) {
	ts := newWSTestServer(t)
	ch := dialTest(t, ts, nil, nil)

	require.NoError(t, ch.Emit(domain.EventTelemetry, map[string]interface{}{"latitude": 18.52}))

	msgs := ts.waitMessages(t, 1)
	assert.Equal(t, websocket.TextMessage, msgs[0].msgType)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(msgs[0].data, &env))
	assert.Equal(t, domain.EventTelemetry, env.Event)
	assert.Contains(t, string(env.Payload), "18.52")
}

func TestWSChannel_EmitBinary(t *testing.T) {
	ts := newWSTestServer(t)
	ch := dialTest(t, ts, nil, nil)

	frame := []byte{0x12, 0x34, 0x56, 0x78, 0xAA, 0xBB}
	meta := domain.BinaryFrameMetadata{
		Camera:   domain.CameraFront,
		Metadata: domain.CameraFrameMetadata{FrameNumber: 3, Transport: "websocket_binary"},
	}
	require.NoError(t, ch.EmitBinary(domain.EventCameraFrameBinary, meta, frame))

	msgs := ts.waitMessages(t, 2)
	assert.Equal(t, websocket.TextMessage, msgs[0].msgType)
	assert.Equal(t, websocket.BinaryMessage, msgs[1].msgType)
	assert.Equal(t, frame, msgs[1].data)
}

func TestWSChannel_RoutesInboundEvents(t *testing.T) {
	ts := newWSTestServer(t)

	got := make(chan json.RawMessage, 1)
	routes := map[string]ports.EventHandler{
		domain.EventCommand: func(p json.RawMessage) { got <- p },
	}
	_ = dialTest(t, ts, routes, nil)

	ts.push(t, domain.EventCommand, map[string]interface{}{"type": "arm"})

	select {
	case payload := <-got:
		assert.Contains(t, string(payload), "arm")
	case <-time.After(2 * time.Second):
		t.Fatal("command handler never fired")
	}

	// Unknown events are dropped without dispatch.
	ts.push(t, "unknown_event", map[string]interface{}{})
}

func TestWSChannel_DisconnectCallbackFiresOnce(t *testing.T) {
	ts := newWSTestServer(t)

	var mu sync.Mutex
	calls := 0
	_ = dialTest(t, ts, nil, func(err error) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	<-ts.ready
	ts.mu.Lock()
	ts.conn.Close()
	ts.mu.Unlock()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSChannel_LocalCloseSuppressesCallback(t *testing.T) {
	ts := newWSTestServer(t)

	var mu sync.Mutex
	calls := 0
	ch := dialTest(t, ts, nil, func(err error) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Emit(domain.EventTelemetry, nil), domain.ErrChannelClosed)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestWSDialer_OpenFailureReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	d := NewWSDialer(srv.URL, "drone-001", time.Second, logger.NewNop().Sugar())
	_, err := d.Dial(context.Background(), nil, nil)
	require.Error(t, err)

	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeTransport, appErr.Code)
	assert.Equal(t, "channel_open_failed", appErr.Reason())
}

func TestToWebSocketURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://localhost:5000", "ws://localhost:5000/socket"},
		{"https://fleet.example", "wss://fleet.example/socket"},
		{"http://localhost:5000/socket", "ws://localhost:5000/socket"},
	}
	for _, tt := range tests {
		got, err := toWebSocketURL(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
