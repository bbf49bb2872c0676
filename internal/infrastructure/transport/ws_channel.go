package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"skyfleet/internal/core/domain"
	"skyfleet/internal/core/ports"
	apperrors "skyfleet/pkg/errors"
	"skyfleet/pkg/retry"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 256
)

// outMessage is one queued outbound message. Binary frames ride as two
// wire messages: a text envelope announcing the metadata, then the raw
// bytes.
type outMessage struct {
	envelope []byte
	binary   []byte
}

// WSChannel is a gorilla/websocket implementation of ports.Channel. All
// writes funnel through a single writer goroutine, since gorilla
// connections allow at most one concurrent writer.
type WSChannel struct {
	conn   *websocket.Conn
	logger *zap.SugaredLogger

	sendCh chan outMessage
	done   chan struct{}

	closeOnce      sync.Once
	disconnectOnce sync.Once
	onDisconnect   func(error)

	localClose bool
	mu         sync.Mutex
}

// WSDialer opens WSChannels against one server. Transient connect
// failures are retried with backoff before the caller sees an error.
type WSDialer struct {
	serverURL   string
	agentID     domain.AgentID
	dialTimeout time.Duration
	retryCfg    retry.Config
	logger      *zap.SugaredLogger
}

var _ ports.Dialer = (*WSDialer)(nil)

func NewWSDialer(serverURL string, agentID domain.AgentID, dialTimeout time.Duration, logger *zap.SugaredLogger) *WSDialer {
	return &WSDialer{
		serverURL:   serverURL,
		agentID:     agentID,
		dialTimeout: dialTimeout,
		retryCfg: retry.Config{
			Enabled:      true,
			MaxAttempts:  2,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

// Dial connects, starts the reader and writer goroutines and wires
// inbound events into the dispatch table.
func (d *WSDialer) Dial(ctx context.Context, routes map[string]ports.EventHandler, onDisconnect func(error)) (ports.Channel, error) {
	wsURL, err := toWebSocketURL(d.serverURL)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "bad server url")
	}

	conn, err := retry.RetryWithResult(ctx, d.retryCfg, func() (*websocket.Conn, error) {
		return d.connect(ctx, wsURL)
	})
	if err != nil {
		return nil, err
	}

	ch := &WSChannel{
		conn:         conn,
		logger:       d.logger,
		sendCh:       make(chan outMessage, sendQueueSize),
		done:         make(chan struct{}),
		onDisconnect: onDisconnect,
	}

	go ch.writeLoop()
	go ch.readLoop(routes)

	d.logger.Debugw("channel connected", "url", wsURL)
	return ch, nil
}

func (d *WSDialer) connect(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.dialTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, http.Header{
		"X-Drone-Id": []string{string(d.agentID)},
	})
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeTransport, "websocket dial failed").
			WithReason("channel_open_failed")
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, nil
}

func toWebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if !strings.HasSuffix(u.Path, "/socket") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/socket"
	}
	return u.String(), nil
}

// Emit queues a JSON event. Returns ErrChannelClosed once the channel is
// closed or lost.
func (c *WSChannel) Emit(event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "marshal event payload")
	}
	env, err := json.Marshal(domain.Envelope{Event: event, Payload: raw})
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "marshal event envelope")
	}
	return c.enqueue(outMessage{envelope: env})
}

// EmitBinary queues a metadata envelope followed by a raw binary message.
// The writer goroutine sends both back to back, so frames never interleave.
func (c *WSChannel) EmitBinary(event string, metadata interface{}, data []byte) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "marshal binary metadata")
	}
	env, err := json.Marshal(domain.Envelope{Event: event, Payload: raw})
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "marshal binary envelope")
	}
	return c.enqueue(outMessage{envelope: env, binary: data})
}

func (c *WSChannel) enqueue(msg outMessage) error {
	select {
	case <-c.done:
		return domain.ErrChannelClosed
	default:
	}

	select {
	case c.sendCh <- msg:
		return nil
	case <-c.done:
		return domain.ErrChannelClosed
	}
}

// Close shuts the channel down without firing the disconnect callback.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	c.localClose = true
	c.mu.Unlock()

	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeTimeout)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

func (c *WSChannel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.envelope); err != nil {
				c.fail(err)
				return
			}
			if msg.binary != nil {
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := c.conn.WriteMessage(websocket.BinaryMessage, msg.binary); err != nil {
					c.fail(err)
					return
				}
			}
		}
	}
}

func (c *WSChannel) readLoop(routes map[string]ports.EventHandler) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warnw("dropping malformed event", "error", err)
			continue
		}

		handler, ok := routes[env.Event]
		if !ok {
			c.logger.Debugw("no handler for event", "event", env.Event)
			continue
		}
		handler(env.Payload)
	}
}

// fail tears the channel down after a transport error and fires the
// disconnect callback unless the close was local.
func (c *WSChannel) fail(err error) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})

	c.mu.Lock()
	local := c.localClose
	c.mu.Unlock()
	if local {
		return
	}

	c.disconnectOnce.Do(func() {
		if c.onDisconnect != nil {
			c.onDisconnect(err)
		}
	})
}
