package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 64 * 1024
)

// TokenSource returns the current access token, if any.
type TokenSource func(ctx context.Context) (string, bool)

// WebSocketDialer connects to the backend's websocket endpoint.
type WebSocketDialer struct {
	URL    string
	Tokens TokenSource
	Dialer *websocket.Dialer
}

func NewWebSocketDialer(url string, tokens TokenSource) *WebSocketDialer {
	return &WebSocketDialer{
		URL:    url,
		Tokens: tokens,
		Dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	header.Set("X-Client-ID", uuid.NewString())
	if d.Tokens != nil {
		if token, ok := d.Tokens(ctx); ok {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	return newWSConn(conn), nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
	stop    chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{conn: conn, stop: make(chan struct{})}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline", slog.String("error", err.Error()))
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.pingLoop()
	return c
}

// Receive reads the next event frame. Frames that are not valid events are
// skipped.
func (c *wsConn) Receive(_ context.Context) (Event, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return Event{}, err
		}
		// Any frame proves the peer is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
			slog.Warn("ignoring malformed realtime frame", slog.Int("bytes", len(data)))
			continue
		}
		return ev, nil
	}
}

func (c *wsConn) Send(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.writeMessage(websocket.TextMessage, data)
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *wsConn) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// Close safely closes the WebSocket connection
func (c *wsConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.stop)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
