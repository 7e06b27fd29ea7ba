package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned by Send after the channel was closed.
var ErrChannelClosed = errors.New("channel closed")

// ConnOptions tunes websocket liveness.
type ConnOptions struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultConnOptions returns 30s pings, a 60s read deadline, 10s writes and
// a 512KB inbound frame limit.
func DefaultConnOptions() ConnOptions {
	return ConnOptions{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 512 * 1024,
	}
}

func (o ConnOptions) withDefaults() ConnOptions {
	def := DefaultConnOptions()
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = def.PongWait
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = def.MaxMessageSize
	}
	return o
}

// wsChannel is a Channel over a gorilla websocket connection.
type wsChannel struct {
	id     string
	testID string
	conn   *websocket.Conn
	opts   ConnOptions
	logger *slog.Logger

	mu        sync.Mutex // serializes data frames
	closed    chan struct{}
	closeOnce sync.Once
}

func newWSChannel(conn *websocket.Conn, testID string, opts ConnOptions, logger *slog.Logger) *wsChannel {
	return &wsChannel{
		id:     uuid.NewString(),
		testID: testID,
		conn:   conn,
		opts:   opts.withDefaults(),
		logger: logger,
		closed: make(chan struct{}),
	}
}

func (c *wsChannel) ID() string { return c.id }

// Send writes one text frame. Writes are serialized per channel.
func (c *wsChannel) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection. Safe to call more
// than once.
func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

// readLoop consumes inbound frames until the peer goes away. Subscribers
// have nothing to say; reads only keep pong handling and deadlines alive.
func (c *wsChannel) readLoop() {
	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "test_id", c.testID, "channel", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		c.logger.Debug("subscriber message ignored", "test_id", c.testID, "channel", c.id, "bytes", len(data))
	}
}

// pingLoop pings the peer until the channel closes or a ping fails.
func (c *wsChannel) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.logger.Debug("ping failed", "test_id", c.testID, "channel", c.id, "error", err)
				return
			}
		case <-c.closed:
			return
		}
	}
}
