package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/pubkey"
)

// ClientConfig configures feed client behavior.
type ClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Buffer is the length of the delivery channel.
	Buffer int
}

// DefaultClientConfig returns default feed client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Buffer:            1024,
	}
}

// recentIDs bounds the set of event ids remembered for de-duplication
// across reconnects.
const recentIDs = 4096

// Client follows a server's event feed. After a dropped connection it
// reconnects with exponential backoff and, when following one registry,
// asks the server to replay history from the last event it saw.
type Client struct {
	endpoint string
	registry *pubkey.PublicKey
	config   ClientConfig
	logger   *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	events chan *domain.Event

	// lastSeen is the timestamp of the newest delivered event
	lastSeen atomic.Int64
	seen     map[string]struct{}
	order    []string

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient connects to the feed at endpoint (ws:// or wss://). A non-nil
// registry restricts the feed to that registry.
func NewClient(ctx context.Context, endpoint string, registry *pubkey.PublicKey, config *ClientConfig, logger *zap.Logger) (*Client, error) {
	cfg := DefaultClientConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		endpoint: endpoint,
		registry: registry,
		config:   cfg,
		logger:   logger,
		events:   make(chan *domain.Event, cfg.Buffer),
		seen:     make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	c.lastSeen.Store(-1)

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Events returns the delivery channel. It is closed by Close.
func (c *Client) Events() <-chan *domain.Event {
	return c.events
}

// feedURL builds the dial URL, including the replay point after the first
// delivered event.
func (c *Client) feedURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse feed endpoint: %w", err)
	}
	q := u.Query()
	if c.registry != nil {
		q.Set("registry", c.registry.String())
		if last := c.lastSeen.Load(); last >= 0 {
			q.Set("since", strconv.FormatInt(last, 10))
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect establishes WebSocket connection.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	target, err := c.feedURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	// Server pings count as liveness for the read deadline.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.config.WriteTimeout))
	})

	c.conn = conn
	return nil
}

// Close closes the connection and the delivery channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	close(c.events)
	return nil
}

// readLoop reads messages and reconnects with exponential backoff on error.
func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if !c.reconnect(reconnectDelay) {
				return
			}
			reconnectDelay = c.nextDelay(reconnectDelay)
			continue
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("feed connection lost", zap.Error(err), zap.Duration("retry_in", reconnectDelay))

			c.connMu.Lock()
			if c.conn == conn {
				c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()
			continue
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		if !c.handleMessage(message) {
			return
		}
	}
}

// reconnect waits delay and dials again. It reports false once the client
// is closed.
func (c *Client) reconnect(delay time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry after a longer delay
		c.logger.Debug("feed reconnect failed", zap.Error(err))
		return !c.closed.Load()
	}
	c.logger.Info("feed reconnected", zap.String("endpoint", c.endpoint))
	return true
}

func (c *Client) nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > c.config.MaxReconnectDelay {
		d = c.config.MaxReconnectDelay
	}
	return d
}

// handleMessage decodes an event and delivers it unless it was already
// delivered. It reports false once the client is closed.
func (c *Client) handleMessage(message []byte) bool {
	var event domain.Event
	if err := json.Unmarshal(message, &event); err != nil {
		c.logger.Warn("undecodable feed message", zap.Error(err))
		return true
	}
	if !c.remember(event.EventID) {
		return true
	}
	if event.Timestamp > c.lastSeen.Load() {
		c.lastSeen.Store(event.Timestamp)
	}

	// Block until we can send - never drop events
	select {
	case c.events <- &event:
		return true
	case <-c.done:
		return false
	}
}

// remember records id and reports whether it was new.
func (c *Client) remember(id string) bool {
	if _, ok := c.seen[id]; ok {
		return false
	}
	c.seen[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > recentIDs {
		delete(c.seen, c.order[0])
		c.order = c.order[1:]
	}
	return true
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				// Write errors surface as read errors and trigger reconnect
				c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			}
			c.connMu.Unlock()
		}
	}
}
