package events

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nft-escrow-market/internal/domain"
	"nft-escrow-market/internal/observability"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/storage"
)

// FeedConfig configures the websocket feed handler.
type FeedConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// PongTimeout is how long the peer may stay silent before it is dropped.
	PongTimeout time.Duration
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		PongTimeout:  60 * time.Second,
	}
}

// FeedHandler streams committed events to websocket clients as JSON text
// frames.
//
// Query parameters:
//
//	registry  base58 registry address; only its events are sent
//	since     unix ms; with registry set, recorded history from this time
//	          is replayed before live events
type FeedHandler struct {
	hub      *Hub
	history  storage.MarketEventStore
	config   FeedConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewFeedHandler creates a feed handler. history may be nil, which disables
// replay.
func NewFeedHandler(hub *Hub, history storage.MarketEventStore, config *FeedConfig, logger *zap.Logger) *FeedHandler {
	cfg := DefaultFeedConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedHandler{
		hub:     hub,
		history: history,
		config:  cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var registry *pubkey.PublicKey
	if v := r.URL.Query().Get("registry"); v != "" {
		k, err := pubkey.Parse(v)
		if err != nil {
			http.Error(w, "invalid registry: "+err.Error(), http.StatusBadRequest)
			return
		}
		registry = &k
	}
	var since int64 = -1
	if v := r.URL.Query().Get("since"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = ms
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug("feed upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Subscribe before replaying so nothing committed in between is missed.
	sub := h.hub.Subscribe(registry)
	defer sub.Close()
	observability.SubscriberJoined()
	defer observability.SubscriberLeft()

	replayed := make(map[string]struct{})
	if registry != nil && since >= 0 && h.history != nil {
		if err := h.replay(r.Context(), conn, *registry, since, replayed); err != nil {
			h.logger.Warn("feed replay failed", zap.String("registry", registry.String()), zap.Error(err))
			return
		}
	}

	closed := h.readPump(conn)
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				h.writeClose(conn, websocket.ClosePolicyViolation, "subscriber too slow")
				return
			}
			if _, dup := replayed[event.EventID]; dup {
				continue
			}
			if err := h.write(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			h.writeClose(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func (h *FeedHandler) replay(ctx context.Context, conn *websocket.Conn, registry pubkey.PublicKey, since int64, seen map[string]struct{}) error {
	events, err := h.history.GetByRegistry(ctx, registry, since, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	for _, event := range events {
		seen[event.EventID] = struct{}{}
		if err := h.write(conn, event); err != nil {
			return err
		}
	}
	return nil
}

func (h *FeedHandler) write(conn *websocket.Conn, event *domain.Event) error {
	conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	return conn.WriteJSON(event)
}

func (h *FeedHandler) writeClose(conn *websocket.Conn, code int, text string) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(h.config.WriteTimeout))
}

// readPump discards client frames and keeps the read deadline fresh on
// pongs. The returned channel closes when the peer goes away.
func (h *FeedHandler) readPump(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})

	conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
