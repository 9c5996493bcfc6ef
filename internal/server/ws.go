package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/events"
	"github.com/switchyard-ai/switchyard/internal/metrics"
	"github.com/switchyard-ai/switchyard/internal/middleware"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 90 * time.Second
	wsPingPeriod = 30 * time.Second

	// Connection attempts per IP per window, then a hard block.
	wsConnLimit   = 10
	wsConnWindow  = time.Minute
	wsBlockPeriod = 5 * time.Minute
)

// wsEnvelope is the wire format for every server-to-client frame.
type wsEnvelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// wsClientMessage is what clients may send: channel management and pings.
type wsClientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// WSHandler upgrades dashboard connections and bridges them onto the event
// hub. Each connection owns one hub subscription; a slow client loses old
// events rather than stalling publishers.
type WSHandler struct {
	hub     *events.Hub
	limiter *middleware.ConnLimiter
	tokens  map[string]bool
	logger  *zap.Logger

	upgrader websocket.Upgrader
	clients  atomic.Int64
}

func NewWSHandler(hub *events.Hub, authTokens []string, logger *zap.Logger) *WSHandler {
	tokens := make(map[string]bool, len(authTokens))
	for _, t := range authTokens {
		tokens[t] = true
	}
	return &WSHandler{
		hub:     hub,
		limiter: middleware.NewConnLimiter(wsConnLimit, wsConnWindow, wsBlockPeriod),
		tokens:  tokens,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ClientCount reports the number of open connections.
func (h *WSHandler) ClientCount() int {
	return int(h.clients.Load())
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := middleware.ClientIP(r)
	if !h.limiter.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many connection attempts", nil)
		return
	}
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing token", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("ip", ip), zap.Error(err))
		return
	}

	h.clients.Add(1)
	metrics.WSConnected()
	defer func() {
		h.clients.Add(-1)
		metrics.WSDisconnected()
	}()

	sub := h.hub.Subscribe()
	defer sub.Cancel()
	defer metrics.RecordWSDropped(sub.Dropped())

	h.serve(conn, sub)
}

// authorized checks the bearer token against the configured set. An empty
// set means authentication is disabled; tokens are opaque here.
func (h *WSHandler) authorized(r *http.Request) bool {
	if len(h.tokens) == 0 {
		return true
	}
	token := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		if t, ok := strings.CutPrefix(auth, "Bearer "); ok {
			token = t
		}
	}
	return h.tokens[token]
}

func (h *WSHandler) serve(conn *websocket.Conn, sub *events.Subscription) {
	defer conn.Close()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Control frames from the client are acknowledged on this channel so
	// only the writer goroutine touches the connection's write side.
	acks := make(chan wsEnvelope, 8)
	done := make(chan struct{})

	go h.readLoop(conn, sub, acks, done)

	if err := h.write(conn, wsEnvelope{
		Type:      "connected",
		Data:      map[string]any{"channels": events.AllChannels()},
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case ack := <-acks:
			if err := h.write(conn, ack); err != nil {
				return
			}
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			if err := h.write(conn, wsEnvelope{
				Type:      string(msg.Type),
				Data:      msg.Data,
				Timestamp: msg.Timestamp,
			}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) write(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(env)
}

// readLoop consumes client frames: subscribe/unsubscribe adjust the hub
// subscription, ping gets a pong envelope, anything else is ignored. A read
// error (including a missed pong deadline) closes the connection.
func (h *WSHandler) readLoop(conn *websocket.Conn, sub *events.Subscription, acks chan<- wsEnvelope, done chan<- struct{}) {
	defer close(done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		var ack wsEnvelope
		switch msg.Type {
		case "subscribe":
			sub.Subscribe(events.Channel(msg.Channel))
			ack = wsEnvelope{Type: "subscribed", Data: map[string]string{"channel": msg.Channel}}
		case "unsubscribe":
			sub.Unsubscribe(events.Channel(msg.Channel))
			ack = wsEnvelope{Type: "unsubscribed", Data: map[string]string{"channel": msg.Channel}}
		case "ping":
			ack = wsEnvelope{Type: "pong"}
		default:
			continue
		}
		ack.Timestamp = time.Now().UTC()

		select {
		case acks <- ack:
		default:
		}
	}
}
