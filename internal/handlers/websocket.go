package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/models"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope of every frame sent to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// wsClient is one connection. postID filters events when set.
type wsClient struct {
	conn      *websocket.Conn
	postID    string
	outbox    chan []byte
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WebSocketHandler streams progress events to browsers
type WebSocketHandler struct {
	logger           arbor.ILogger
	mu               sync.RWMutex
	clients          map[*wsClient]bool
	limiterMu        sync.Mutex
	limiters         map[string]*rate.Limiter // per post, task_progress only
	interval         time.Duration
	burst            int
	outboxSize       int
	serverInstanceID string // Clients use this to detect a server restart
}

// NewWebSocketHandler creates the handler and subscribes it to progress events
func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*wsClient]bool),
		limiters:         make(map[string]*rate.Limiter),
		interval:         250 * time.Millisecond,
		burst:            4,
		outboxSize:       256,
		serverInstanceID: uuid.New().String(),
	}
	if config != nil {
		h.interval = common.ParseDuration(config.ProgressInterval, h.interval)
		if config.ProgressBurst > 0 {
			h.burst = config.ProgressBurst
		}
		if config.OutboxSize > 0 {
			h.outboxSize = config.OutboxSize
		}
	}

	if eventService != nil {
		for _, eventType := range []interfaces.EventType{interfaces.EventProgress, interfaces.EventPostStatus} {
			if err := eventService.Subscribe(eventType, h.handleEvent); err != nil {
				logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket handler")
			}
		}
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket upgrades the request. ?post_id= limits the stream to one post.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{
		conn:   conn,
		postID: r.URL.Query().Get("post_id"),
		outbox: make(chan []byte, h.outboxSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug().Str("post_id", client.postID).Int("total", total).Msg("WebSocket client connected")

	if data, err := json.Marshal(WSMessage{Type: "connection_established", Payload: map[string]string{
		"server_instance_id": h.serverInstanceID,
		"post_id":            client.postID,
	}}); err == nil {
		client.write(data)
	}

	common.SafeGo(h.logger, "ws-write-pump", func() { h.writePump(client) })

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		remaining := len(h.clients)
		h.mu.Unlock()
		client.close()
		h.logger.Debug().Int("remaining", remaining).Msg("WebSocket client disconnected")
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg WSMessage
		if json.Unmarshal(data, &msg) == nil && msg.Type == "ping" {
			if pong, err := json.Marshal(WSMessage{Type: "pong"}); err == nil {
				client.write(pong)
			}
		}
	}
}

// writePump drains the outbox and keeps the connection alive
func (h *WebSocketHandler) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbox:
			if err := c.write(data); err != nil {
				h.logger.Debug().Err(err).Msg("WebSocket write failed")
				c.close()
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	progress, ok := event.Payload.(*models.ProgressEvent)
	if !ok || progress == nil {
		return nil
	}
	if !h.allow(progress) {
		return nil
	}

	data, err := json.Marshal(WSMessage{Type: string(progress.Type), Payload: progress})
	if err != nil {
		return err
	}
	h.broadcast(progress, data)
	return nil
}

// allow throttles task_progress per post. Other event types always pass.
func (h *WebSocketHandler) allow(event *models.ProgressEvent) bool {
	h.limiterMu.Lock()
	defer h.limiterMu.Unlock()

	switch {
	case event.Type.IsTerminal():
		delete(h.limiters, event.PostID)
		return true
	case event.Type != models.ProgressUpdate:
		return true
	}

	limiter, ok := h.limiters[event.PostID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.interval), h.burst)
		h.limiters[event.PostID] = limiter
	}
	return limiter.Allow()
}

// broadcast queues data on every matching client without blocking the publisher.
// A client whose outbox is full loses progress frames; if it would lose a
// terminal frame it is disconnected instead.
func (h *WebSocketHandler) broadcast(event *models.ProgressEvent, data []byte) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		if c.postID == "" || c.postID == event.PostID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.outbox <- data:
		case <-c.done:
		default:
			if event.Type.IsTerminal() {
				h.logger.Warn().Str("post_id", event.PostID).Msg("WebSocket client too slow, disconnecting")
				c.close()
			}
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]bool)
	h.mu.Unlock()

	for c := range clients {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.close()
	}
}
