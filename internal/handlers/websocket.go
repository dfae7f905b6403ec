package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/common"
	"github.com/ternarybob/gazette/internal/interfaces"
	"github.com/ternarybob/gazette/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope sent to WebSocket clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// progressSubscriber forwards one task's progress payloads to one
// connection. Writes are serialized by the per-connection mutex and
// throttled so a chatty run cannot flood the socket; terminal phases
// always go through.
type progressSubscriber struct {
	handler   *WebSocketHandler
	conn      *websocket.Conn
	taskID    string
	throttler *rate.Limiter
}

func (s *progressSubscriber) OnProgress(payload *models.ProgressPayload) error {
	if s.throttler != nil && !payload.ScrapePhase.IsTerminal() && !s.throttler.Allow() {
		return nil
	}
	return s.handler.send(s.conn, WSMessage{Type: "task_progress", Payload: payload})
}

// WebSocketHandler bridges the progress broadcaster to WebSocket clients.
// Each connection subscribes to a single task's progress stream.
type WebSocketHandler struct {
	logger           arbor.ILogger
	progress         interfaces.ProgressService
	throttleEvery    rate.Limit
	serverInstanceID string

	mu          sync.RWMutex
	clients     map[*websocket.Conn]*progressSubscriber
	clientMutex map[*websocket.Conn]*sync.Mutex
}

func NewWebSocketHandler(progress interfaces.ProgressService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		progress:         progress,
		serverInstanceID: uuid.New().String(),
		clients:          make(map[*websocket.Conn]*progressSubscriber),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
	}

	if config != nil {
		if every := config.ThrottleEvery(); every > 0 {
			h.throttleEvery = rate.Every(every)
			logger.Debug().
				Str("interval", config.ThrottleInterval).
				Msg("Throttler configured for task progress frames")
		}
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket upgrades the connection and subscribes it to the task
// named in the task_id query parameter
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		http.Error(w, "task_id query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	sub := &progressSubscriber{handler: h, conn: conn, taskID: taskID}
	if h.throttleEvery > 0 {
		sub.throttler = rate.NewLimiter(h.throttleEvery, 1)
	}

	h.mu.Lock()
	h.clients[conn] = sub
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.progress.Add(taskID, sub)
	h.logger.Debug().
		Str("task_id", taskID).
		Msgf("WebSocket client connected (total: %d)", clientCount)

	// connection handshake so clients can detect server restarts
	h.send(conn, WSMessage{Type: "connected", Payload: map[string]string{
		"task_id":            taskID,
		"server_instance_id": h.serverInstanceID,
	}})

	defer func() {
		h.progress.Remove(taskID, sub)

		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// send marshals and writes one message to a single connection
func (h *WebSocketHandler) send(conn *websocket.Conn, msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return err
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return nil
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
	return err
}

// ClientCount reports the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
