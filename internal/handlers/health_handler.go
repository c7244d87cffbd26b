package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/services/status"
)

// HealthHandler reports liveness, queue depth and job activity
type HealthHandler struct {
	queue     interfaces.QueueManager
	ws        *WebSocketHandler
	status    *status.Service
	startedAt time.Time
	logger    arbor.ILogger
}

// NewHealthHandler creates a new HealthHandler; ws and statusService may be nil
func NewHealthHandler(queue interfaces.QueueManager, ws *WebSocketHandler, statusService *status.Service, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		queue:     queue,
		ws:        ws,
		status:    statusService,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// HealthHandler handles GET /api/health
func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	response := map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"build":   common.GetBuildInfo(),
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.ws != nil {
		response["ws_clients"] = h.ws.ClientCount()
	}
	if h.status != nil {
		response["jobs"] = h.status.Snapshot()
	}

	status := http.StatusOK
	if h.queue != nil {
		n, err := h.queue.Len(r.Context())
		if err != nil {
			h.logger.Warn().Err(err).Msg("Health check could not read queue")
			response["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			response["queue_length"] = n
		}
	}
	WriteJSON(w, status, response)
}
