package web

import (
	"encoding/json"
	"net/http"

	"pong_nexus/internal/core/stats"
	"pong_nexus/internal/shared/logger"
	"pong_nexus/internal/shared/types"
)

// StatusProvider is the view of the running server the web handler needs.
// This decouples the web package from the app package.
type StatusProvider interface {
	GetListenerInfo() *types.ListenerInfo
	Snapshot() stats.Snapshot
	GlobalStatus() string
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	GlobalStatus string              `json:"globalStatus"`
	Listener     *types.ListenerInfo `json:"listener"`
	Stats        stats.Snapshot      `json:"stats"`
}

type Handler struct {
	provider StatusProvider
}

func NewHandler(provider StatusProvider) *Handler {
	return &Handler{provider: provider}
}

// HandleStatus 处理 GET /api/status 请求
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, StatusResponse{
		GlobalStatus: h.provider.GlobalStatus(),
		Listener:     h.provider.GetListenerInfo(),
		Stats:        h.provider.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}
