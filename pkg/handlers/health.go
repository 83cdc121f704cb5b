package handlers

import (
	"net/http"
	"time"

	"github.com/thegovind/adaptiverag-work/pkg/services"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	service   *services.RAGService
	startedAt time.Time
	version   string
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(service *services.RAGService, version string) *HealthHandler {
	return &HealthHandler{
		service:   service,
		startedAt: time.Now(),
		version:   version,
	}
}

// HandleHealthz reports process liveness.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).String(),
	})
}

// HandleReadyz reports readiness with per-dependency detail. The service
// stays ready when optional backends are down because every request path has
// a fallback; the detail tells operators which paths are degraded.
func (h *HealthHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	dependencies := map[string]string{
		"llm_backend":  "unavailable",
		"vector_index": "unavailable",
	}
	if h.service.LLMClient.Available() {
		dependencies["llm_backend"] = "ok"
	}
	if h.service.Index != nil && h.service.Index.Healthy(r.Context()) {
		dependencies["vector_index"] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ready",
		"dependencies": dependencies,
	})
}

// HandleTokenUsage reports accumulated backend token consumption.
func (h *HealthHandler) HandleTokenUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.TokenTracker.Summary(20))
}
