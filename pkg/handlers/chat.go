// Package handlers exposes the HTTP surface: chat streaming, document
// ingestion, index statistics, health and metrics.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/thegovind/adaptiverag-work/pkg/agents"
	"github.com/thegovind/adaptiverag-work/pkg/services"
)

// ChatHandler serves the conversational endpoint over server-sent events.
type ChatHandler struct {
	service *services.RAGService
	metrics *Metrics
	logger  *slog.Logger
}

// NewChatHandler creates the chat handler. metrics may be nil.
func NewChatHandler(service *services.RAGService, metrics *Metrics) *ChatHandler {
	return &ChatHandler{
		service: service,
		metrics: metrics,
		logger:  slog.Default().With("component", "chat-handler"),
	}
}

// ChatRequest is the POST /chat body. Older clients send the question as
// "query" instead of "prompt"; both are accepted.
type ChatRequest struct {
	Prompt            string            `json:"prompt"`
	Query             string            `json:"query,omitempty"`
	Mode              string            `json:"mode"`
	VerificationLevel string            `json:"verification_level,omitempty"`
	History           []agents.ChatTurn `json:"conversation_history,omitempty"`
	SessionID         string            `json:"session_id,omitempty"`
}

// Question returns the request's question text from whichever field carried
// it.
func (r *ChatRequest) Question() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return r.Query
}

// HandleChat streams the answer for a chat request as SSE frames. Every
// frame is a JSON object with a "type" discriminator: metadata, token,
// citations, query_rewrites, token_usage, done or error.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	question := req.Question()
	if question == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	mode := agents.Mode(req.Mode)
	if h.metrics != nil {
		h.metrics.RecordChat(string(mode))
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(payload interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	send(map[string]interface{}{
		"type":       "metadata",
		"session_id": req.SessionID,
		"mode":       string(mode),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})

	h.logger.Info("Chat request started",
		"session_id", req.SessionID,
		"mode", mode,
		"query", question)

	input := agents.ChatInput{
		Query:             question,
		Mode:              mode,
		VerificationLevel: req.VerificationLevel,
		History:           req.History,
	}
	result, err := h.service.Orchestrator.RunStream(r.Context(), input, func(fragment string) {
		send(map[string]interface{}{
			"type":    "token",
			"content": fragment,
		})
	})
	if err != nil {
		h.logger.Error("Chat request failed", "session_id", req.SessionID, "error", err)
		send(map[string]interface{}{
			"type":  "error",
			"error": err.Error(),
		})
		return
	}

	if len(result.Citations) > 0 {
		send(map[string]interface{}{
			"type":      "citations",
			"citations": result.Citations,
		})
	}
	if len(result.QueryRewrites) > 0 {
		send(map[string]interface{}{
			"type":     "query_rewrites",
			"rewrites": result.QueryRewrites,
		})
	}
	if result.TokenUsage != nil {
		send(map[string]interface{}{
			"type":  "token_usage",
			"usage": result.TokenUsage,
		})
	}

	send(map[string]interface{}{
		"type":               "done",
		"success":            result.Success,
		"retrieval_method":   result.RetrievalMethod,
		"processing_time_ms": result.ProcessingTimeMs,
	})

	h.logger.Info("Chat request completed",
		"session_id", req.SessionID,
		"mode", mode,
		"success", result.Success,
		"duration_ms", result.ProcessingTimeMs)
}
