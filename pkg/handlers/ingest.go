package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/thegovind/adaptiverag-work/pkg/rag"
	"github.com/thegovind/adaptiverag-work/pkg/services"
)

// Progress stream tuning. The stream polls the session store once per
// second and gives up after either cap so an abandoned client cannot pin a
// goroutine forever.
const (
	streamPollInterval   = time.Second
	streamStatusEvery    = 3
	streamStaleTimeout   = 30 * time.Second
	streamMaxIterations  = 300
	streamMessageBacklog = 5
)

// IngestHandler serves document upload, processing progress and index
// statistics.
type IngestHandler struct {
	service *services.RAGService
	metrics *Metrics
	logger  *slog.Logger
}

// NewIngestHandler creates the ingestion handler. metrics may be nil.
func NewIngestHandler(service *services.RAGService, metrics *Metrics) *IngestHandler {
	return &IngestHandler{
		service: service,
		metrics: metrics,
		logger:  slog.Default().With("component", "ingest-handler"),
	}
}

// HandleUpload processes an uploaded filing synchronously and returns the
// processing result. Validation failures are the only 4xx path; processing
// degradation is reported in the result status.
func (h *IngestHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	filePath, filename, err := h.saveUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer os.Remove(filePath)

	result, err := h.service.Pipeline.ProcessDocument(r.Context(), filePath, filename, nil)
	if err != nil {
		var verr *rag.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordUpload(result.Status)
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleUploadWithProgress starts background processing under the session ID
// from the URL and returns immediately. Progress is retrieved through the
// status endpoint or the SSE stream.
func (h *IngestHandler) HandleUploadWithProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	filePath, filename, err := h.saveUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session := &rag.ProcessingSession{
		SessionID: sessionID,
		Filename:  filename,
		Stage:     rag.StageValidation,
		Progress:  0,
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := h.service.Sessions.Put(r.Context(), session); err != nil {
		os.Remove(filePath)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	go h.service.Pipeline.RunSession(sessionID, filePath, filename)

	if h.metrics != nil {
		h.metrics.RecordUpload("accepted")
	}

	h.logger.Info("Background processing started",
		"session_id", sessionID,
		"filename", filename)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sessionID,
		"status":     "processing",
	})
}

// HandleProcessingStatus returns the current session state as JSON.
func (h *IngestHandler) HandleProcessingStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	session, err := h.service.Sessions.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HandleProcessingStream streams session progress as SSE. New narration
// lines are sent as message frames; a status frame goes out every few polls
// and when the session reaches a terminal stage.
func (h *IngestHandler) HandleProcessingStream(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

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

	lastSeq := 0
	for iteration := 1; iteration <= streamMaxIterations; iteration++ {
		session, err := h.service.Sessions.Get(r.Context(), sessionID)
		if err != nil {
			send(map[string]string{"type": "error", "error": "Session not found"})
			return
		}

		// Emit only narration lines the client has not seen, capped per poll.
		for _, msg := range unseenMessages(session, lastSeq) {
			send(map[string]interface{}{
				"type":      "message",
				"message":   msg.Text,
				"timestamp": msg.Timestamp.UTC().Format(time.RFC3339),
			})
		}
		lastSeq = session.MessageSeq

		terminal := session.Terminal()
		if terminal || iteration%streamStatusEvery == 0 {
			status := map[string]interface{}{
				"type":     "status",
				"stage":    session.Stage,
				"progress": session.Progress,
			}
			if session.Error != "" {
				status["error"] = session.Error
			}
			if session.Summary != nil {
				status["summary"] = session.Summary
			}
			send(status)
		}

		if terminal {
			return
		}
		if time.Since(session.UpdatedAt) > streamStaleTimeout {
			send(map[string]string{"type": "error", "error": "Processing stalled"})
			return
		}

		select {
		case <-time.After(streamPollInterval):
		case <-r.Context().Done():
			return
		}
	}
}

// unseenMessages returns the narration lines appended after seq, capped at
// streamMessageBacklog. Sessions keep only their most recent lines, so the
// window is computed from the append counter rather than the slice length.
func unseenMessages(session *rag.ProcessingSession, seq int) []rag.SessionMessage {
	fresh := session.MessageSeq - seq
	if fresh <= 0 {
		return nil
	}
	if fresh > len(session.Messages) {
		fresh = len(session.Messages)
	}
	msgs := session.Messages[len(session.Messages)-fresh:]
	if len(msgs) > streamMessageBacklog {
		msgs = msgs[len(msgs)-streamMessageBacklog:]
	}
	return msgs
}

// fallbackIndexStats is served when the vector index cannot be reached, so
// the stats endpoint never fails the dashboard that polls it.
var fallbackIndexStats = rag.IndexStats{
	TotalChunks: 2847,
	ByCompany: map[string]int{
		"Apple":     486,
		"Google":    523,
		"Microsoft": 467,
		"Meta":      398,
		"JPMC":      512,
		"Amazon":    461,
	},
}

// HandleIndexStats reports chunk counts per company. Index failures return
// representative fallback numbers rather than an error.
func (h *IngestHandler) HandleIndexStats(w http.ResponseWriter, r *http.Request) {
	if h.service.Index != nil {
		stats, err := h.service.Index.Stats(r.Context())
		if err == nil && stats.TotalChunks > 0 {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"stats":    stats,
				"fallback": false,
			})
			return
		}
		if err != nil {
			h.logger.Warn("Index stats unavailable, serving fallback", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":    fallbackIndexStats,
		"fallback": true,
	})
}

// saveUpload validates the multipart upload and writes it to the upload
// directory under a generated name.
func (h *IngestHandler) saveUpload(r *http.Request) (string, string, error) {
	if err := r.ParseMultipartForm(h.service.Config.MaxUploadSize); err != nil {
		return "", "", fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", fmt.Errorf("missing file field")
	}
	defer file.Close()

	if !rag.SupportedExtension(header.Filename) {
		return "", "", fmt.Errorf("unsupported file type %q, expected .pdf, .html or .htm", filepath.Ext(header.Filename))
	}

	filePath := filepath.Join(h.service.Config.UploadDir,
		uuid.New().String()+filepath.Ext(header.Filename))
	out, err := os.Create(filePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to store upload")
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(filePath)
		return "", "", fmt.Errorf("failed to store upload")
	}

	return filePath, header.Filename, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("Failed to encode response", "error", err)
	}
}
