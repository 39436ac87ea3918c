package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brianhuynh125/MedScribeAI/internal/audio"
	"github.com/brianhuynh125/MedScribeAI/internal/config"
	"github.com/brianhuynh125/MedScribeAI/internal/generate"
	"github.com/brianhuynh125/MedScribeAI/internal/metrics"
	"github.com/brianhuynh125/MedScribeAI/internal/pipeline"
	"github.com/brianhuynh125/MedScribeAI/internal/session"
)

// maxUploadBytes bounds multipart form parsing for audio uploads.
const maxUploadBytes = 100 << 20 // 100 MB

// HTTPServer provides the HTTP API for transcription, note processing,
// session management and monitoring
type HTTPServer struct {
	server       *http.Server
	logger       *slog.Logger
	config       *config.Config
	orchestrator *pipeline.Orchestrator
	store        *session.Store
	metrics      *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	orchestrator *pipeline.Orchestrator, store *session.Store, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:       logger,
		config:       cfg,
		orchestrator: orchestrator,
		store:        store,
		metrics:      m,
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:     h.withCORS(mux),
		ReadTimeout: 5 * time.Minute, // uploads and long-running pipeline requests
		IdleTimeout: 60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	mux.HandleFunc("/transcribe", h.withMetrics("/transcribe", h.handleTranscribe))
	mux.HandleFunc("/transcribe_process", h.withMetrics("/transcribe_process", h.handleTranscribeProcess))

	mux.Handle("/metrics", promhttp.Handler())
}

// Start begins serving HTTP requests in a background goroutine
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server", slog.String("address", h.server.Addr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server")
	return h.server.Shutdown(ctx)
}

// handleHealth returns service health information
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "scribe-service",
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
	})
}

// handleConfig returns the service configuration without sensitive data
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"audio": map[string]any{
			"sample_rate":        h.config.Audio.SampleRate,
			"channels":           h.config.Audio.Channels,
			"allowed_extensions": h.config.Audio.AllowedExtensions,
		},
		"transcription": map[string]any{
			"device":        h.config.Transcription.Device,
			"default_model": h.config.Transcription.DefaultModel,
			"batch_size":    h.config.Transcription.BatchSize,
			"timeout":       h.config.Transcription.Timeout,
		},
		"generation": map[string]any{
			"default_model": h.config.Generation.DefaultModel,
			"temperature":   h.config.Generation.Temperature,
			"timeout":       h.config.Generation.Timeout,
		},
	})
}

// handleSessions serves GET (list) and POST (save one or many)
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := h.store.List()
		if err != nil {
			h.translateError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, sessions)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		records, err := decodeSessions(body)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := h.store.Save(records...); err != nil {
			h.translateError(w, err)
			return
		}

		for range records {
			h.metrics.RecordSessionSaved()
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSessionDetail serves GET and DELETE on /sessions/{id}
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := h.store.Get(id)
		if err != nil {
			h.translateError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, record)

	case http.MethodDelete:
		if err := h.store.Delete(id); err != nil {
			h.translateError(w, err)
			return
		}
		h.metrics.RecordSessionDeleted()
		h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTranscribe serves the transcription-only endpoint
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	audioData, filename, err := h.readUpload(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	speechModel := r.FormValue("speech_model")
	batched := r.FormValue("batched") == "true"
	batchSize, _ := strconv.Atoi(r.FormValue("batch_size"))

	transcript, err := h.orchestrator.Transcribe(r.Context(), audioData, filename, speechModel, batched, batchSize)
	if err != nil {
		h.translateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"transcription": transcript})
}

// handleTranscribeProcess serves the full dictation-to-note pipeline
func (h *HTTPServer) handleTranscribeProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	audioData, filename, err := h.readUpload(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		h.writeError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	batchSize, _ := strconv.Atoi(r.FormValue("batch_size"))

	result, err := h.orchestrator.Process(r.Context(), pipeline.Request{
		Audio:       audioData,
		Filename:    filename,
		SessionID:   sessionID,
		SpeechModel: r.FormValue("speech_model"),
		LLMModel:    r.FormValue("llm_model"),
		Batched:     r.FormValue("batched") == "true",
		BatchSize:   batchSize,
	})
	if err != nil {
		h.translateError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"structured": result.Note.IsStructured(),
	})
}

// readUpload extracts the audio file from a multipart form
func (h *HTTPServer) readUpload(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}

	return data, header.Filename, nil
}

// translateError maps the pipeline error taxonomy onto HTTP status codes.
// Validation problems surface their message verbatim; transcode and decode
// failures carry the tool's diagnostic; generation transport failures are
// reported as a bad gateway; everything else becomes a single generic
// internal-fault message.
func (h *HTTPServer) translateError(w http.ResponseWriter, err error) {
	var pipelineValidation *pipeline.ValidationError
	var storeValidation *session.ValidationError
	var transcodeErr *audio.TranscodeError
	var decodeErr *audio.DecodeError
	var serviceErr *generate.ServiceError

	switch {
	case errors.As(err, &pipelineValidation):
		h.writeError(w, http.StatusBadRequest, pipelineValidation.Message)

	case errors.As(err, &storeValidation):
		h.writeError(w, http.StatusBadRequest, storeValidation.Reason)

	case errors.Is(err, session.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Session not found")

	case errors.As(err, &transcodeErr):
		h.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("audio transcoding failed: %s", transcodeErr.Stderr))

	case errors.As(err, &decodeErr):
		h.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("audio decoding failed: %s", decodeErr.Stderr))

	case errors.As(err, &serviceErr):
		h.writeError(w, http.StatusBadGateway, "text generation service unavailable")

	default:
		h.logger.Error("Internal pipeline failure", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "internal processing failure")
	}
}

// writeJSON writes a JSON response with the given status code
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError writes a structured error payload
func (h *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"error": message})
}

// withMetrics wraps a handler with request metrics recording
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		handler(recorder, r)

		h.metrics.RecordHTTPRequest(r.Method, endpoint,
			strconv.Itoa(recorder.status), time.Since(start).Seconds())
	}
}

// withCORS adds CORS headers for the configured front-end origins
func (h *HTTPServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range h.config.HTTP.AllowedOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				break
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// decodeSessions accepts either a single session object or a list of them
func decodeSessions(body []byte) ([]session.Session, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("empty request body")
	}

	if strings.HasPrefix(trimmed, "[") {
		var records []session.Session
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("invalid session list: %w", err)
		}
		return records, nil
	}

	var record session.Session
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("invalid session document: %w", err)
	}
	return []session.Session{record}, nil
}
