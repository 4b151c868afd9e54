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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/natetr/CrankScribe/internal/metrics"
	"github.com/natetr/CrankScribe/internal/session"
	"github.com/natetr/CrankScribe/internal/transcription"
)

const defaultMaxChunkSize = 1 << 20 // 1MB of mulaw is ~131s of audio

// SessionStore is the slice of the session store the HTTP layer uses.
type SessionStore interface {
	ReceiveChunk(sessionID string, seq int, payload []byte) error
	Finalize(ctx context.Context, sessionID string) (*session.FinalizeResult, error)
	ActiveSessionCount() int
	GetStats() session.Stats
}

// Processor derives text from a transcript (summary, minutes, todos).
type Processor interface {
	Process(ctx context.Context, action, text string) (string, error)
}

// Config contains HTTP server configuration
type Config struct {
	Port         int
	Address      string
	MaxChunkSize int
}

// HTTPServer provides the chunk ingestion and processing API
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	store     SessionStore
	processor Processor
	metrics   *metrics.Metrics

	maxChunkSize int64
	startTime    time.Time
}

// NewHTTPServer creates the HTTP API server with all routes registered.
func NewHTTPServer(cfg Config, logger *slog.Logger, store SessionStore, processor Processor, m *metrics.Metrics) *HTTPServer {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = defaultMaxChunkSize
	}

	h := &HTTPServer{
		logger:       logger,
		store:        store,
		processor:    processor,
		metrics:      m,
		maxChunkSize: int64(cfg.MaxChunkSize),
		startTime:    time.Now(),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Session-Id", "X-Chunk-Seq"},
	}))

	r.Post("/chunk", h.withMetrics("/chunk", h.handleChunk))
	r.Post("/finalize", h.withMetrics("/finalize", h.handleFinalize))
	r.Post("/process", h.withMetrics("/process", h.handleProcess))
	r.Post("/email", h.withMetrics("/email", h.handleEmail))
	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Handle("/metrics", promhttp.Handler())

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second, // finalize waits on the transcription backend
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler exposes the router, mainly for tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")
	return h.server.Shutdown(ctx)
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		h.metrics.RecordHTTPRequest(r.Method, endpoint,
			strconv.Itoa(ww.statusCode), time.Since(startTime).Seconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// handleChunk implements POST /chunk: raw mulaw bytes, no container, keyed by
// the session and sequence headers.
func (h *HTTPServer) handleChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Session-Id")
	if sessionID == "" {
		h.metrics.RecordChunkRejected()
		writeError(w, http.StatusBadRequest, "missing X-Session-Id header")
		return
	}

	seq, err := strconv.Atoi(r.Header.Get("X-Chunk-Seq"))
	if err != nil || seq < 0 {
		h.metrics.RecordChunkRejected()
		writeError(w, http.StatusBadRequest, "X-Chunk-Seq must be a non-negative integer")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, h.maxChunkSize+1))
	if err != nil {
		h.metrics.RecordChunkRejected()
		writeError(w, http.StatusBadRequest, "failed to read chunk body")
		return
	}
	if int64(len(payload)) > h.maxChunkSize {
		h.metrics.RecordChunkRejected()
		writeError(w, http.StatusRequestEntityTooLarge, "chunk too large")
		return
	}

	if err := h.store.ReceiveChunk(sessionID, seq, payload); err != nil {
		h.metrics.RecordChunkRejected()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.metrics.RecordChunkReceived(len(payload))
	h.metrics.SetActiveSessions(h.store.ActiveSessionCount())

	h.logger.Debug("Chunk received",
		slog.String("session_id", sessionID),
		slog.Int("seq", seq),
		slog.Int("bytes", len(payload)),
	)

	writeJSON(w, http.StatusOK, map[string]int{
		"received":   seq,
		"size_bytes": len(payload),
	})
}

// handleFinalize implements POST /finalize: reassemble, transcribe, respond.
func (h *HTTPServer) handleFinalize(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Session-Id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing X-Session-Id header")
		return
	}

	h.metrics.RecordTranscriptionRequest()
	startTime := time.Now()

	result, err := h.store.Finalize(r.Context(), sessionID)
	elapsed := time.Since(startTime).Seconds()

	if err != nil {
		h.metrics.RecordTranscriptionFailure(elapsed)
		h.metrics.SetActiveSessions(h.store.ActiveSessionCount())

		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		h.logger.Error("Finalize failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.metrics.RecordTranscriptionSuccess(elapsed)
	h.metrics.RecordSessionFinalized(result.AudioDuration)
	h.metrics.SetActiveSessions(h.store.ActiveSessionCount())

	writeJSON(w, http.StatusOK, result)
}

type processRequest struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

type processResponse struct {
	Result string `json:"result"`
}

// handleProcess implements POST /process: run an LLM action over a transcript.
func (h *HTTPServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Action == "" || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "missing action or text")
		return
	}

	h.metrics.RecordProcessRequest(req.Action)

	result, err := h.processor.Process(r.Context(), req.Action, req.Text)
	if err != nil {
		h.metrics.RecordProcessFailure(req.Action)

		if errors.Is(err, transcription.ErrUnknownAction) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		h.logger.Error("Processing failed",
			slog.String("action", req.Action),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, processResponse{Result: result})
}

// handleEmail is a placeholder until an outbound mail relay is configured.
func (h *HTTPServer) handleEmail(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{
		"status":  "not_implemented",
		"message": "Email relay requires SMTP configuration",
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.store.GetStats()

	health := map[string]interface{}{
		"status":            "healthy",
		"timestamp":         time.Now().UTC(),
		"uptime":            time.Since(h.startTime).String(),
		"openai_configured": h.processor != nil,
		"sessions": map[string]interface{}{
			"active":    stats.ActiveSessions,
			"finalized": stats.FinalizedSessions,
			"expired":   stats.ExpiredSessions,
			"chunks":    stats.ReceivedChunks,
		},
	}

	writeJSON(w, http.StatusOK, health)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
