package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/maauso/screenshot-bot/internal/userstore"
)

// pingTimeout bounds the store check done by /health.
const pingTimeout = 2 * time.Second

// UserStats is the part of the user store the handlers read.
type UserStats interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Value(ctx context.Context, name string) (int64, error)
}

// PendingCounter reports how many uploads are waiting for a count.
type PendingCounter interface {
	Len() int
}

// Handlers contains the HTTP handlers.
type Handlers struct {
	users    UserStats
	sessions PendingCounter
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(users UserStats, sessions PendingCounter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		users:    users,
		sessions: sessions,
		logger:   logger,
	}
}

// Health handles GET /health requests. It answers 503 when the user store
// cannot be reached.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := h.users.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Stats handles GET /stats requests.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Count(r.Context())
	if err != nil {
		h.logger.Error("failed to count users", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to count users", "STATS_FAILED")
		return
	}

	files, err := h.users.Value(r.Context(), userstore.CounterFilesProcessed)
	if err != nil {
		h.logger.Error("failed to read files counter", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read counters", "STATS_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Users:           users,
		FilesProcessed:  files,
		PendingSessions: h.sessions.Len(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
