package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
	"github.com/opensource-finance/sentinel/internal/intel"
	"github.com/opensource-finance/sentinel/internal/repository"
)

const maxBodyBytes = 1 << 20

// Options carries the optional collaborators of the API. Any of them may be
// nil; endpoints that need a missing one answer 503.
type Options struct {
	Repo  domain.Repository
	Cache domain.Cache
	Bus   domain.EventBus
	Intel *intel.Service

	// Store and Ages back the domain check endpoint. They are normally the
	// same capabilities handed to the engine.
	Store domain.ThreatIndicatorStore
	Ages  domain.DomainAgeSource

	// PromotionThreshold is the upvote count that promotes a report.
	PromotionThreshold int

	Version string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	engine *engine.Engine
	opts   Options
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, opts Options) *Handler {
	return &Handler{engine: eng, opts: opts}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			components[name] = "unavailable"
			slog.Warn("health check failed", "component", name, "error", err)
			return
		}
		components[name] = "ok"
	}

	if h.opts.Repo != nil {
		check("repository", func() error { return h.opts.Repo.Ping(ctx) })
	}
	if h.opts.Cache != nil {
		check("cache", func() error { return h.opts.Cache.Ping(ctx) })
	}
	if h.opts.Bus != nil {
		check("eventBus", func() error { return h.opts.Bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.opts.Version,
		"components": components,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON request body")
		}
		return false
	}
	return true
}

// queryLimit parses the limit query parameter. Zero means the repository default.
func queryLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// writeStoreError maps repository errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("store operation failed", "resource", what, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeUnavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" not available")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
