package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/engine"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/services"
)

// Handler serves the faultline JSON API.
type Handler struct {
	logger *slog.Logger
	svc    *services.AnalysisService
	cache  cache.Provider
}

// NewHandler constructs the API handler. The cache provider is only used for
// health reporting and may be nil.
func NewHandler(logger *slog.Logger, svc *services.AnalysisService, cacheProvider cache.Provider) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, svc: svc, cache: cacheProvider}
}

// Routes builds the API mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyze/monitor", h.analyzeMonitor)
	mux.HandleFunc("POST /api/v1/analyze/logs", h.analyzeLogs)
	mux.HandleFunc("POST /api/v1/analyze/service", h.analyzeService)
	mux.HandleFunc("GET /api/v1/incidents/{id}", h.getIncident)
	mux.HandleFunc("POST /api/v1/incidents/{id}/close", h.closeIncident)
	mux.HandleFunc("GET /api/v1/patterns", h.getPatterns)
	mux.HandleFunc("GET /healthz", h.healthz)
	return h.logRequests(mux)
}

func (h *Handler) analyzeMonitor(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeMonitorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := h.svc.AnalyzeMonitor(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) analyzeLogs(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeLogsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := h.svc.AnalyzeLogs(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) analyzeService(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeServiceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	report, err := h.svc.AnalyzeService(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) getIncident(w http.ResponseWriter, r *http.Request) {
	snapshot, ok := h.svc.Incident(r.PathValue("id"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) closeIncident(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.svc.CloseIncident(id) {
		h.writeError(w, http.StatusNotFound, "incident not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"incident_id": id, "closed": true})
}

func (h *Handler) getPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := h.svc.Patterns(r.URL.Query().Get("service"))
	if patterns == nil {
		patterns = []models.SignaturePattern{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	cacheStatus := "disabled"
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			cacheStatus = "unavailable"
		} else {
			cacheStatus = "ok"
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"cache":   cacheStatus,
		"latency": h.svc.LatencyStats(),
	})
}

// decodeBody parses the JSON request body, answering 400 on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

// writeAnalysisError maps seed validation failures to 400 and everything
// else to 500.
func (h *Handler) writeAnalysisError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, engine.ErrInvalidSeed) {
		status = http.StatusBadRequest
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response encode failed", slog.Any("error", err))
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("duration", time.Since(start)))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
