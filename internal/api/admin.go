package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-rob/internal/cost"
	"github.com/miradorstack/mirador-rob/internal/export"
	"github.com/miradorstack/mirador-rob/internal/llm"
	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/repo"
	"github.com/miradorstack/mirador-rob/internal/utils"
)

// AdminBackend serves the read-only HTTP endpoints that sit next to /metrics.
type AdminBackend interface {
	TemplateDocument(ctx context.Context, projectID string, tool models.ToolType, format string) ([]byte, error)
	AuditEntries(ctx context.Context, projectID, assessmentID string, since time.Time) ([]models.AuditEntry, error)
	ProjectStatistics(ctx context.Context, projectID string) (models.Statistics, error)
	ExportAssessments(ctx context.Context, projectID, format string, includeSignaling bool) ([]byte, error)
}

type adminHandler struct {
	backend AdminBackend
	logger  *slog.Logger
}

// NewAdminRouter exposes Prometheus metrics, a liveness check and the export endpoints.
func NewAdminRouter(backend AdminBackend, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &adminHandler{backend: backend, logger: logger}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1/projects/{project}").Subrouter()
	v1.HandleFunc("/templates/{tool}/export", h.exportTemplate).Methods(http.MethodGet)
	v1.HandleFunc("/assessments/{id}/audit", h.audit).Methods(http.MethodGet)
	v1.HandleFunc("/statistics", h.statistics).Methods(http.MethodGet)
	v1.HandleFunc("/exports/{format}", h.exportAssessments).Methods(http.MethodGet)
	return r
}

// exportTemplate handles GET /v1/projects/{project}/templates/{tool}/export?format=yaml
func (h *adminHandler) exportTemplate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tool, err := models.ParseToolType(vars["tool"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	format := r.URL.Query().Get("format")
	data, err := h.backend.TemplateDocument(r.Context(), vars["project"], tool, format)
	if err != nil {
		h.writeError(w, err)
		return
	}
	contentType := "application/json"
	if format == "yaml" || format == "yml" {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// audit handles GET /v1/projects/{project}/assessments/{id}/audit?since=<RFC 3339>
func (h *adminHandler) audit(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := utils.ParseRFC3339(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		since = parsed
	}
	vars := mux.Vars(r)
	entries, err := h.backend.AuditEntries(r.Context(), vars["project"], vars["id"], since)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// statistics handles GET /v1/projects/{project}/statistics
func (h *adminHandler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.backend.ProjectStatistics(r.Context(), mux.Vars(r)["project"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// exportAssessments handles GET /v1/projects/{project}/exports/{format}?signaling=true
func (h *adminHandler) exportAssessments(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	includeSignaling, _ := strconv.ParseBool(r.URL.Query().Get("signaling"))
	data, err := h.backend.ExportAssessments(r.Context(), vars["project"], vars["format"], includeSignaling)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(vars["format"]))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *adminHandler) writeError(w http.ResponseWriter, err error) {
	code := HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("admin request failed", slog.Any("error", err))
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// HTTPStatus maps service errors onto HTTP status codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnknownTool),
		errors.Is(err, models.ErrInvalidTemplate),
		errors.Is(err, models.ErrDomainNotFound),
		errors.Is(err, models.ErrInvalidJudgment),
		errors.Is(err, models.ErrToolDisabled),
		errors.Is(err, export.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, cost.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrNoClient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
