package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-rob/internal/cost"
	"github.com/miradorstack/mirador-rob/internal/export"
	"github.com/miradorstack/mirador-rob/internal/models"
	"github.com/miradorstack/mirador-rob/internal/repo"
)

type fakeBackend struct {
	lastFormat    string
	lastSignaling bool
	lastProject   string
	lastSince     time.Time
}

func (f *fakeBackend) TemplateDocument(_ context.Context, projectID string, tool models.ToolType, format string) ([]byte, error) {
	f.lastFormat = format
	return []byte(fmt.Sprintf("tool_type: %s\nproject: %s\n", tool, projectID)), nil
}

func (f *fakeBackend) AuditEntries(_ context.Context, projectID, assessmentID string, since time.Time) ([]models.AuditEntry, error) {
	f.lastProject = projectID
	f.lastSince = since
	if assessmentID == "missing" {
		return nil, repo.ErrNotFound
	}
	return []models.AuditEntry{{AssessmentID: assessmentID, Action: models.AuditAIGenerated}}, nil
}

func (f *fakeBackend) ProjectStatistics(context.Context, string) (models.Statistics, error) {
	return models.Statistics{TotalStudies: 3, VerifiedCount: 2}, nil
}

func (f *fakeBackend) ExportAssessments(_ context.Context, _ string, format string, includeSignaling bool) ([]byte, error) {
	f.lastSignaling = includeSignaling
	if format == "pdf" {
		return nil, fmt.Errorf("%w %q", export.ErrUnknownFormat, format)
	}
	return []byte("Study ID,Study\n"), nil
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdminRouterEndpoints(t *testing.T) {
	backend := &fakeBackend{}
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "admin_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router := NewAdminRouter(backend, reg, nil)

	rec := serve(t, router, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz returned %d", rec.Code)
	}

	rec = serve(t, router, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "admin_test_total 1") {
		t.Fatalf("unexpected metrics response %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, router, "/v1/projects/p1/templates/rob_2/export?format=yaml")
	if rec.Code != http.StatusOK {
		t.Fatalf("template export returned %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/yaml" || backend.lastFormat != "yaml" {
		t.Fatalf("unexpected content type %q / format %q", rec.Header().Get("Content-Type"), backend.lastFormat)
	}
	if !strings.Contains(rec.Body.String(), "tool_type: rob_2") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = serve(t, router, "/v1/projects/p1/assessments/a1/audit")
	var audit struct {
		Entries []models.AuditEntry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &audit); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(audit.Entries) != 1 || audit.Entries[0].AssessmentID != "a1" {
		t.Fatalf("unexpected audit entries: %+v", audit.Entries)
	}

	rec = serve(t, router, "/v1/projects/p1/statistics")
	var stats models.Statistics
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode statistics: %v", err)
	}
	if stats.TotalStudies != 3 {
		t.Fatalf("unexpected statistics: %+v", stats)
	}

	rec = serve(t, router, "/v1/projects/p1/exports/csv?signaling=true")
	if rec.Code != http.StatusOK || !backend.lastSignaling {
		t.Fatalf("csv export returned %d signaling=%v", rec.Code, backend.lastSignaling)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected csv content type %q", rec.Header().Get("Content-Type"))
	}
}

func TestAdminRouterErrors(t *testing.T) {
	router := NewAdminRouter(&fakeBackend{}, prometheus.NewRegistry(), nil)

	cases := map[string]int{
		"/v1/projects/p1/templates/amstar/export":              http.StatusBadRequest,
		"/v1/projects/p1/assessments/missing/audit":            http.StatusNotFound,
		"/v1/projects/p1/exports/pdf":                          http.StatusBadRequest,
		"/v1/projects/p1/assessments/a1/audit?since=yesterday": http.StatusBadRequest,
	}
	for path, want := range cases {
		if rec := serve(t, router, path); rec.Code != want {
			t.Fatalf("%s returned %d, want %d", path, rec.Code, want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(&cost.BudgetExceededError{Current: 2, Limit: 1}); got != http.StatusTooManyRequests {
		t.Fatalf("budget error mapped to %d", got)
	}
	if got := HTTPStatus(fmt.Errorf("wrap: %w", models.ErrDomainNotFound)); got != http.StatusBadRequest {
		t.Fatalf("domain error mapped to %d", got)
	}
	if got := HTTPStatus(fmt.Errorf("boom")); got != http.StatusInternalServerError {
		t.Fatalf("generic error mapped to %d", got)
	}
}

func TestAdminAuditPassesProjectAndSince(t *testing.T) {
	backend := &fakeBackend{}
	router := NewAdminRouter(backend, prometheus.NewRegistry(), nil)

	rec := serve(t, router, "/v1/projects/p7/assessments/a1/audit?since=2026-03-01T10:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("audit returned %d: %s", rec.Code, rec.Body.String())
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if backend.lastProject != "p7" || !backend.lastSince.Equal(want) {
		t.Fatalf("backend saw project %q since %v", backend.lastProject, backend.lastSince)
	}

	rec = serve(t, router, "/v1/projects/p7/assessments/a1/audit")
	if rec.Code != http.StatusOK || !backend.lastSince.IsZero() {
		t.Fatalf("audit without since returned %d since=%v", rec.Code, backend.lastSince)
	}
}
