package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/contextstore"
	"github.com/faultlinehq/faultline/internal/engine"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repo"
	"github.com/faultlinehq/faultline/internal/services"
)

type stubTelemetry struct {
	monitor    repo.Monitor
	monitorErr error
	logs       []repo.LogRecord
	logsErr    error
}

func (s *stubTelemetry) GetMonitor(context.Context, int64) (repo.Monitor, error) {
	if s.monitorErr != nil {
		return repo.Monitor{}, s.monitorErr
	}
	return s.monitor, nil
}

func (s *stubTelemetry) QueryMetrics(context.Context, string, time.Time, time.Time) (repo.MetricResponse, error) {
	return repo.MetricResponse{}, nil
}

func (s *stubTelemetry) SearchLogs(_ context.Context, _ string, from, _ time.Time, _, _ int) ([]repo.LogRecord, error) {
	if s.logsErr != nil {
		return nil, s.logsErr
	}
	// Requests below use a 30 minute window anchored at 10:00, so the
	// incident fetch starts at half past and the baseline on the hour.
	if from.Minute() == 30 {
		return s.logs, nil
	}
	return nil, nil
}

func (s *stubTelemetry) SearchSpans(context.Context, string, time.Time, time.Time, int, int) ([]repo.SpanRecord, error) {
	return nil, nil
}

func (s *stubTelemetry) SearchEvents(context.Context, time.Time, time.Time, string) ([]repo.EventRecord, error) {
	return nil, nil
}

func errorLogs() []repo.LogRecord {
	ts := time.Date(2026, 3, 14, 9, 40, 0, 0, time.UTC)
	records := make([]repo.LogRecord, 0, 6)
	for i := 0; i < 6; i++ {
		records = append(records, repo.LogRecord{
			Timestamp: ts.Add(time.Duration(i) * time.Second),
			Message:   fmt.Sprintf("payment failed for user %d", 1000+i),
			Service:   "checkout",
			Status:    "error",
		})
	}
	return records
}

func newTestHandler(t *testing.T, telemetry engine.TelemetryProvider) *Handler {
	t.Helper()
	store := contextstore.NewStore(16, time.Minute, nil)
	pipeline := engine.NewPipeline(nil, telemetry, nil, store, "datadoghq.com", engine.Limits{})
	svc := services.NewAnalysisService(nil, pipeline, store, nil)
	return NewHandler(nil, svc, cache.NoopProvider{})
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeLogsEndpointContract(t *testing.T) {
	routes := newTestHandler(t, &stubTelemetry{logs: errorLogs()}).Routes()

	rec := postJSON(t, routes, "/api/v1/analyze/logs",
		`{"log_query": "service:checkout status:error", "anchor_ts": "2026-03-14T10:00:00Z", "window_minutes": 30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, key := range []string{"meta", "windows", "scope", "symptoms", "findings", "recommendations", "candidates"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("response missing %q key", key)
		}
	}
	if len(payload) != 7 {
		t.Fatalf("expected exactly 7 top-level keys, got %d", len(payload))
	}

	var meta models.ReportMeta
	if err := json.Unmarshal(payload["meta"], &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.SeedType != models.SeedLogs {
		t.Fatalf("unexpected seed type %q", meta.SeedType)
	}
	if meta.ReportID == "" {
		t.Fatalf("missing report_id")
	}
}

func TestAnalyzeLogsValidationMapsTo400(t *testing.T) {
	routes := newTestHandler(t, &stubTelemetry{}).Routes()

	rec := postJSON(t, routes, "/api/v1/analyze/logs", `{"anchor_ts": "2026-03-14T10:00:00Z"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "log_query") {
		t.Fatalf("error body does not name the missing field: %s", rec.Body.String())
	}
}

func TestAnalyzeMalformedJSONMapsTo400(t *testing.T) {
	routes := newTestHandler(t, &stubTelemetry{}).Routes()

	rec := postJSON(t, routes, "/api/v1/analyze/logs", `{`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyzeUpstreamFailureMapsTo500(t *testing.T) {
	routes := newTestHandler(t, &stubTelemetry{logsErr: errors.New("upstream 502")}).Routes()

	rec := postJSON(t, routes, "/api/v1/analyze/logs",
		`{"log_query": "service:checkout", "anchor_ts": "2026-03-14T10:00:00Z", "window_minutes": 30}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload["error"] == "" {
		t.Fatalf("missing error message: %s", rec.Body.String())
	}
}

func TestAnalyzeMonitorEndpoint(t *testing.T) {
	telemetry := &stubTelemetry{
		monitor: repo.Monitor{
			ID:    7,
			Name:  "checkout error rate",
			Type:  "metric alert",
			Query: "avg:checkout.request.errors{service:checkout}",
			Tags:  []string{"service:checkout", "env:prod"},
		},
		logs: errorLogs(),
	}
	routes := newTestHandler(t, telemetry).Routes()

	rec := postJSON(t, routes, "/api/v1/analyze/monitor",
		`{"monitor_id": 7, "trigger_ts": "2026-03-14T10:00:00Z", "window_minutes": 30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var report models.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Meta.SeedType != models.SeedMonitor {
		t.Fatalf("unexpected seed type %q", report.Meta.SeedType)
	}
	if report.Scope.Service != "checkout" {
		t.Fatalf("unexpected scope %+v", report.Scope)
	}
	if _, ok := report.Findings["monitor"]; !ok {
		t.Fatalf("findings missing monitor block: %v", report.Findings)
	}
}

func TestIncidentLifecycle(t *testing.T) {
	routes := newTestHandler(t, &stubTelemetry{logs: errorLogs()}).Routes()

	rec := postJSON(t, routes, "/api/v1/analyze/logs",
		`{"log_query": "service:checkout status:error", "anchor_ts": "2026-03-14T10:00:00Z", "window_minutes": 30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze failed: %d %s", rec.Code, rec.Body.String())
	}
	var report models.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	id := report.Meta.ReportID

	rec = get(t, routes, "/api/v1/incidents/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("get incident: %d %s", rec.Code, rec.Body.String())
	}
	var snapshot contextstore.ContextSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.IncidentID != id || snapshot.ReportID != id {
		t.Fatalf("snapshot does not match report: %+v", snapshot)
	}

	rec = postJSON(t, routes, "/api/v1/incidents/"+id+"/close", "{}")
	if rec.Code != http.StatusOK {
		t.Fatalf("close incident: %d %s", rec.Code, rec.Body.String())
	}

	if rec = get(t, routes, "/api/v1/incidents/"+id); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after close, got %d", rec.Code)
	}
	if rec = postJSON(t, routes, "/api/v1/incidents/"+id+"/close", "{}"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 closing twice, got %d", rec.Code)
	}
}

func TestPatternsEndpoint(t *testing.T) {
	routes := newTestHandler(t, &stubTelemetry{logs: errorLogs()}).Routes()

	rec := postJSON(t, routes, "/api/v1/analyze/logs",
		`{"log_query": "service:checkout status:error", "anchor_ts": "2026-03-14T10:00:00Z", "window_minutes": 30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze failed: %d", rec.Code)
	}

	rec = get(t, routes, "/api/v1/patterns")
	if rec.Code != http.StatusOK {
		t.Fatalf("patterns: %d %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Patterns []models.SignaturePattern `json:"patterns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode patterns: %v", err)
	}
	if len(payload.Patterns) == 0 {
		t.Fatalf("expected mined patterns")
	}

	rec = get(t, routes, "/api/v1/patterns?service=nonexistent")
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered patterns: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"patterns":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	routes := newTestHandler(t, &stubTelemetry{}).Routes()

	rec := get(t, routes, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("unexpected status %v", payload["status"])
	}
	if payload["cache"] != "ok" {
		t.Fatalf("unexpected cache state %v", payload["cache"])
	}
}

func TestAnalyzeRejectsGet(t *testing.T) {
	routes := newTestHandler(t, &stubTelemetry{}).Routes()

	rec := get(t, routes, "/api/v1/analyze/logs")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
