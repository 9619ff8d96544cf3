package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/contextstore"
	"github.com/faultlinehq/faultline/internal/engine"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repo"
	"github.com/faultlinehq/faultline/internal/utils"
)

type stubTelemetry struct {
	logs    []repo.LogRecord
	logsErr error
}

func (s *stubTelemetry) GetMonitor(context.Context, int64) (repo.Monitor, error) {
	return repo.Monitor{}, errors.New("not implemented")
}

func (s *stubTelemetry) QueryMetrics(context.Context, string, time.Time, time.Time) (repo.MetricResponse, error) {
	return repo.MetricResponse{}, nil
}

func (s *stubTelemetry) SearchLogs(_ context.Context, _ string, from, _ time.Time, _, _ int) ([]repo.LogRecord, error) {
	if s.logsErr != nil {
		return nil, s.logsErr
	}
	// Only the incident window gets records so a symptom is produced.
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

type captureSink struct {
	published []models.Report
	err       error
}

func (c *captureSink) Publish(_ context.Context, report models.Report) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, report)
	return nil
}

func testLogs() []repo.LogRecord {
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

func newTestService(t *testing.T, telemetry engine.TelemetryProvider, sink ReportPublisher) (*AnalysisService, *contextstore.Store) {
	t.Helper()
	store := contextstore.NewStore(16, time.Minute, nil)
	pipeline := engine.NewPipeline(nil, telemetry, nil, store, "datadoghq.com", engine.Limits{})
	return NewAnalysisService(nil, pipeline, store, sink), store
}

func TestAnalyzeLogsFacade(t *testing.T) {
	sink := &captureSink{}
	svc, store := newTestService(t, &stubTelemetry{logs: testLogs()}, sink)

	report, err := svc.AnalyzeLogs(context.Background(), models.AnalyzeLogsRequest{
		LogQuery:      "service:checkout status:error",
		AnchorTs:      "2026-03-14T10:00:00Z",
		WindowMinutes: 30,
	})
	if err != nil {
		t.Fatalf("AnalyzeLogs returned error: %v", err)
	}
	if report.Meta.SeedType != models.SeedLogs {
		t.Fatalf("unexpected seed type %q", report.Meta.SeedType)
	}
	if len(report.Candidates) == 0 {
		t.Fatalf("expected log candidates, got none")
	}

	if len(sink.published) != 1 || sink.published[0].Meta.ReportID != report.Meta.ReportID {
		t.Fatalf("sink did not receive the report: %+v", sink.published)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 stored incident, got %d", store.Len())
	}

	snapshot, ok := svc.Incident(report.Meta.ReportID)
	if !ok {
		t.Fatalf("incident %s not found", report.Meta.ReportID)
	}
	if snapshot.IncidentID != report.Meta.ReportID {
		t.Fatalf("snapshot incident %q does not match report %q", snapshot.IncidentID, report.Meta.ReportID)
	}

	patterns := svc.Patterns("")
	if len(patterns) == 0 {
		t.Fatalf("expected mined patterns from stored report")
	}
	if patterns[0].Occurrences != 1 {
		t.Fatalf("unexpected occurrences %d", patterns[0].Occurrences)
	}

	if !svc.CloseIncident(report.Meta.ReportID) {
		t.Fatalf("CloseIncident returned false")
	}
	if _, ok := svc.Incident(report.Meta.ReportID); ok {
		t.Fatalf("incident still present after close")
	}
}

func TestAnalyzeLogsFacadeWrapsErrors(t *testing.T) {
	svc, _ := newTestService(t, &stubTelemetry{logsErr: errors.New("upstream 502")}, nil)

	_, err := svc.AnalyzeLogs(context.Background(), models.AnalyzeLogsRequest{
		LogQuery: "service:checkout",
		AnchorTs: "2026-03-14T10:00:00Z",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if utils.ErrOp(err) != "logs" {
		t.Fatalf("unexpected error op %q", utils.ErrOp(err))
	}
}

func TestAnalyzeLogsFacadeKeepsValidationSentinel(t *testing.T) {
	svc, _ := newTestService(t, &stubTelemetry{}, nil)

	_, err := svc.AnalyzeLogs(context.Background(), models.AnalyzeLogsRequest{AnchorTs: "2026-03-14T10:00:00Z"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !errors.Is(err, engine.ErrInvalidSeed) {
		t.Fatalf("error %v lost the validation sentinel", err)
	}
}

func TestPublishFailureDoesNotFailAnalysis(t *testing.T) {
	sink := &captureSink{err: errors.New("sink down")}
	svc, _ := newTestService(t, &stubTelemetry{logs: testLogs()}, sink)

	if _, err := svc.AnalyzeLogs(context.Background(), models.AnalyzeLogsRequest{
		LogQuery: "service:checkout",
		AnchorTs: "2026-03-14T10:00:00Z",
	}); err != nil {
		t.Fatalf("analysis failed because of sink: %v", err)
	}
}

func TestNilPipeline(t *testing.T) {
	svc := NewAnalysisService(nil, nil, nil, nil)
	if _, err := svc.AnalyzeLogs(context.Background(), models.AnalyzeLogsRequest{LogQuery: "q", AnchorTs: "2026-03-14T10:00:00Z"}); err == nil {
		t.Fatalf("expected error for missing pipeline")
	}
	if svc.Patterns("") != nil {
		t.Fatalf("expected nil patterns without a store")
	}
	if _, ok := svc.Incident("x"); ok {
		t.Fatalf("expected incident miss without a store")
	}
}
