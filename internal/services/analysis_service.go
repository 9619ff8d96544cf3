package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/faultlinehq/faultline/internal/contextstore"
	"github.com/faultlinehq/faultline/internal/engine"
	"github.com/faultlinehq/faultline/internal/metrics"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/patterns"
	"github.com/faultlinehq/faultline/internal/utils"
)

// ReportPublisher forwards finished reports to an external consumer.
// repo.ReportSink satisfies it; a disabled sink publishes as a no-op.
type ReportPublisher interface {
	Publish(ctx context.Context, report models.Report) error
}

// AnalysisService fronts the pipeline for the HTTP API and the CLI. It runs
// the seed analyses, tracks latency, records metrics, forwards reports to the
// optional sink, and answers incident and pattern lookups from the store.
type AnalysisService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	store     *contextstore.Store
	sink      ReportPublisher
	miner     *patterns.Miner
	latencies *utils.LatencyTracker
}

// NewAnalysisService constructs the service facade. The store and sink may be
// nil; incident lookups then return not-found and reports are not forwarded.
func NewAnalysisService(logger *slog.Logger, pipeline *engine.Pipeline, store *contextstore.Store, sink ReportPublisher) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		logger:    logger,
		pipeline:  pipeline,
		store:     store,
		sink:      sink,
		miner:     patterns.NewMiner(logger),
		latencies: utils.NewLatencyTracker(1024),
	}
}

// AnalyzeMonitor runs a monitor-seeded analysis.
func (s *AnalysisService) AnalyzeMonitor(ctx context.Context, req models.AnalyzeMonitorRequest) (models.Report, error) {
	return s.run(ctx, models.SeedMonitor, func(ctx context.Context) (models.Report, error) {
		return s.pipeline.AnalyzeFromMonitor(ctx, req)
	})
}

// AnalyzeLogs runs a log-query-seeded analysis.
func (s *AnalysisService) AnalyzeLogs(ctx context.Context, req models.AnalyzeLogsRequest) (models.Report, error) {
	return s.run(ctx, models.SeedLogs, func(ctx context.Context) (models.Report, error) {
		return s.pipeline.AnalyzeFromLogs(ctx, req)
	})
}

// AnalyzeService runs a service-and-range-seeded analysis.
func (s *AnalysisService) AnalyzeService(ctx context.Context, req models.AnalyzeServiceRequest) (models.Report, error) {
	return s.run(ctx, models.SeedService, func(ctx context.Context) (models.Report, error) {
		return s.pipeline.AnalyzeFromService(ctx, req)
	})
}

func (s *AnalysisService) run(ctx context.Context, seed models.SeedType, analyze func(context.Context) (models.Report, error)) (models.Report, error) {
	if s.pipeline == nil {
		return models.Report{}, utils.NewAppError(string(seed), "pipeline not configured", nil)
	}

	start := time.Now()
	report, err := analyze(ctx)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveAnalysis(string(seed), duration, metrics.OutcomeError)
		s.logger.Error("analysis failed",
			slog.String("seed", string(seed)),
			slog.Any("error", err))
		return models.Report{}, utils.NewAppError(string(seed), "analysis failed", err)
	}

	s.latencies.Observe(duration)
	metrics.ObserveAnalysis(string(seed), duration, metrics.OutcomeSuccess)
	metrics.ObserveCandidates(len(report.Candidates))
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("analysis latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	s.publish(ctx, report)
	return report, nil
}

// publish forwards the report to the sink. Failures are logged and swallowed;
// the report was already produced and the caller should still receive it.
func (s *AnalysisService) publish(ctx context.Context, report models.Report) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, report); err != nil {
		s.logger.Warn("report publish failed",
			slog.String("report_id", report.Meta.ReportID),
			slog.Any("error", err))
	}
}

// Incident returns the stored context snapshot for a report ID.
func (s *AnalysisService) Incident(id string) (contextstore.ContextSnapshot, bool) {
	if s.store == nil {
		return contextstore.ContextSnapshot{}, false
	}
	ictx, ok := s.store.Get(id)
	if !ok {
		return contextstore.ContextSnapshot{}, false
	}
	return ictx.Snapshot(), true
}

// CloseIncident drops an incident context from the store.
func (s *AnalysisService) CloseIncident(id string) bool {
	if s.store == nil {
		return false
	}
	return s.store.Close(id)
}

// Patterns mines recurring log signatures from the stored reports, optionally
// filtered by service.
func (s *AnalysisService) Patterns(service string) []models.SignaturePattern {
	if s.store == nil {
		return nil
	}
	return s.miner.Mine(s.store.Reports(), service)
}

// LatencyStats exposes analysis latency aggregates for health reporting.
func (s *AnalysisService) LatencyStats() utils.LatencyStats {
	return s.latencies.Stats()
}
