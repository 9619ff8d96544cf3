package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/faultlinehq/faultline/internal/analysis"
	"github.com/faultlinehq/faultline/internal/contextstore"
	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repo"
	"github.com/faultlinehq/faultline/internal/utils"
)

// ErrInvalidSeed marks seed requests rejected before any telemetry is
// fetched. Transports map it to a client error.
var ErrInvalidSeed = errors.New("invalid seed")

// TelemetryProvider is the slice of the telemetry backend the pipeline
// consumes. repo.DatadogClient satisfies it; tests use struct fakes.
type TelemetryProvider interface {
	GetMonitor(ctx context.Context, id int64) (repo.Monitor, error)
	QueryMetrics(ctx context.Context, query string, from, to time.Time) (repo.MetricResponse, error)
	SearchLogs(ctx context.Context, query string, from, to time.Time, limit, maxPages int) ([]repo.LogRecord, error)
	SearchSpans(ctx context.Context, query string, from, to time.Time, limit, maxPages int) ([]repo.SpanRecord, error)
	SearchEvents(ctx context.Context, from, to time.Time, tagFilter string) ([]repo.EventRecord, error)
}

const (
	defaultWindowMinutes = 60
	defaultLogPageSize   = 1000
	defaultLogMaxPages   = 5
	defaultSpanPageSize  = 1000
	defaultSpanMaxPages  = 2
	defaultEventLimit    = 20

	monitorClusterLimit = 10
	logsClusterLimit    = 15
	serviceClusterLimit = 15
	logCandidateLimit   = 10
)

// Limits bounds how much telemetry one analysis pulls and how much of the
// result it keeps. Zero values fall back to defaults; ClusterLimit zero
// keeps the per-seed defaults.
type Limits struct {
	WindowMinutes  int
	LogPageSize    int
	LogMaxPages    int
	SpanPageSize   int
	SpanMaxPages   int
	ClusterLimit   int
	CandidateLimit int
	EventLimit     int
}

func (l Limits) normalized() Limits {
	if l.WindowMinutes <= 0 {
		l.WindowMinutes = defaultWindowMinutes
	}
	if l.LogPageSize <= 0 {
		l.LogPageSize = defaultLogPageSize
	}
	if l.LogMaxPages <= 0 {
		l.LogMaxPages = defaultLogMaxPages
	}
	if l.SpanPageSize <= 0 {
		l.SpanPageSize = defaultSpanPageSize
	}
	if l.SpanMaxPages <= 0 {
		l.SpanMaxPages = defaultSpanMaxPages
	}
	if l.CandidateLimit <= 0 {
		l.CandidateLimit = analysis.DefaultCandidateLimit
	}
	if l.EventLimit <= 0 {
		l.EventLimit = defaultEventLimit
	}
	return l
}

// Pipeline turns an analysis seed into a finished report. Each run walks the
// same path: resolve windows and scope, pull incident and baseline telemetry
// per source, accumulate symptoms and candidates in an incident context, and
// snapshot the context into the report. A source that cannot be fetched is
// recorded as a degraded finding; only the seed itself is fatal.
type Pipeline struct {
	logger    *slog.Logger
	telemetry TelemetryProvider
	rules     *RuleEngine
	store     *contextstore.Store
	site      string
	limits    Limits
}

// NewPipeline constructs an analysis pipeline. The store may be nil for
// one-shot runs; contexts then live only for the duration of the call.
func NewPipeline(logger *slog.Logger, telemetry TelemetryProvider, rules *RuleEngine, store *contextstore.Store, site string, limits Limits) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		telemetry: telemetry,
		rules:     rules,
		store:     store,
		site:      site,
		limits:    limits.normalized(),
	}
}

// AnalyzeFromMonitor seeds an analysis from a triggered monitor: scope comes
// from the monitor's tags and the monitor query doubles as the primary
// metric symptom.
func (p *Pipeline) AnalyzeFromMonitor(ctx context.Context, req models.AnalyzeMonitorRequest) (models.Report, error) {
	anchor, err := utils.ParseTimestamp(req.TriggerTs)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: parse trigger_ts: %w", ErrInvalidSeed, err)
	}
	windowMin, baselineMin := p.effectiveWindows(req.WindowMinutes, req.BaselineMinutes)
	windows, err := models.WindowsEndingAt(anchor, windowMin, baselineMin)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	monitor, err := p.telemetry.GetMonitor(ctx, req.MonitorID)
	if err != nil {
		return models.Report{}, fmt.Errorf("fetch monitor %d: %w", req.MonitorID, err)
	}
	scope := models.ScopeFromMonitorTags(monitor.Tags)
	ictx := p.newContext(scope, windows)

	query := strings.TrimSpace(monitor.Query)
	ictx.SetFinding("monitor", map[string]any{
		"id":    monitor.ID,
		"name":  monitor.Name,
		"type":  monitor.Type,
		"query": query,
		"tags":  monitor.Tags,
	})

	p.metricSection(ctx, ictx, query, windows)
	logCands := p.fetchAndClusterLogs(ctx, ictx, defaultLogQuery(scope), windows, p.clusterLimit(monitorClusterLimit))
	apmCands := p.apmSection(ctx, ictx, scope, windows, models.ModeLatency)
	events, eventCands := p.eventSection(ctx, ictx, scope, windows)

	input := map[string]any{
		"monitor_id":       req.MonitorID,
		"trigger_ts":       req.TriggerTs,
		"window_minutes":   windowMin,
		"baseline_minutes": baselineMin,
	}
	return p.assemble(ictx, models.SeedMonitor, input, events, logCands, apmCands, eventCands), nil
}

// AnalyzeFromLogs seeds an analysis from a raw log query: scope is inferred
// from the incident records and the record counts stand in as a volume
// symptom.
func (p *Pipeline) AnalyzeFromLogs(ctx context.Context, req models.AnalyzeLogsRequest) (models.Report, error) {
	query := strings.TrimSpace(req.LogQuery)
	if query == "" {
		return models.Report{}, fmt.Errorf("%w: log_query is required", ErrInvalidSeed)
	}
	anchor, err := utils.ParseTimestamp(req.AnchorTs)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: parse anchor_ts: %w", ErrInvalidSeed, err)
	}
	windowMin, baselineMin := p.effectiveWindows(req.WindowMinutes, req.BaselineMinutes)
	windows, err := models.WindowsEndingAt(anchor, windowMin, baselineMin)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	incident, baseline, err := p.logPair(ctx, query, windows)
	if err != nil {
		return models.Report{}, fmt.Errorf("search logs: %w", err)
	}
	scope := analysis.ScopeFromLogs(incident)
	ictx := p.newContext(scope, windows)

	ictx.AppendSymptom(analysis.LogVolumeSymptom(query, len(baseline), len(incident)))
	logCands := p.clusterSection(ictx, query, incident, baseline, p.clusterLimit(logsClusterLimit))
	apmCands := p.apmSection(ctx, ictx, scope, windows, models.ModeLatency)
	events, eventCands := p.eventSection(ctx, ictx, scope, windows)

	input := map[string]any{
		"log_query":        query,
		"anchor_ts":        req.AnchorTs,
		"window_minutes":   windowMin,
		"baseline_minutes": baselineMin,
	}
	return p.assemble(ictx, models.SeedLogs, input, events, logCands, apmCands, eventCands), nil
}

// AnalyzeFromService seeds an analysis from a service and an explicit time
// range, trying a fallback chain of APM metric templates for the symptom.
func (p *Pipeline) AnalyzeFromService(ctx context.Context, req models.AnalyzeServiceRequest) (models.Report, error) {
	service := strings.TrimSpace(req.Service)
	if service == "" {
		return models.Report{}, fmt.Errorf("%w: service is required", ErrInvalidSeed)
	}
	if req.Start == "" || req.End == "" {
		return models.Report{}, fmt.Errorf("%w: start and end are required", ErrInvalidSeed)
	}
	mode, err := models.ParseAnalysisMode(req.Mode)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	start, err := utils.ParseTimestamp(req.Start)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: parse start: %w", ErrInvalidSeed, err)
	}
	end, err := utils.ParseTimestamp(req.End)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: parse end: %w", ErrInvalidSeed, err)
	}
	windows, err := models.WindowsFromRange(start, end)
	if err != nil {
		return models.Report{}, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}

	scope := models.Scope{Service: service, Env: strings.TrimSpace(req.Env)}
	ictx := p.newContext(scope, windows)

	ictx.SetFinding("service", map[string]any{
		"service": service,
		"env":     scope.Env,
		"mode":    string(mode),
	})

	p.serviceMetricSection(ctx, ictx, scope, windows, mode)

	logQuery := defaultLogQuery(scope)
	if mode == models.ModeErrors {
		logQuery = errorModeLogQuery(scope)
	}
	logCands := p.fetchAndClusterLogs(ctx, ictx, logQuery, windows, p.clusterLimit(serviceClusterLimit))
	apmCands := p.apmSection(ctx, ictx, scope, windows, mode)
	events, eventCands := p.eventSection(ctx, ictx, scope, windows)

	input := map[string]any{
		"service": service,
		"env":     scope.Env,
		"start":   req.Start,
		"end":     req.End,
		"mode":    string(mode),
	}
	return p.assemble(ictx, models.SeedService, input, events, logCands, apmCands, eventCands), nil
}

// metricSection measures one query over both windows and appends the
// resulting symptom. A failed query degrades to a valueless symptom.
func (p *Pipeline) metricSection(ctx context.Context, ictx *contextstore.IncidentContext, query string, windows models.Windows) {
	if query == "" {
		ictx.AppendSymptom(analysis.NoMatchingMetricSymptom())
		return
	}
	incident, baseline, err := p.metricPair(ctx, query, windows)
	if err != nil {
		p.logger.Warn("metric query failed",
			slog.String("query", query),
			slog.Any("error", err))
		ictx.SetFinding("metrics", map[string]any{"query": query, "error": err.Error()})
		ictx.AppendSymptom(analysis.MetricSymptom(query, nil, nil))
		return
	}
	ictx.SetFinding("metrics", map[string]any{
		"query":    query,
		"baseline": baseline,
		"incident": incident,
	})
	ictx.AppendSymptom(analysis.MetricSymptom(query, baseline, incident))
}

// serviceMetricSection walks the mode's template chain and keeps the first
// query that returned points in either window. Exhausting the chain yields
// the explicit no-matching-metric symptom.
func (p *Pipeline) serviceMetricSection(ctx context.Context, ictx *contextstore.IncidentContext, scope models.Scope, windows models.Windows, mode models.AnalysisMode) {
	attempted := make([]string, 0, 2)
	for _, query := range metricTemplates(scope, mode) {
		attempted = append(attempted, query)
		incident, baseline, err := p.metricPair(ctx, query, windows)
		if err != nil {
			p.logger.Warn("metric template failed",
				slog.String("query", query),
				slog.Any("error", err))
			continue
		}
		if incident == nil && baseline == nil {
			continue
		}
		ictx.SetFinding("metrics", map[string]any{
			"query":     query,
			"baseline":  baseline,
			"incident":  incident,
			"attempted": attempted,
		})
		ictx.AppendSymptom(analysis.MetricSymptom(query, baseline, incident))
		return
	}
	ictx.SetFinding("metrics", map[string]any{
		"query":     analysis.NoMatchingMetricQuery,
		"attempted": attempted,
	})
	ictx.AppendSymptom(analysis.NoMatchingMetricSymptom())
}

// fetchAndClusterLogs pulls both log windows and clusters them. Fetch
// failures degrade to an error finding; the seed analyses that require log
// data fetch through logPair directly.
func (p *Pipeline) fetchAndClusterLogs(ctx context.Context, ictx *contextstore.IncidentContext, query string, windows models.Windows, limit int) []models.Candidate {
	incident, baseline, err := p.logPair(ctx, query, windows)
	if err != nil {
		p.logger.Warn("log search failed",
			slog.String("query", query),
			slog.Any("error", err))
		ictx.SetFinding("log_clusters", map[string]any{"query": query, "error": err.Error()})
		return nil
	}
	return p.clusterSection(ictx, query, incident, baseline, limit)
}

// clusterSection clusters a fetched log pair, records the finding, and
// returns the scored log candidates.
func (p *Pipeline) clusterSection(ictx *contextstore.IncidentContext, query string, incident, baseline []repo.LogRecord, limit int) []models.Candidate {
	clusters := analysis.MergeBaselineCounts(analysis.ClusterLogs(incident), analysis.ClusterLogs(baseline))
	top := analysis.RankClusters(clusters, limit)
	ictx.SetFinding("log_clusters", map[string]any{
		"query":              query,
		"incident_log_count": len(incident),
		"baseline_log_count": len(baseline),
		"clusters":           top,
	})
	candidates := analysis.ClusterCandidates(top)
	if len(candidates) > logCandidateLimit {
		candidates = candidates[:logCandidateLimit]
	}
	return candidates
}

// apmSection compares span windows for the scoped service. Without a service
// there is nothing to query; fetch failures disable the finding with the
// reason instead of failing the run.
func (p *Pipeline) apmSection(ctx context.Context, ictx *contextstore.IncidentContext, scope models.Scope, windows models.Windows, mode models.AnalysisMode) []models.Candidate {
	if scope.Service == "" {
		ictx.SetFinding("apm", map[string]any{"enabled": false, "reason": "missing service scope"})
		return nil
	}
	query := spanQuery(scope)
	incident, baseline, err := p.spanPair(ctx, query, windows)
	if err != nil {
		p.logger.Warn("span search failed",
			slog.String("query", query),
			slog.Any("error", err))
		ictx.SetFinding("apm", map[string]any{"enabled": false, "reason": err.Error()})
		return nil
	}

	apm := analysis.AnalyzeSpans(incident, baseline, mode)
	ictx.SetFinding("apm", map[string]any{
		"enabled":          true,
		"query":            query,
		"mode":             string(mode),
		"counts":           apm.Counts,
		"top_endpoints":    apm.TopEndpoints,
		"top_dependencies": apm.TopDependencies,
	})
	return apm.Candidates
}

// eventSection pulls change and infrastructure events for the incident
// window. Failures degrade to an empty finding carrying the reason.
func (p *Pipeline) eventSection(ctx context.Context, ictx *contextstore.IncidentContext, scope models.Scope, windows models.Windows) ([]models.EventItem, []models.Candidate) {
	tags := scope.EventTagFilter()
	records, err := p.telemetry.SearchEvents(ctx, windows.Incident.Start, windows.Incident.End, tags)
	if err != nil {
		p.logger.Warn("event search failed", slog.Any("error", err))
		ictx.SetFinding("events", map[string]any{
			"tags":  tags,
			"rows":  []models.EventItem{},
			"error": err.Error(),
		})
		return nil, nil
	}
	events := analysis.NormalizeEvents(records)
	if len(events) > p.limits.EventLimit {
		events = events[:p.limits.EventLimit]
	}
	ictx.SetFinding("events", map[string]any{"tags": tags, "rows": events})
	return events, analysis.EventCandidates(events)
}

// assemble merges candidate groups into the context and snapshots it into
// the report contract.
func (p *Pipeline) assemble(ictx *contextstore.IncidentContext, seed models.SeedType, input map[string]any, events []models.EventItem, groups ...[]models.Candidate) models.Report {
	for _, candidate := range analysis.MergeCandidates(p.limits.CandidateLimit, groups...) {
		ictx.AddCandidate(candidate)
	}

	symptoms := ictx.Symptoms()
	candidates := ictx.Candidates()
	recommendations := BuiltinRecommendations(symptoms, candidates, events)
	recommendations = appendUnique(recommendations, p.rules.Recommend(ictx.Scope, symptoms, candidates)...)

	report := models.Report{
		Meta: models.ReportMeta{
			SeedType:    seed,
			GeneratedAt: time.Now().UTC().Truncate(time.Second),
			ReportID:    ictx.ID,
			Site:        p.site,
			Input:       input,
		},
		Windows:         ictx.Windows,
		Scope:           ictx.Scope,
		Symptoms:        symptoms,
		Findings:        ictx.Findings(),
		Recommendations: recommendations,
		Candidates:      candidates,
	}
	ictx.SetReport(report)
	return report
}

func (p *Pipeline) newContext(scope models.Scope, windows models.Windows) *contextstore.IncidentContext {
	id := uuid.NewString()
	if p.store != nil {
		return p.store.Create(id, scope, windows)
	}
	return contextstore.NewIncidentContext(id, scope, windows)
}

func (p *Pipeline) effectiveWindows(windowMinutes, baselineMinutes int) (int, int) {
	if windowMinutes <= 0 {
		windowMinutes = p.limits.WindowMinutes
	}
	if baselineMinutes <= 0 {
		baselineMinutes = windowMinutes
	}
	return windowMinutes, baselineMinutes
}

func (p *Pipeline) clusterLimit(seedDefault int) int {
	if p.limits.ClusterLimit > 0 {
		return p.limits.ClusterLimit
	}
	return seedDefault
}

func (p *Pipeline) metricPair(ctx context.Context, query string, windows models.Windows) (*analysis.MetricSummary, *analysis.MetricSummary, error) {
	var incident, baseline *analysis.MetricSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := p.telemetry.QueryMetrics(gctx, query, windows.Incident.Start, windows.Incident.End)
		if err != nil {
			return fmt.Errorf("incident window: %w", err)
		}
		incident = analysis.SummarizeSeries(resp)
		return nil
	})
	g.Go(func() error {
		resp, err := p.telemetry.QueryMetrics(gctx, query, windows.Baseline.Start, windows.Baseline.End)
		if err != nil {
			return fmt.Errorf("baseline window: %w", err)
		}
		baseline = analysis.SummarizeSeries(resp)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return incident, baseline, nil
}

func (p *Pipeline) logPair(ctx context.Context, query string, windows models.Windows) ([]repo.LogRecord, []repo.LogRecord, error) {
	var incident, baseline []repo.LogRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, err := p.telemetry.SearchLogs(gctx, query, windows.Incident.Start, windows.Incident.End, p.limits.LogPageSize, p.limits.LogMaxPages)
		if err != nil {
			return fmt.Errorf("incident window: %w", err)
		}
		incident = records
		return nil
	})
	g.Go(func() error {
		records, err := p.telemetry.SearchLogs(gctx, query, windows.Baseline.Start, windows.Baseline.End, p.limits.LogPageSize, p.limits.LogMaxPages)
		if err != nil {
			return fmt.Errorf("baseline window: %w", err)
		}
		baseline = records
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return incident, baseline, nil
}

func (p *Pipeline) spanPair(ctx context.Context, query string, windows models.Windows) ([]repo.SpanRecord, []repo.SpanRecord, error) {
	var incident, baseline []repo.SpanRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		spans, err := p.telemetry.SearchSpans(gctx, query, windows.Incident.Start, windows.Incident.End, p.limits.SpanPageSize, p.limits.SpanMaxPages)
		if err != nil {
			return fmt.Errorf("incident window: %w", err)
		}
		incident = spans
		return nil
	})
	g.Go(func() error {
		spans, err := p.telemetry.SearchSpans(gctx, query, windows.Baseline.Start, windows.Baseline.End, p.limits.SpanPageSize, p.limits.SpanMaxPages)
		if err != nil {
			return fmt.Errorf("baseline window: %w", err)
		}
		baseline = spans
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return incident, baseline, nil
}

// defaultLogQuery builds the broad error-ish log filter for a scope. The
// status clause casts a wide net across common logging conventions.
func defaultLogQuery(scope models.Scope) string {
	parts := scopeQueryParts(scope)
	parts = append(parts, "(@status:error OR status:error OR level:error OR @level:error OR @http.status_code:[500 TO 599])")
	return strings.Join(parts, " ")
}

// errorModeLogQuery targets explicit error payloads rather than status
// fields, used when the analysis mode is errors.
func errorModeLogQuery(scope models.Scope) string {
	parts := scopeQueryParts(scope)
	parts = append(parts, "(error OR @error.message:* OR @error.stack:* OR exception OR level:error OR @status:error)")
	return strings.Join(parts, " ")
}

func spanQuery(scope models.Scope) string {
	return strings.Join(scopeQueryParts(scope), " ")
}

func scopeQueryParts(scope models.Scope) []string {
	parts := make([]string, 0, 3)
	if scope.Service != "" {
		parts = append(parts, "service:"+scope.Service)
	}
	if scope.Env != "" {
		parts = append(parts, "env:"+scope.Env)
	}
	return parts
}

// metricTemplates lists the APM metric queries to try for a mode, the
// service-specific form first and the generic http form second.
func metricTemplates(scope models.Scope, mode models.AnalysisMode) []string {
	tags := make([]string, 0, 2)
	if scope.Service != "" {
		tags = append(tags, "service:"+scope.Service)
	}
	if scope.Env != "" {
		tags = append(tags, "env:"+scope.Env)
	}
	tagExpr := "{*}"
	if len(tags) > 0 {
		tagExpr = "{" + strings.Join(tags, ",") + "}"
	}

	service := scope.Service
	switch mode {
	case models.ModeErrors:
		return []string{
			fmt.Sprintf("sum:trace.%s.request.errors%s.as_count() / sum:trace.%s.request.hits%s.as_count()", service, tagExpr, service, tagExpr),
			fmt.Sprintf("sum:trace.%s.request.errors%s.as_count()", service, tagExpr),
		}
	case models.ModeThroughput:
		return []string{
			fmt.Sprintf("sum:trace.%s.request.hits%s.as_count()", service, tagExpr),
			fmt.Sprintf("sum:trace.http.request.hits%s.as_count()", tagExpr),
		}
	default:
		return []string{
			fmt.Sprintf("p95:trace.%s.request.duration%s", service, tagExpr),
			fmt.Sprintf("p95:trace.http.request.duration%s", tagExpr),
		}
	}
}
