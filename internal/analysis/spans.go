package analysis

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repo"
)

const (
	maxTraceCandidates  = 10
	traceCandidateCap   = 0.95
	traceCandidateFloor = 0.1
	sampleTraceIDLimit  = 5
	apmTableLimit       = 10
)

// ComputeSpanStats aggregates a span group into the stats block the report
// exposes. Percentiles use nearest-rank so every reported value is a real
// observation.
func ComputeSpanStats(spans []repo.SpanRecord) models.SpanStats {
	stats := models.SpanStats{Count: len(spans)}
	if len(spans) == 0 {
		return stats
	}

	durations := make([]float64, 0, len(spans))
	seen := map[string]bool{}
	for _, span := range spans {
		ms := float64(span.Duration) / float64(time.Millisecond)
		durations = append(durations, ms)
		stats.TotalDurationMs += ms
		if span.IsError {
			stats.ErrorCount++
		}
		if span.TraceID != "" && !seen[span.TraceID] && len(stats.SampleTraceIDs) < sampleTraceIDLimit {
			seen[span.TraceID] = true
			stats.SampleTraceIDs = append(stats.SampleTraceIDs, span.TraceID)
		}
	}
	sort.Float64s(durations)

	stats.AvgDurationMs = stats.TotalDurationMs / float64(len(spans))
	stats.P50Ms = percentileNearestRank(durations, 0.50)
	stats.P95Ms = percentileNearestRank(durations, 0.95)
	stats.P99Ms = percentileNearestRank(durations, 0.99)
	stats.ErrorRate = float64(stats.ErrorCount) / float64(len(spans))
	return stats
}

// percentileNearestRank picks sorted[floor((n-1)*p)].
func percentileNearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(float64(len(sorted)-1) * p))
	return sorted[idx]
}

// PartitionSpans splits spans into server and client groups by kind. A
// collection with no kind tagging at all is treated as server spans.
func PartitionSpans(spans []repo.SpanRecord) (server, client []repo.SpanRecord) {
	tagged := false
	for _, span := range spans {
		switch strings.ToLower(span.Kind) {
		case "server":
			server = append(server, span)
			tagged = true
		case "client":
			client = append(client, span)
			tagged = true
		case "":
		default:
			tagged = true
		}
	}
	if !tagged {
		return spans, nil
	}
	return server, client
}

// DependencyKey resolves the downstream system a client span talks to: the
// peer-service attribute, else the operation's first dot-segment, else
// unknown.
func DependencyKey(span repo.SpanRecord) string {
	if span.PeerService != "" {
		return span.PeerService
	}
	if span.Resource != "" {
		head, _, _ := strings.Cut(span.Resource, ".")
		return head
	}
	return "unknown"
}

// EndpointRegressions compares per-resource server span stats across windows
// and scores them for the selected mode.
func EndpointRegressions(incident, baseline []repo.SpanRecord, mode models.AnalysisMode) []models.Candidate {
	incGroups := groupByResource(incident)
	baseGroups := groupByResource(baseline)

	resources := sortedKeys(incGroups)
	candidates := make([]models.Candidate, 0, len(resources))
	for _, resource := range resources {
		incStats := ComputeSpanStats(incGroups[resource])
		baseStats := ComputeSpanStats(baseGroups[resource])

		var raw float64
		switch mode {
		case models.ModeErrors:
			raw = (incStats.ErrorRate - baseStats.ErrorRate) / 0.5
		case models.ModeThroughput:
			raw = float64(baseStats.Count-incStats.Count) / 100
		default:
			raw = (incStats.P95Ms - baseStats.P95Ms) / 500
		}
		score := clamp01(raw)
		if score > traceCandidateCap {
			score = traceCandidateCap
		}
		if score <= traceCandidateFloor {
			continue
		}

		candidate, err := models.NewCandidate(
			models.CandidateEndpoint,
			"Endpoint regression: "+resource,
			score,
			map[string]any{
				"resource": resource,
				"mode":     string(mode),
				"incident": incStats,
				"baseline": baseStats,
			},
		)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// DependencyRegressions compares client span groups per downstream system,
// blending added total latency with added errors.
func DependencyRegressions(incident, baseline []repo.SpanRecord) []models.Candidate {
	incGroups := groupByDependency(incident)
	baseGroups := groupByDependency(baseline)

	deps := sortedKeys(incGroups)
	candidates := make([]models.Candidate, 0, len(deps))
	for _, dep := range deps {
		incStats := ComputeSpanStats(incGroups[dep])
		baseStats := ComputeSpanStats(baseGroups[dep])

		durationDelta := incStats.TotalDurationMs - baseStats.TotalDurationMs
		errorDelta := incStats.ErrorRate - baseStats.ErrorRate
		score := clamp01(durationDelta/2000 + errorDelta/0.5)
		if score > traceCandidateCap {
			score = traceCandidateCap
		}
		if score <= traceCandidateFloor {
			continue
		}

		candidate, err := models.NewCandidate(
			models.CandidateDependency,
			"Downstream suspect: "+dep,
			score,
			map[string]any{
				"dependency":        dep,
				"incident":          incStats,
				"baseline":          baseStats,
				"duration_delta_ms": durationDelta,
			},
		)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// TraceCandidates runs both regression passes over a pair of span windows
// and returns the merged top suspects.
func TraceCandidates(incident, baseline []repo.SpanRecord, mode models.AnalysisMode) []models.Candidate {
	if len(incident) == 0 {
		return nil
	}
	incServer, incClient := PartitionSpans(incident)
	baseServer, baseClient := PartitionSpans(baseline)

	endpoints := EndpointRegressions(incServer, baseServer, mode)
	dependencies := DependencyRegressions(incClient, baseClient)
	return MergeCandidates(maxTraceCandidates, endpoints, dependencies)
}

// ApmAnalysis bundles span-derived candidates with the evidence tables the
// report's apm finding carries.
type ApmAnalysis struct {
	Candidates      []models.Candidate
	Counts          map[string]int
	TopEndpoints    []map[string]any
	TopDependencies []map[string]any
}

// AnalyzeSpans runs the full span comparison for one incident/baseline pair:
// scored candidates plus the per-resource and per-dependency stat tables.
func AnalyzeSpans(incident, baseline []repo.SpanRecord, mode models.AnalysisMode) ApmAnalysis {
	incServer, incClient := PartitionSpans(incident)
	baseServer, baseClient := PartitionSpans(baseline)

	return ApmAnalysis{
		Candidates: TraceCandidates(incident, baseline, mode),
		Counts: map[string]int{
			"incident_spans":        len(incident),
			"baseline_spans":        len(baseline),
			"incident_server_spans": len(incServer),
			"baseline_server_spans": len(baseServer),
			"incident_client_spans": len(incClient),
			"baseline_client_spans": len(baseClient),
		},
		TopEndpoints:    comparisonRows("resource", groupByResource(incServer), groupByResource(baseServer)),
		TopDependencies: comparisonRows("dependency", groupByDependency(incClient), groupByDependency(baseClient)),
	}
}

// comparisonRows tabulates incident-window groups against their baseline
// counterparts, busiest incident groups first.
func comparisonRows(label string, incident, baseline map[string][]repo.SpanRecord) []map[string]any {
	type entry struct {
		key   string
		stats models.SpanStats
	}
	entries := make([]entry, 0, len(incident))
	for key, group := range incident {
		entries = append(entries, entry{key: key, stats: ComputeSpanStats(group)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].stats.TotalDurationMs != entries[j].stats.TotalDurationMs {
			return entries[i].stats.TotalDurationMs > entries[j].stats.TotalDurationMs
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > apmTableLimit {
		entries = entries[:apmTableLimit]
	}

	rows := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		var base any
		if group, ok := baseline[e.key]; ok {
			base = ComputeSpanStats(group)
		}
		rows = append(rows, map[string]any{
			label:      e.key,
			"incident": e.stats,
			"baseline": base,
		})
	}
	return rows
}

func groupByResource(spans []repo.SpanRecord) map[string][]repo.SpanRecord {
	groups := map[string][]repo.SpanRecord{}
	for _, span := range spans {
		if span.Resource == "" {
			continue
		}
		groups[span.Resource] = append(groups[span.Resource], span)
	}
	return groups
}

func groupByDependency(spans []repo.SpanRecord) map[string][]repo.SpanRecord {
	groups := map[string][]repo.SpanRecord{}
	for _, span := range spans {
		key := DependencyKey(span)
		groups[key] = append(groups[key], span)
	}
	return groups
}

func sortedKeys(groups map[string][]repo.SpanRecord) []string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
