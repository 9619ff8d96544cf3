package models

import "fmt"

// AnalysisMode selects which span regression signal is scored.
type AnalysisMode string

const (
	ModeLatency    AnalysisMode = "latency"
	ModeErrors     AnalysisMode = "errors"
	ModeThroughput AnalysisMode = "throughput"
)

// ParseAnalysisMode normalises a user-supplied mode string. Empty input
// defaults to latency.
func ParseAnalysisMode(s string) (AnalysisMode, error) {
	switch AnalysisMode(s) {
	case "":
		return ModeLatency, nil
	case ModeLatency, ModeErrors, ModeThroughput:
		return AnalysisMode(s), nil
	}
	return "", fmt.Errorf("unknown analysis mode %q", s)
}

// SpanStats aggregates a group of spans sharing a resource or dependency.
type SpanStats struct {
	Count           int      `json:"count"`
	TotalDurationMs float64  `json:"total_duration_ms"`
	AvgDurationMs   float64  `json:"avg_duration_ms"`
	P50Ms           float64  `json:"p50_ms"`
	P95Ms           float64  `json:"p95_ms"`
	P99Ms           float64  `json:"p99_ms"`
	ErrorCount      int      `json:"error_count"`
	ErrorRate       float64  `json:"error_rate"`
	SampleTraceIDs  []string `json:"sample_trace_ids"`
}
