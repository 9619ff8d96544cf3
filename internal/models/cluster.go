package models

import (
	"math"
	"time"
)

// LogSample preserves one raw record from a cluster for the report.
type LogSample struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Host      string    `json:"host"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
}

// LogCluster groups log records sharing a normalised shape. Clusters are
// value types; derivations return copies rather than mutating in place.
type LogCluster struct {
	Fingerprint   string    `json:"fingerprint"`
	Template      string    `json:"template"`
	CountIncident int       `json:"count"`
	CountBaseline int       `json:"baseline_count"`
	FirstSeen     time.Time `json:"first_seen"`
	Sample        LogSample `json:"sample"`
	AnomalyScore  float64   `json:"anomaly_score"`
}

// IsNewPattern reports whether the cluster only appears in the incident
// window.
func (c LogCluster) IsNewPattern() bool {
	return c.CountBaseline == 0 && c.CountIncident > 0
}

// GrowthRatio compares incident volume to baseline volume. A pattern absent
// from the baseline grows infinitely; an empty cluster does not grow.
func (c LogCluster) GrowthRatio() float64 {
	if c.CountBaseline > 0 {
		return float64(c.CountIncident) / float64(c.CountBaseline)
	}
	if c.CountIncident > 0 {
		return math.Inf(1)
	}
	return 1.0
}

// WithBaselineCount returns a copy with the baseline volume filled in.
func (c LogCluster) WithBaselineCount(n int) LogCluster {
	c.CountBaseline = n
	return c
}

// WithAnomalyScore returns a copy carrying the given score.
func (c LogCluster) WithAnomalyScore(score float64) LogCluster {
	c.AnomalyScore = score
	return c
}
