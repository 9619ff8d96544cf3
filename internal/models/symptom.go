package models

import (
	"encoding/json"
	"math"
	"time"
)

// SymptomType categorises the signal a symptom was measured from.
type SymptomType string

const (
	SymptomLatency      SymptomType = "latency"
	SymptomErrorRate    SymptomType = "error_rate"
	SymptomLogSignature SymptomType = "log_signature"
	SymptomMemory       SymptomType = "memory"
	SymptomCPU          SymptomType = "cpu"
	SymptomMetric       SymptomType = "metric"
)

// Severity buckets the magnitude of a symptom's deviation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
	SeverityUnknown  Severity = "unknown"
)

// SeverityFromPercentChange buckets a percent change. Infinite growth is
// treated as critical.
func SeverityFromPercentChange(pct float64) Severity {
	switch {
	case pct >= 100:
		return SeverityCritical
	case pct >= 50:
		return SeverityHigh
	case pct >= 20:
		return SeverityMedium
	case pct >= 5:
		return SeverityLow
	default:
		return SeverityNormal
	}
}

// JSONFloat marshals like float64 but encodes non-finite values as strings,
// which encoding/json otherwise rejects. "+Inf" follows the Prometheus HTTP
// API convention.
type JSONFloat float64

// MarshalJSON implements json.Marshaler.
func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	}
	return json.Marshal(v)
}

// Symptom quantifies how one signal deviated between baseline and incident.
type Symptom struct {
	Type             SymptomType `json:"type"`
	QueryOrSignature string      `json:"query_or_signature"`
	BaselineValue    *float64    `json:"baseline_value"`
	IncidentValue    *float64    `json:"incident_value"`
	PercentChange    *JSONFloat  `json:"percent_change"`
	PeakTs           *time.Time  `json:"peak_ts"`
	PeakValue        *float64    `json:"peak_value"`
}

// Severity buckets the symptom's percent change; symptoms without a defined
// change are unknown.
func (s Symptom) Severity() Severity {
	if s.PercentChange == nil {
		return SeverityUnknown
	}
	return SeverityFromPercentChange(float64(*s.PercentChange))
}
