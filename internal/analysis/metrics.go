package analysis

import (
	"math"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repo"
)

// NoMatchingMetricQuery is surfaced when every metric template came back
// empty for a service seed.
const NoMatchingMetricQuery = "(no matching service metric found)"

// MetricSummary condenses every point of a query response into the values a
// symptom compares.
type MetricSummary struct {
	Value      float64   `json:"value"`
	Peak       float64   `json:"peak_value"`
	PeakTs     time.Time `json:"peak_ts"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	PointCount int       `json:"point_count"`
}

// SummarizeSeries flattens all series in a response and reports the average,
// extremes, and peak timestamp. Returns nil when no points exist.
func SummarizeSeries(resp repo.MetricResponse) *MetricSummary {
	var summary MetricSummary
	sum := 0.0
	first := true

	for _, series := range resp.Series {
		for _, point := range series.Points {
			v := point.Value
			sum += v
			if first {
				summary.Min = v
				summary.Max = v
				summary.Peak = v
				summary.PeakTs = point.Timestamp
				first = false
			} else {
				if v < summary.Min {
					summary.Min = v
				}
				if v > summary.Max {
					summary.Max = v
				}
				if v > summary.Peak {
					summary.Peak = v
					summary.PeakTs = point.Timestamp
				}
			}
			summary.PointCount++
		}
	}

	if summary.PointCount == 0 {
		return nil
	}
	summary.Value = sum / float64(summary.PointCount)
	summary.PeakTs = summary.PeakTs.Truncate(time.Second)
	return &summary
}

// PercentChange compares incident against baseline. Undefined when either
// input is missing; infinite when something appeared from a zero baseline;
// zero when nothing happened on either side.
func PercentChange(baseline, incident *float64) *float64 {
	if baseline == nil || incident == nil {
		return nil
	}
	if *baseline == 0 {
		if *incident == 0 {
			zero := 0.0
			return &zero
		}
		inf := math.Inf(1)
		return &inf
	}
	pct := (*incident - *baseline) / math.Abs(*baseline) * 100
	return &pct
}

// InferSymptomType reads the signal class out of a query string.
func InferSymptomType(query string) models.SymptomType {
	q := strings.ToLower(query)
	switch {
	case strings.Contains(q, "p95"), strings.Contains(q, "p99"),
		strings.Contains(q, "latency"), strings.Contains(q, "duration"):
		return models.SymptomLatency
	case strings.Contains(q, "error"), strings.Contains(q, "5xx"),
		strings.Contains(q, "exception"):
		return models.SymptomErrorRate
	case strings.Contains(q, "memory"), strings.Contains(q, "heap"):
		return models.SymptomMemory
	case strings.Contains(q, "cpu"):
		return models.SymptomCPU
	default:
		return models.SymptomMetric
	}
}

// MetricSymptom builds a symptom from baseline and incident summaries of one
// query. Either summary may be nil when its window returned no points.
func MetricSymptom(query string, baseline, incident *MetricSummary) models.Symptom {
	symptom := models.Symptom{
		Type:             InferSymptomType(query),
		QueryOrSignature: query,
	}
	if baseline != nil {
		v := baseline.Value
		symptom.BaselineValue = &v
	}
	if incident != nil {
		v := incident.Value
		symptom.IncidentValue = &v
		peak := incident.Peak
		peakTs := incident.PeakTs
		symptom.PeakValue = &peak
		symptom.PeakTs = &peakTs
	}
	if pct := PercentChange(symptom.BaselineValue, symptom.IncidentValue); pct != nil {
		f := models.JSONFloat(*pct)
		symptom.PercentChange = &f
	}
	return symptom
}

// LogVolumeSymptom treats raw record counts as a volume proxy when an
// analysis is seeded from a log query instead of a metric.
func LogVolumeSymptom(signature string, baselineCount, incidentCount int) models.Symptom {
	baseline := float64(baselineCount)
	incident := float64(incidentCount)
	symptom := models.Symptom{
		Type:             models.SymptomLogSignature,
		QueryOrSignature: signature,
		BaselineValue:    &baseline,
		IncidentValue:    &incident,
	}
	if pct := PercentChange(&baseline, &incident); pct != nil {
		f := models.JSONFloat(*pct)
		symptom.PercentChange = &f
	}
	return symptom
}

// NoMatchingMetricSymptom marks a service seed whose metric templates all
// came back empty.
func NoMatchingMetricSymptom() models.Symptom {
	return models.Symptom{
		Type:             models.SymptomMetric,
		QueryOrSignature: NoMatchingMetricQuery,
	}
}
