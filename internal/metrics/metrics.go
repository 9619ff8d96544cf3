package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful analyses.
	OutcomeSuccess = "success"
	// OutcomeError labels failed analyses (validation or dependency issues).
	OutcomeError = "error"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "analyses_total",
			Help:      "Total number of analyses handled, partitioned by seed and outcome.",
		},
		[]string{"seed", "outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "analysis_seconds",
			Help:      "End-to-end analysis latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 30},
		},
	)

	telemetryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "faultline",
			Name:      "telemetry_requests_total",
			Help:      "Telemetry API calls, partitioned by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	candidatesEmitted = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "faultline",
			Name:      "candidates_per_report",
			Help:      "Number of ranked candidates emitted per report.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 20},
		},
	)
)

// Register attaches faultline collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		telemetryRequestsTotal,
		candidatesEmitted,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration with its seed and outcome.
func ObserveAnalysis(seed string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	analysesTotal.WithLabelValues(seed, label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveTelemetryRequest counts one telemetry API call.
func ObserveTelemetryRequest(endpoint, outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	telemetryRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveCandidates records how many candidates a report surfaced.
func ObserveCandidates(n int) {
	if n < 0 {
		n = 0
	}
	candidatesEmitted.Observe(float64(n))
}
