package repo

import "time"

// Monitor is the subset of a Datadog monitor the engine needs to seed an
// analysis.
type Monitor struct {
	ID    int64
	Name  string
	Type  string
	Query string
	Tags  []string
}

// MetricPoint is a single metric sample.
type MetricPoint struct {
	Timestamp time.Time
	Value     float64
}

// MetricSeries is one series returned for a metric query.
type MetricSeries struct {
	Metric string
	Scope  string
	Tags   []string
	Points []MetricPoint
}

// MetricResponse carries every series matching a query over a window.
type MetricResponse struct {
	Series []MetricSeries
}

// LogRecord is a normalised log event. Attributes are flattened with
// dot-joined keys (error.type, http.status_code, ...).
type LogRecord struct {
	Timestamp  time.Time
	Service    string
	Host       string
	Status     string
	Message    string
	Attributes map[string]string
	Tags       []string
}

// SpanRecord is a normalised trace span. Duration carries nanosecond
// precision from the wire.
type SpanRecord struct {
	TraceID     string
	Service     string
	Resource    string
	Timestamp   time.Time
	Duration    time.Duration
	Kind        string
	IsError     bool
	PeerService string
}

// EventRecord is a deploy/config/infrastructure event.
type EventRecord struct {
	ID           int64
	Title        string
	Text         string
	DateHappened time.Time
	Tags         []string
	Source       string
}
