package models

import "time"

// SignaturePattern aggregates a log signature that recurs across analysis
// reports. Patterns are mined on demand from the incident context store and
// are not persisted.
type SignaturePattern struct {
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title"`
	Occurrences int       `json:"occurrences"`
	AvgScore    float64   `json:"avg_score"`
	Services    []string  `json:"services"`
	LastSeen    time.Time `json:"last_seen"`
}
