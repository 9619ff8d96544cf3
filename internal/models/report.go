package models

import "time"

// SeedType names the entry point that produced a report.
type SeedType string

const (
	SeedMonitor SeedType = "monitor"
	SeedLogs    SeedType = "logs"
	SeedService SeedType = "service"
)

// ReportMeta describes how and when a report was produced.
type ReportMeta struct {
	SeedType    SeedType       `json:"seed_type"`
	GeneratedAt time.Time      `json:"generated_at"`
	ReportID    string         `json:"report_id"`
	Site        string         `json:"site"`
	Input       map[string]any `json:"input"`
}

// Report is the engine's output contract. Key names and nesting are consumed
// downstream and must not change.
type Report struct {
	Meta            ReportMeta     `json:"meta"`
	Windows         Windows        `json:"windows"`
	Scope           Scope          `json:"scope"`
	Symptoms        []Symptom      `json:"symptoms"`
	Findings        map[string]any `json:"findings"`
	Recommendations []string       `json:"recommendations"`
	Candidates      []Candidate    `json:"candidates"`
}
