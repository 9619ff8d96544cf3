package models

import "time"

// EventItem is a deploy, config or infrastructure event inside the incident
// scope, normalised for the report.
type EventItem struct {
	ID           int64     `json:"id"`
	DateHappened time.Time `json:"date_happened"`
	Title        string    `json:"title"`
	Text         string    `json:"text"`
	Tags         []string  `json:"tags"`
	Source       string    `json:"source"`
}
