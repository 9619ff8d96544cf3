package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repo"
)

const (
	eventTextCap         = 1500
	eventTitleCap        = 80
	changeCandidateScore = 0.45
	infraCandidateScore  = 0.30
)

var (
	changeMarkers = []string{"deploy", "deployment", "release", "rollout", "rollback", "config"}
	infraMarkers  = []string{"autoscal", "host", "node", "infra", "kernel", "hardware"}
)

// NormalizeEvents orders events chronologically and trims oversized bodies
// for the report.
func NormalizeEvents(events []repo.EventRecord) []models.EventItem {
	items := make([]models.EventItem, 0, len(events))
	for _, event := range events {
		text := event.Text
		if len(text) > eventTextCap {
			text = text[:eventTextCap]
		}
		items = append(items, models.EventItem{
			ID:           event.ID,
			DateHappened: event.DateHappened.UTC().Truncate(time.Second),
			Title:        event.Title,
			Text:         text,
			Tags:         event.Tags,
			Source:       event.Source,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DateHappened.Before(items[j].DateHappened)
	})
	return items
}

// EventCandidates lifts change and infrastructure events into low, fixed
// scores so telemetry-backed candidates outrank them unless nothing else
// fired.
func EventCandidates(events []models.EventItem) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(events))
	for _, event := range events {
		var kind models.CandidateKind
		var score float64
		var label string
		switch {
		case matchesMarkers(event, changeMarkers):
			kind, score, label = models.CandidateChange, changeCandidateScore, "Deploy/config event: "
		case matchesMarkers(event, infraMarkers):
			kind, score, label = models.CandidateInfrastructure, infraCandidateScore, "Infrastructure event: "
		default:
			continue
		}

		title := event.Title
		if len(title) > eventTitleCap {
			title = title[:eventTitleCap]
		}
		candidate, err := models.NewCandidate(kind, label+title, score, map[string]any{
			"event_id":      event.ID,
			"date_happened": event.DateHappened.Format(time.RFC3339),
			"tags":          event.Tags,
			"source":        event.Source,
		})
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// HasChangeEvents reports whether any event looks like a deploy or config
// change; drives the change-review recommendation.
func HasChangeEvents(events []models.EventItem) bool {
	_, ok := FirstChangeEvent(events)
	return ok
}

// FirstChangeEvent returns the earliest deploy or config style event.
// Callers rely on NormalizeEvents having ordered the slice chronologically.
func FirstChangeEvent(events []models.EventItem) (models.EventItem, bool) {
	for _, event := range events {
		if matchesMarkers(event, changeMarkers) {
			return event, true
		}
	}
	return models.EventItem{}, false
}

func matchesMarkers(event models.EventItem, markers []string) bool {
	haystack := strings.ToLower(event.Title)
	for _, tag := range event.Tags {
		haystack += " " + strings.ToLower(tag)
	}
	for _, marker := range markers {
		if strings.Contains(haystack, marker) {
			return true
		}
	}
	return false
}
