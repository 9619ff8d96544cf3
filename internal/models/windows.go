package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a window's end does not follow its start.
var ErrInvalidWindow = errors.New("time window end must be after start")

// TimeWindow bounds a telemetry query range. Bounds are inclusive and
// normalised to whole seconds in UTC.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow validates and normalises a window.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	start = start.UTC().Truncate(time.Second)
	end = end.UTC().Truncate(time.Second)
	if !end.After(start) {
		return TimeWindow{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeWindow{Start: start, End: end}, nil
}

// Duration reports the window length.
func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// StartEpoch reports the start bound in Unix seconds.
func (w TimeWindow) StartEpoch() int64 { return w.Start.Unix() }

// EndEpoch reports the end bound in Unix seconds.
func (w TimeWindow) EndEpoch() int64 { return w.End.Unix() }

// Contains reports whether t falls inside the window bounds.
func (w TimeWindow) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.Start) && !t.After(w.End)
}

// Overlaps reports whether two windows share any instant.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return !w.Start.After(o.End) && !o.Start.After(w.End)
}

// MarshalJSON renders the window with both RFC3339 and epoch bounds.
func (w TimeWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start      string `json:"start"`
		End        string `json:"end"`
		StartEpoch int64  `json:"start_epoch"`
		EndEpoch   int64  `json:"end_epoch"`
	}{
		Start:      w.Start.Format(time.RFC3339),
		End:        w.End.Format(time.RFC3339),
		StartEpoch: w.StartEpoch(),
		EndEpoch:   w.EndEpoch(),
	})
}

// Windows pairs the incident window with the baseline it is compared against.
type Windows struct {
	Anchor   time.Time  `json:"anchor"`
	Incident TimeWindow `json:"incident"`
	Baseline TimeWindow `json:"baseline"`
}

// WindowsEndingAt builds an incident window of windowMinutes ending at anchor
// and a baseline immediately preceding it. baselineMinutes of zero means the
// baseline matches the incident window length.
func WindowsEndingAt(anchor time.Time, windowMinutes, baselineMinutes int) (Windows, error) {
	if windowMinutes <= 0 {
		return Windows{}, fmt.Errorf("%w: window minutes must be positive, got %d", ErrInvalidWindow, windowMinutes)
	}
	if baselineMinutes < 0 {
		return Windows{}, fmt.Errorf("%w: baseline minutes must not be negative, got %d", ErrInvalidWindow, baselineMinutes)
	}
	if baselineMinutes == 0 {
		baselineMinutes = windowMinutes
	}
	anchor = anchor.UTC().Truncate(time.Second)
	incident, err := NewTimeWindow(anchor.Add(-time.Duration(windowMinutes)*time.Minute), anchor)
	if err != nil {
		return Windows{}, err
	}
	baseline, err := NewTimeWindow(incident.Start.Add(-time.Duration(baselineMinutes)*time.Minute), incident.Start)
	if err != nil {
		return Windows{}, err
	}
	return Windows{Anchor: anchor, Incident: incident, Baseline: baseline}, nil
}

// WindowsFromRange treats an explicit range as the incident window, with a
// baseline of the same duration immediately preceding it.
func WindowsFromRange(start, end time.Time) (Windows, error) {
	incident, err := NewTimeWindow(start, end)
	if err != nil {
		return Windows{}, err
	}
	baseline, err := NewTimeWindow(incident.Start.Add(-incident.Duration()), incident.Start)
	if err != nil {
		return Windows{}, err
	}
	return Windows{Anchor: incident.End, Incident: incident, Baseline: baseline}, nil
}
