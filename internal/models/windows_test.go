package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func mustWindow(t *testing.T, start, end time.Time) TimeWindow {
	t.Helper()
	window, err := NewTimeWindow(start, end)
	if err != nil {
		t.Fatalf("NewTimeWindow: %v", err)
	}
	return window
}

func TestNewTimeWindowRejectsInvertedBounds(t *testing.T) {
	anchor := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	if _, err := NewTimeWindow(anchor, anchor); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("equal bounds: err = %v", err)
	}
	if _, err := NewTimeWindow(anchor, anchor.Add(-time.Minute)); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("inverted bounds: err = %v", err)
	}
}

func TestNewTimeWindowNormalizesToUTCSeconds(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	start := time.Date(2026, 3, 14, 11, 0, 0, 500_000_000, cet)

	window := mustWindow(t, start, start.Add(30*time.Minute))
	if want := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC); !window.Start.Equal(want) {
		t.Fatalf("start = %v, want %v", window.Start, want)
	}
	if window.Start.Location() != time.UTC {
		t.Fatalf("start location = %v", window.Start.Location())
	}
	if window.Duration() != 30*time.Minute {
		t.Fatalf("duration = %v", window.Duration())
	}
}

func TestWindowsEndingAt(t *testing.T) {
	anchor := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	windows, err := WindowsEndingAt(anchor, 30, 0)
	if err != nil {
		t.Fatalf("WindowsEndingAt: %v", err)
	}
	if !windows.Incident.End.Equal(anchor) {
		t.Fatalf("incident end = %v", windows.Incident.End)
	}
	if windows.Incident.Duration() != 30*time.Minute {
		t.Fatalf("incident duration = %v", windows.Incident.Duration())
	}
	if windows.Baseline.Duration() != 30*time.Minute {
		t.Fatalf("baseline duration = %v", windows.Baseline.Duration())
	}
	if !windows.Baseline.End.Equal(windows.Incident.Start) {
		t.Fatalf("baseline %v does not abut incident %v", windows.Baseline, windows.Incident)
	}

	windows, err = WindowsEndingAt(anchor, 30, 120)
	if err != nil {
		t.Fatalf("WindowsEndingAt: %v", err)
	}
	if windows.Baseline.Duration() != 2*time.Hour {
		t.Fatalf("baseline duration = %v", windows.Baseline.Duration())
	}
}

func TestWindowsEndingAtRejectsBadMinutes(t *testing.T) {
	anchor := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	if _, err := WindowsEndingAt(anchor, 0, 30); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("zero window: err = %v", err)
	}
	if _, err := WindowsEndingAt(anchor, 30, -10); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("negative baseline: err = %v", err)
	}
}

func TestWindowsFromRange(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)

	windows, err := WindowsFromRange(start, end)
	if err != nil {
		t.Fatalf("WindowsFromRange: %v", err)
	}
	if !windows.Anchor.Equal(end) {
		t.Fatalf("anchor = %v, want %v", windows.Anchor, end)
	}
	if !windows.Baseline.Start.Equal(start.Add(-45 * time.Minute)) {
		t.Fatalf("baseline start = %v", windows.Baseline.Start)
	}
	if !windows.Baseline.End.Equal(start) {
		t.Fatalf("baseline end = %v", windows.Baseline.End)
	}

	if _, err := WindowsFromRange(end, start); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("inverted range: err = %v", err)
	}
}

func TestTimeWindowContains(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	window := mustWindow(t, start, start.Add(30*time.Minute))

	if !window.Contains(start) {
		t.Fatalf("start bound excluded")
	}
	if !window.Contains(window.End) {
		t.Fatalf("end bound excluded")
	}
	if window.Contains(window.End.Add(time.Second)) {
		t.Fatalf("instant past end included")
	}
}

func TestTimeWindowOverlaps(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	first := mustWindow(t, start, start.Add(30*time.Minute))
	adjacent := mustWindow(t, first.End, first.End.Add(30*time.Minute))
	disjoint := mustWindow(t, first.End.Add(time.Minute), first.End.Add(time.Hour))

	if !first.Overlaps(adjacent) {
		t.Fatalf("windows sharing a boundary should overlap")
	}
	if first.Overlaps(disjoint) {
		t.Fatalf("disjoint windows reported as overlapping")
	}
}

func TestTimeWindowMarshalJSON(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	window := mustWindow(t, start, start.Add(30*time.Minute))

	raw, err := json.Marshal(window)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["start"] != "2026-03-14T10:00:00Z" {
		t.Fatalf("start = %v", decoded["start"])
	}
	if decoded["end"] != "2026-03-14T10:30:00Z" {
		t.Fatalf("end = %v", decoded["end"])
	}
	if decoded["start_epoch"] != float64(window.StartEpoch()) {
		t.Fatalf("start_epoch = %v", decoded["start_epoch"])
	}
	if decoded["end_epoch"] != float64(window.EndEpoch()) {
		t.Fatalf("end_epoch = %v", decoded["end_epoch"])
	}
}
