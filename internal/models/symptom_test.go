package models

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestSeverityFromPercentChange(t *testing.T) {
	tests := []struct {
		pct  float64
		want Severity
	}{
		{800, SeverityCritical},
		{100, SeverityCritical},
		{99.9, SeverityHigh},
		{50, SeverityHigh},
		{49, SeverityMedium},
		{20, SeverityMedium},
		{19, SeverityLow},
		{5, SeverityLow},
		{4.9, SeverityNormal},
		{-30, SeverityNormal},
		{math.Inf(1), SeverityCritical},
	}

	for _, tt := range tests {
		if got := SeverityFromPercentChange(tt.pct); got != tt.want {
			t.Fatalf("SeverityFromPercentChange(%v) = %v, want %v", tt.pct, got, tt.want)
		}
	}

	if got := (Symptom{}).Severity(); got != SeverityUnknown {
		t.Fatalf("zero symptom severity = %v, want %v", got, SeverityUnknown)
	}
}

func TestJSONFloatMarshal(t *testing.T) {
	tests := []struct {
		value JSONFloat
		want  string
	}{
		{JSONFloat(math.Inf(1)), `"+Inf"`},
		{JSONFloat(math.Inf(-1)), `"-Inf"`},
		{JSONFloat(math.NaN()), `"NaN"`},
		{JSONFloat(42.5), "42.5"},
	}

	for _, tt := range tests {
		raw, err := json.Marshal(tt.value)
		if err != nil {
			t.Fatalf("marshal %v: %v", float64(tt.value), err)
		}
		if string(raw) != tt.want {
			t.Fatalf("marshal %v = %s, want %s", float64(tt.value), raw, tt.want)
		}
	}
}

func TestSymptomMarshalShape(t *testing.T) {
	baseline := 50.0
	incident := 450.0
	pct := JSONFloat(800)
	peak := 500.0
	peakTs := time.Date(2026, 3, 14, 9, 45, 0, 0, time.UTC)

	symptom := Symptom{
		Type:             SymptomErrorRate,
		QueryOrSignature: "sum:http.errors{service:checkout}",
		BaselineValue:    &baseline,
		IncidentValue:    &incident,
		PercentChange:    &pct,
		PeakTs:           &peakTs,
		PeakValue:        &peak,
	}

	raw, err := json.Marshal(symptom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	keys := make([]string, 0, len(decoded))
	for key := range decoded {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	want := []string{
		"baseline_value", "incident_value", "peak_ts", "peak_value",
		"percent_change", "query_or_signature", "type",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	if decoded["percent_change"] != 800.0 {
		t.Fatalf("percent_change = %v", decoded["percent_change"])
	}
}
