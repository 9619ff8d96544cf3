package render

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/faultlinehq/faultline/internal/models"
)

func fixtureReport(t *testing.T) models.Report {
	t.Helper()

	baseline := 50.0
	incident := 450.0
	peak := 500.0
	pct := models.JSONFloat(800)
	peakTs := time.Date(2026, 3, 14, 9, 31, 0, 0, time.UTC)

	candidate, err := models.NewCandidate(models.CandidateEndpoint, "Endpoint: POST /pay", 0.94, nil)
	if err != nil {
		t.Fatalf("build candidate: %v", err)
	}

	return models.Report{
		Meta: models.ReportMeta{
			SeedType:    models.SeedLogs,
			GeneratedAt: time.Date(2026, 3, 14, 10, 5, 0, 0, time.UTC),
			ReportID:    "rep-1",
			Site:        "datadoghq.com",
		},
		Windows: models.Windows{
			Anchor:   time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
			Incident: models.TimeWindow{Start: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), End: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)},
			Baseline: models.TimeWindow{Start: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)},
		},
		Scope: models.Scope{Service: "checkout", Env: "prod"},
		Symptoms: []models.Symptom{{
			Type:             models.SymptomErrorRate,
			QueryOrSignature: "avg:checkout.request.errors{service:checkout}",
			BaselineValue:    &baseline,
			IncidentValue:    &incident,
			PercentChange:    &pct,
			PeakTs:           &peakTs,
			PeakValue:        &peak,
		}},
		Findings: map[string]any{
			"events": map[string]any{
				"tags": "service:checkout",
				"rows": []models.EventItem{{
					ID:           1,
					DateHappened: time.Date(2026, 3, 14, 9, 30, 30, 0, time.UTC),
					Title:        "Deployed checkout v2",
				}},
			},
		},
		Recommendations: []string{"Review deploy and config events near the incident start for temporal alignment."},
		Candidates:      []models.Candidate{candidate},
	}
}

func TestMarkdown(t *testing.T) {
	got := Markdown(fixtureReport(t))

	want := `## faultline report

### Meta
- **seed_type**: logs
- **generated_at**: 2026-03-14T10:05:00Z
- **site**: datadoghq.com
- **report_id**: rep-1

### Time windows
- **incident_start**: 2026-03-14T09:30:00Z
- **incident_end**: 2026-03-14T10:00:00Z
- **baseline_start**: 2026-03-14T09:00:00Z
- **baseline_end**: 2026-03-14T09:30:00Z

### Scope
- **service**: checkout
- **environment**: prod

### Symptoms
- **error_rate**: ` + "`avg:checkout.request.errors{service:checkout}`" + `
  - baseline: 50
  - incident: 450
  - change: 800.00%
  - peak: 500 @ 2026-03-14T09:31:00Z

### Top candidates
- **endpoint** (score 0.94): Endpoint: POST /pay

### Events
- **2026-03-14T09:30:30Z**: Deployed checkout v2

### Recommendations
- Review deploy and config events near the incident start for temporal alignment.

`

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("markdown mismatch (-want +got):\n%s", diff)
	}
}

func TestMarkdownOmitsEmptySections(t *testing.T) {
	report := fixtureReport(t)
	report.Findings = map[string]any{}
	report.Recommendations = nil

	got := Markdown(report)
	for _, absent := range []string{"### Events", "### Recommendations"} {
		if strings.Contains(got, absent) {
			t.Fatalf("expected %q to be omitted:\n%s", absent, got)
		}
	}
}
