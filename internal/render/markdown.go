package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

const (
	markdownCandidateLimit = 10
	markdownEventLimit     = 20
)

// Markdown renders the report as a human-readable summary for tickets and
// chat. It is a digest of the JSON report, not a replacement.
func Markdown(report models.Report) string {
	var b strings.Builder
	b.WriteString("## faultline report\n\n")

	b.WriteString("### Meta\n")
	writeKV(&b, "seed_type", string(report.Meta.SeedType))
	if !report.Meta.GeneratedAt.IsZero() {
		writeKV(&b, "generated_at", report.Meta.GeneratedAt.Format(time.RFC3339))
	}
	writeKV(&b, "site", report.Meta.Site)
	writeKV(&b, "report_id", report.Meta.ReportID)
	b.WriteString("\n")

	b.WriteString("### Time windows\n")
	writeKV(&b, "incident_start", report.Windows.Incident.Start.Format(time.RFC3339))
	writeKV(&b, "incident_end", report.Windows.Incident.End.Format(time.RFC3339))
	writeKV(&b, "baseline_start", report.Windows.Baseline.Start.Format(time.RFC3339))
	writeKV(&b, "baseline_end", report.Windows.Baseline.End.Format(time.RFC3339))
	b.WriteString("\n")

	b.WriteString("### Scope\n")
	writeKV(&b, "service", report.Scope.Service)
	writeKV(&b, "environment", report.Scope.Env)
	writeKV(&b, "region", report.Scope.Region)
	writeKV(&b, "cluster", report.Scope.Cluster)
	if len(report.Scope.Hosts) > 0 {
		writeKV(&b, "hosts", strings.Join(report.Scope.Hosts, ", "))
	}
	b.WriteString("\n")

	b.WriteString("### Symptoms\n")
	for _, s := range report.Symptoms {
		fmt.Fprintf(&b, "- **%s**: `%s`\n", s.Type, s.QueryOrSignature)
		if s.BaselineValue != nil || s.IncidentValue != nil {
			fmt.Fprintf(&b, "  - baseline: %s\n", floatOrNone(s.BaselineValue))
			fmt.Fprintf(&b, "  - incident: %s\n", floatOrNone(s.IncidentValue))
		}
		if s.PercentChange != nil {
			fmt.Fprintf(&b, "  - change: %.2f%%\n", float64(*s.PercentChange))
		}
		if s.PeakTs != nil {
			fmt.Fprintf(&b, "  - peak: %s @ %s\n", floatOrNone(s.PeakValue), s.PeakTs.Format(time.RFC3339))
		}
	}
	b.WriteString("\n")

	b.WriteString("### Top candidates\n")
	candidates := report.Candidates
	if len(candidates) > markdownCandidateLimit {
		candidates = candidates[:markdownCandidateLimit]
	}
	for _, c := range candidates {
		fmt.Fprintf(&b, "- **%s** (score %.2f): %s\n", c.Kind, c.Score, c.Title)
	}
	b.WriteString("\n")

	if events := eventRows(report.Findings); len(events) > 0 {
		b.WriteString("### Events\n")
		if len(events) > markdownEventLimit {
			events = events[:markdownEventLimit]
		}
		for _, e := range events {
			fmt.Fprintf(&b, "- **%s**: %s\n", e.DateHappened.Format(time.RFC3339), e.Title)
		}
		b.WriteString("\n")
	}

	if len(report.Recommendations) > 0 {
		b.WriteString("### Recommendations\n")
		for _, rec := range report.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// WriteMarkdown writes the rendered summary to path, creating parent
// directories.
func WriteMarkdown(report models.Report, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(Markdown(report)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func writeKV(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- **%s**: %s\n", key, value)
}

func floatOrNone(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%g", *v)
}

// eventRows digs the normalised event list out of the findings block. The
// rows are typed when the report came straight from the pipeline.
func eventRows(findings map[string]any) []models.EventItem {
	section, ok := findings["events"].(map[string]any)
	if !ok {
		return nil
	}
	rows, ok := section["rows"].([]models.EventItem)
	if !ok {
		return nil
	}
	return rows
}
