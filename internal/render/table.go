package render

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/faultlinehq/faultline/internal/models"
)

const (
	maxSignalWidth = 48
	maxTitleWidth  = 60
)

var (
	criticalColor = color.New(color.FgRed, color.Bold)
	highColor     = color.New(color.FgYellow, color.Bold)
	mediumColor   = color.New(color.FgGreen)
	lowColor      = color.New(color.FgHiBlack)
)

// PrintReport renders the terminal summary: header lines, symptom and
// candidate tables, then the recommendation list.
func PrintReport(w io.Writer, report models.Report) error {
	fmt.Fprintf(w, "Report %s (%s seed, site %s)\n", report.Meta.ReportID, report.Meta.SeedType, report.Meta.Site)
	fmt.Fprintf(w, "Incident %s -> %s, baseline %s -> %s\n\n",
		report.Windows.Incident.Start.Format(time.RFC3339),
		report.Windows.Incident.End.Format(time.RFC3339),
		report.Windows.Baseline.Start.Format(time.RFC3339),
		report.Windows.Baseline.End.Format(time.RFC3339))

	if len(report.Symptoms) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header([]string{"Type", "Signal", "Baseline", "Incident", "Change", "Severity"})
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignLeft
		})

		var data [][]string
		for _, s := range report.Symptoms {
			data = append(data, []string{
				string(s.Type),
				truncate(s.QueryOrSignature, maxSignalWidth),
				floatOrNone(s.BaselineValue),
				floatOrNone(s.IncidentValue),
				changeCell(s.PercentChange),
				severityLabel(s.Severity()),
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(report.Candidates) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header([]string{"Rank", "Kind", "Score", "Label", "Title"})
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignLeft
		})

		var data [][]string
		for i, c := range report.Candidates {
			data = append(data, []string{
				strconv.Itoa(i + 1),
				string(c.Kind),
				fmt.Sprintf("%.2f", c.Score),
				scoreLabel(c.Score),
				truncate(c.Title, maxTitleWidth),
			})
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(report.Recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations:")
		for i, rec := range report.Recommendations {
			fmt.Fprintf(w, "  %d. %s\n", i+1, rec)
		}
	}

	return nil
}

// scoreLabel buckets a candidate score into a colored criticality label.
func scoreLabel(score float64) string {
	switch {
	case score >= 0.8:
		return criticalColor.Sprint("Critical")
	case score >= 0.6:
		return highColor.Sprint("High")
	case score >= 0.4:
		return mediumColor.Sprint("Moderate")
	default:
		return lowColor.Sprint("Low")
	}
}

func severityLabel(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return criticalColor.Sprint(string(severity))
	case models.SeverityHigh:
		return highColor.Sprint(string(severity))
	case models.SeverityMedium:
		return mediumColor.Sprint(string(severity))
	case models.SeverityLow, models.SeverityNormal:
		return lowColor.Sprint(string(severity))
	default:
		return string(severity)
	}
}

func changeCell(pct *models.JSONFloat) string {
	if pct == nil {
		return "n/a"
	}
	v := float64(*pct)
	if math.IsInf(v, 1) {
		return "+Inf%"
	}
	if math.IsInf(v, -1) {
		return "-Inf%"
	}
	return fmt.Sprintf("%+.1f%%", v)
}

func truncate(s string, limit int) string {
	if limit <= 3 || len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
