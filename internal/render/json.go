package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/faultlinehq/faultline/internal/models"
)

// ReportJSON encodes the report with two-space indentation and a trailing
// newline, matching what downstream tooling diffs against.
func ReportJSON(report models.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteJSON writes the report to path, creating parent directories.
func WriteJSON(report models.Report, path string) error {
	data, err := ReportJSON(report)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
