package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

// ReportSink delivers finished reports to the summarization collaborator.
// Delivery is best-effort: the engine never blocks a response on the sink.
type ReportSink struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewReportSink constructs a sink for the given endpoint. An empty endpoint
// yields a disabled sink whose Publish is a no-op.
func NewReportSink(endpoint, apiKey string, timeout time.Duration, logger *slog.Logger) *ReportSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportSink{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a delivery endpoint is configured.
func (s *ReportSink) Enabled() bool {
	return s != nil && s.endpoint != ""
}

// Publish posts the report JSON to the collaborator endpoint.
func (s *ReportSink) Publish(ctx context.Context, report models.Report) error {
	if !s.Enabled() {
		return nil
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Op: "publish_report", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	s.logger.Debug("report delivered to sink", "report_id", report.Meta.ReportID)
	return nil
}
