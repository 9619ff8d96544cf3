package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/faultlinehq/faultline/internal/cache"
	"github.com/faultlinehq/faultline/internal/metrics"
)

// APIError carries the status and body of a failed telemetry call so callers
// can decide between fatal and degraded handling. Requests are not retried.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("datadog %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// DatadogClient talks to the Datadog v1/v2 HTTP APIs. Site accepts either a
// bare site domain (datadoghq.com, datadoghq.eu) or a full base URL, which is
// how the localdev mock server is targeted.
type DatadogClient struct {
	v1Base     string
	v2Base     string
	apiKey     string
	appKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      cache.Provider
	monitorTTL time.Duration
	logger     *slog.Logger
}

// NewDatadogClient constructs a client. connectTimeout bounds dialing and TLS
// setup, readTimeout bounds the whole exchange. rps of zero disables
// client-side rate limiting.
func NewDatadogClient(site, apiKey, appKey string, connectTimeout, readTimeout time.Duration, rps float64, cacheProvider cache.Provider, monitorTTL time.Duration, logger *slog.Logger) *DatadogClient {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 120 * time.Second
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	v1, v2 := baseURLs(site)
	return &DatadogClient{
		v1Base: v1,
		v2Base: v2,
		apiKey: apiKey,
		appKey: appKey,
		httpClient: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSHandshakeTimeout: connectTimeout,
			},
		},
		limiter:    limiter,
		cache:      cacheProvider,
		monitorTTL: monitorTTL,
		logger:     logger,
	}
}

func baseURLs(site string) (string, string) {
	site = strings.TrimRight(strings.TrimSpace(site), "/")
	if site == "" {
		site = "datadoghq.com"
	}
	if strings.HasPrefix(site, "http://") || strings.HasPrefix(site, "https://") {
		return site + "/api/v1", site + "/api/v2"
	}
	return "https://api." + site + "/api/v1", "https://api." + site + "/api/v2"
}

// GetMonitor fetches monitor metadata, serving repeats from cache.
func (c *DatadogClient) GetMonitor(ctx context.Context, id int64) (Monitor, error) {
	if c == nil {
		return Monitor{}, fmt.Errorf("datadog client not initialised")
	}

	key := cache.Key("monitor", strconv.FormatInt(id, 10))
	if cached, err := c.cache.Get(ctx, key); err == nil {
		var m Monitor
		if err := json.Unmarshal(cached, &m); err == nil {
			c.logger.Debug("monitor served from cache", "monitor_id", id)
			return m, nil
		}
		_ = c.cache.Del(ctx, key)
	}

	var response struct {
		ID      int64    `json:"id"`
		Name    string   `json:"name"`
		Type    string   `json:"type"`
		Query   string   `json:"query"`
		Tags    []string `json:"tags"`
		Message string   `json:"message"`
	}
	endpoint := fmt.Sprintf("%s/monitor/%d", c.v1Base, id)
	if err := c.getJSON(ctx, "get_monitor", endpoint, nil, &response); err != nil {
		return Monitor{}, err
	}

	monitor := Monitor{
		ID:    response.ID,
		Name:  response.Name,
		Type:  response.Type,
		Query: response.Query,
		Tags:  response.Tags,
	}
	if monitor.ID == 0 {
		monitor.ID = id
	}
	if payload, err := json.Marshal(monitor); err == nil {
		if err := c.cache.Set(ctx, key, payload, c.monitorTTL); err != nil {
			c.logger.Debug("monitor cache store failed", "error", err)
		}
	}
	return monitor, nil
}

// QueryMetrics evaluates a metric query over [from, to]. An empty result is
// not an error; callers use point counts to drive template fallback.
func (c *DatadogClient) QueryMetrics(ctx context.Context, query string, from, to time.Time) (MetricResponse, error) {
	if c == nil {
		return MetricResponse{}, fmt.Errorf("datadog client not initialised")
	}

	params := url.Values{}
	params.Set("from", strconv.FormatInt(from.UTC().Unix(), 10))
	params.Set("to", strconv.FormatInt(to.UTC().Unix(), 10))
	params.Set("query", query)

	var response struct {
		Series []struct {
			Metric    string        `json:"metric"`
			Scope     string        `json:"scope"`
			TagSet    []string      `json:"tag_set"`
			Pointlist [][]*float64  `json:"pointlist"`
			Unit      []interface{} `json:"unit"`
		} `json:"series"`
	}
	if err := c.getJSON(ctx, "query_metrics", c.v1Base+"/query", params, &response); err != nil {
		return MetricResponse{}, err
	}

	out := MetricResponse{Series: make([]MetricSeries, 0, len(response.Series))}
	for _, s := range response.Series {
		series := MetricSeries{Metric: s.Metric, Scope: s.Scope, Tags: s.TagSet}
		for _, p := range s.Pointlist {
			if len(p) < 2 || p[0] == nil || p[1] == nil {
				continue
			}
			ts := time.UnixMilli(int64(*p[0])).UTC()
			series.Points = append(series.Points, MetricPoint{Timestamp: ts, Value: *p[1]})
		}
		out.Series = append(out.Series, series)
	}
	return out, nil
}

// SearchLogs pages through the log search API and returns normalised
// records. limit bounds each page; maxPages bounds cursor walking.
func (c *DatadogClient) SearchLogs(ctx context.Context, query string, from, to time.Time, limit, maxPages int) ([]LogRecord, error) {
	rows, err := c.searchEvents(ctx, "search_logs", c.v2Base+"/logs/events/search", query, from, to, limit, maxPages)
	if err != nil {
		return nil, err
	}

	records := make([]LogRecord, 0, len(rows))
	for _, attrs := range rows {
		records = append(records, normalizeLogRecord(attrs))
	}
	return records, nil
}

// SearchSpans pages through the span search API and returns normalised
// spans with nanosecond durations.
func (c *DatadogClient) SearchSpans(ctx context.Context, query string, from, to time.Time, limit, maxPages int) ([]SpanRecord, error) {
	rows, err := c.searchEvents(ctx, "search_spans", c.v2Base+"/spans/events/search", query, from, to, limit, maxPages)
	if err != nil {
		return nil, err
	}

	spans := make([]SpanRecord, 0, len(rows))
	for _, attrs := range rows {
		spans = append(spans, normalizeSpanRecord(attrs))
	}
	return spans, nil
}

// SearchEvents lists deploy/config/infra events overlapping the window,
// optionally filtered by a comma-joined tag list.
func (c *DatadogClient) SearchEvents(ctx context.Context, from, to time.Time, tagFilter string) ([]EventRecord, error) {
	if c == nil {
		return nil, fmt.Errorf("datadog client not initialised")
	}

	params := url.Values{}
	params.Set("start", strconv.FormatInt(from.UTC().Unix(), 10))
	params.Set("end", strconv.FormatInt(to.UTC().Unix(), 10))
	if tagFilter != "" {
		params.Set("tags", tagFilter)
	}

	var response struct {
		Events []struct {
			ID           int64    `json:"id"`
			Title        string   `json:"title"`
			Text         string   `json:"text"`
			DateHappened int64    `json:"date_happened"`
			Tags         []string `json:"tags"`
			Source       string   `json:"source_type_name"`
			Alert        string   `json:"alert_type"`
		} `json:"events"`
	}
	if err := c.getJSON(ctx, "search_events", c.v1Base+"/events", params, &response); err != nil {
		return nil, err
	}

	events := make([]EventRecord, 0, len(response.Events))
	for _, e := range response.Events {
		events = append(events, EventRecord{
			ID:           e.ID,
			Title:        e.Title,
			Text:         e.Text,
			DateHappened: time.Unix(e.DateHappened, 0).UTC(),
			Tags:         e.Tags,
			Source:       firstNonEmpty(e.Source, e.Alert),
		})
	}
	return events, nil
}

// searchEvents walks a v2 search endpoint page by page, collecting raw
// attribute maps until the cursor runs out or maxPages is hit.
func (c *DatadogClient) searchEvents(ctx context.Context, op, endpoint, query string, from, to time.Time, limit, maxPages int) ([]map[string]any, error) {
	if c == nil {
		return nil, fmt.Errorf("datadog client not initialised")
	}
	if limit <= 0 {
		limit = 1000
	}
	if maxPages <= 0 {
		maxPages = 5
	}

	var rows []map[string]any
	cursor := ""
	for page := 0; page < maxPages; page++ {
		pageSpec := map[string]any{"limit": limit}
		if cursor != "" {
			pageSpec["cursor"] = cursor
		}
		payload := map[string]any{
			"filter": map[string]any{
				"query": query,
				"from":  from.UTC().Format(time.RFC3339),
				"to":    to.UTC().Format(time.RFC3339),
			},
			"sort": "timestamp",
			"page": pageSpec,
		}

		var response struct {
			Data []struct {
				ID         string         `json:"id"`
				Attributes map[string]any `json:"attributes"`
			} `json:"data"`
			Meta struct {
				Page struct {
					After string `json:"after"`
				} `json:"page"`
			} `json:"meta"`
		}
		if err := c.postJSON(ctx, op, endpoint, payload, &response); err != nil {
			return nil, err
		}

		for _, item := range response.Data {
			attrs := item.Attributes
			if attrs == nil {
				attrs = map[string]any{}
			}
			if _, ok := attrs["id"]; !ok {
				attrs["id"] = item.ID
			}
			rows = append(rows, attrs)
		}
		cursor = response.Meta.Page.After
		if cursor == "" {
			break
		}
		c.logger.Debug("following search cursor", "op", op, "page", page+1, "collected", len(rows))
	}
	return rows, nil
}

func (c *DatadogClient) getJSON(ctx context.Context, op, endpoint string, params url.Values, out any) error {
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(op, req, out)
}

func (c *DatadogClient) postJSON(ctx context.Context, op, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, out)
}

func (c *DatadogClient) do(op string, req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
	}
	req.Header.Set("DD-API-KEY", c.apiKey)
	if c.appKey != "" {
		req.Header.Set("DD-APPLICATION-KEY", c.appKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveTelemetryRequest(op, "error")
		return fmt.Errorf("datadog %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ObserveTelemetryRequest(op, "error")
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	metrics.ObserveTelemetryRequest(op, "success")
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("datadog %s: decode response: %w", op, err)
	}
	return nil
}

// IsNotFound reports whether err is an API error with a 404 status.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func normalizeLogRecord(attrs map[string]any) LogRecord {
	record := LogRecord{
		Timestamp:  parseWireTime(attrs["timestamp"]),
		Service:    attrStr(attrs, "service"),
		Host:       attrStr(attrs, "host"),
		Status:     attrStr(attrs, "status"),
		Message:    attrStr(attrs, "message"),
		Attributes: map[string]string{},
		Tags:       attrStrings(attrs, "tags"),
	}

	if nested, ok := attrs["attributes"].(map[string]any); ok {
		flattenAttributes("", nested, record.Attributes, 0)
	}
	for k, v := range attrs {
		switch k {
		case "attributes", "tags", "message", "timestamp":
			continue
		}
		if s := scalarString(v); s != "" {
			if _, exists := record.Attributes[k]; !exists {
				record.Attributes[k] = s
			}
		}
	}
	if record.Service == "" {
		record.Service = record.Attributes["service"]
	}
	if record.Host == "" {
		record.Host = record.Attributes["host"]
	}
	return record
}

func normalizeSpanRecord(attrs map[string]any) SpanRecord {
	flat := map[string]string{}
	flattenAttributes("", attrs, flat, 0)

	durationNs, _ := attrNum(attrs, "duration")
	span := SpanRecord{
		TraceID:     firstNonEmpty(flat["trace_id"], flat["traceID"]),
		Service:     flat["service"],
		Resource:    firstNonEmpty(flat["resource_name"], flat["resource"]),
		Timestamp:   parseWireTime(firstRaw(attrs, "start_timestamp", "start", "timestamp")),
		Duration:    time.Duration(durationNs),
		Kind:        firstNonEmpty(flat["span.kind"], flat["kind"]),
		PeerService: flat["peer.service"],
	}
	span.IsError = attrTruthy(attrs, "error") || strings.EqualFold(flat["status"], "error")
	return span
}

// flattenAttributes folds nested objects into dot-joined keys, capping depth
// so adversarial payloads cannot recurse unbounded.
func flattenAttributes(prefix string, in map[string]any, out map[string]string, depth int) {
	if depth > 3 {
		return
	}
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch typed := v.(type) {
		case map[string]any:
			flattenAttributes(key, typed, out, depth+1)
		default:
			if s := scalarString(v); s != "" {
				out[key] = s
			}
		}
	}
}

func scalarString(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case json.Number:
		return typed.String()
	}
	return ""
}

func attrStr(attrs map[string]any, key string) string {
	if v, ok := attrs[key]; ok {
		return scalarString(v)
	}
	return ""
}

func attrStrings(attrs map[string]any, key string) []string {
	raw, ok := attrs[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func attrNum(attrs map[string]any, key string) (float64, bool) {
	switch typed := attrs[key].(type) {
	case float64:
		return typed, true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(typed, 64)
		return f, err == nil
	}
	return 0, false
}

func attrTruthy(attrs map[string]any, key string) bool {
	switch typed := attrs[key].(type) {
	case bool:
		return typed
	case float64:
		return typed != 0
	case string:
		return typed == "1" || strings.EqualFold(typed, "true")
	}
	return false
}

func firstRaw(attrs map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := attrs[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// parseWireTime accepts RFC3339 strings and epoch numbers; magnitudes above
// 1e12 are read as milliseconds.
func parseWireTime(v any) time.Time {
	switch typed := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, typed); err == nil {
			return t.UTC()
		}
		if f, err := strconv.ParseFloat(typed, 64); err == nil {
			return epochToTime(f)
		}
	case float64:
		return epochToTime(typed)
	case json.Number:
		if f, err := typed.Float64(); err == nil {
			return epochToTime(f)
		}
	}
	return time.Time{}
}

func epochToTime(f float64) time.Time {
	if f > 1e15 {
		// Nanoseconds.
		return time.Unix(0, int64(f)).UTC()
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
