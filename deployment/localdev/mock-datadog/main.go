// mock-datadog serves the handful of Datadog API endpoints faultline talks
// to, with synthetic telemetry shaped like a checkout incident. Point the
// engine at it with FAULTLINE_SITE=http://localhost:8126.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/v1/monitor/{id}", handleMonitor)
	mux.HandleFunc("GET /api/v1/query", handleQuery)
	mux.HandleFunc("POST /api/v2/logs/events/search", handleLogSearch)
	mux.HandleFunc("POST /api/v2/spans/events/search", handleSpanSearch)
	mux.HandleFunc("GET /api/v1/events", handleEvents)

	logger := log.New(log.Writer(), "datadog-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8126",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8126")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func handleMonitor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, `{"errors":["monitor id must be numeric"]}`, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"id":      id,
		"name":    "checkout error rate",
		"type":    "metric alert",
		"query":   "avg(last_5m):sum:checkout.request.errors{service:checkout}.as_count() > 25",
		"tags":    []string{"service:checkout", "env:prod", "team:payments"},
		"message": "Checkout errors above threshold, page payments on-call.",
	})
}

func handleQuery(w http.ResponseWriter, r *http.Request) {
	from := epochParam(r, "from")
	to := epochParam(r, "to")
	writeJSON(w, map[string]any{
		"series": []map[string]any{
			{
				"metric":    "checkout.request.errors",
				"scope":     "service:checkout,env:prod",
				"tag_set":   []string{"service:checkout", "env:prod"},
				"pointlist": seriesPoints(from, to, hotWindow(from, to)),
				"unit":      nil,
			},
		},
	})
}

func handleLogSearch(w http.ResponseWriter, r *http.Request) {
	from, to, ok := searchWindow(w, r)
	if !ok {
		return
	}
	hot := hotWindow(from, to)

	count := 4
	if hot {
		count = 40
	}
	data := make([]map[string]any, 0, count+6)
	for i := 0; i < count; i++ {
		data = append(data, logRow(i, spread(from, to, i, count),
			fmt.Sprintf("payment gateway timeout for order %d", 84000+i), "GatewayTimeout"))
	}
	if hot {
		for i := 0; i < 6; i++ {
			data = append(data, logRow(count+i, spread(from, to, i, 6),
				"connection reset by peer payments-gw:443", "ConnectionReset"))
		}
	}
	writeSearchPage(w, data)
}

func handleSpanSearch(w http.ResponseWriter, r *http.Request) {
	from, to, ok := searchWindow(w, r)
	if !ok {
		return
	}
	hot := hotWindow(from, to)

	data := make([]map[string]any, 0, 40)
	for i := 0; i < 30; i++ {
		durationMs := 120 + 4*float64(i%5)
		isError := false
		if hot {
			durationMs = 950 + 35*float64(i%7)
			isError = i%5 == 0
		}
		data = append(data, spanRow(i, spread(from, to, i, 30), "POST /pay", durationMs, isError, "payments-gw"))
	}
	for i := 0; i < 10; i++ {
		durationMs := 60 + 2*float64(i%3)
		if hot {
			durationMs = 240 + 10*float64(i%4)
		}
		data = append(data, spanRow(30+i, spread(from, to, i, 10), "db.query orders", durationMs, false, "orders-db"))
	}
	writeSearchPage(w, data)
}

func handleEvents(w http.ResponseWriter, r *http.Request) {
	from := epochParam(r, "start")
	to := epochParam(r, "end")
	events := []map[string]any{}
	if hotWindow(from, to) {
		events = append(events,
			map[string]any{
				"id":               9001,
				"title":            "Deployed checkout v2026.08.25-1",
				"text":             "Rolling deploy of checkout via CI pipeline 4821.",
				"date_happened":    to.Add(-12 * time.Minute).Unix(),
				"tags":             []string{"service:checkout", "env:prod", "source:deploy"},
				"source_type_name": "deployments",
			},
			map[string]any{
				"id":               9002,
				"title":            "Config change: payments-gw connection pool",
				"text":             "max_connections lowered from 200 to 50.",
				"date_happened":    to.Add(-9 * time.Minute).Unix(),
				"tags":             []string{"service:payments-gw", "env:prod"},
				"source_type_name": "config",
			},
		)
	}
	writeJSON(w, map[string]any{"events": events})
}

// hotWindow reports whether a window ends close enough to now to be the
// incident half of an analysis. The baseline window ends a full window
// length earlier, so half a window of slack separates the two.
func hotWindow(from, to time.Time) bool {
	if !to.After(from) {
		return false
	}
	return time.Since(to) < to.Sub(from)/2
}

func seriesPoints(from, to time.Time, hot bool) [][]float64 {
	const n = 12
	step := to.Sub(from) / n
	points := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		value := 42 + float64(i%3)
		if hot {
			value = 180 + 30*float64(i)
		}
		ts := from.Add(time.Duration(i) * step)
		points = append(points, []float64{float64(ts.UnixMilli()), value})
	}
	return points
}

func logRow(i int, ts time.Time, message, errorType string) map[string]any {
	return map[string]any{
		"id": fmt.Sprintf("log-%d", i),
		"attributes": map[string]any{
			"timestamp": ts.UTC().Format(time.RFC3339),
			"service":   "checkout",
			"host":      fmt.Sprintf("ip-10-0-1-%d", 10+i%4),
			"status":    "error",
			"message":   message,
			"attributes": map[string]any{
				"error": map[string]any{"type": errorType},
			},
			"tags": []string{"env:prod", "team:payments"},
		},
	}
}

func spanRow(i int, ts time.Time, resource string, durationMs float64, isError bool, peer string) map[string]any {
	return map[string]any{
		"id": fmt.Sprintf("span-%d", i),
		"attributes": map[string]any{
			"trace_id":        fmt.Sprintf("trace-%04d", i),
			"service":         "checkout",
			"resource_name":   resource,
			"start_timestamp": ts.UTC().Format(time.RFC3339),
			"duration":        durationMs * 1e6,
			"span.kind":       "server",
			"peer.service":    peer,
			"error":           isError,
		},
	}
}

// spread places item i of n evenly inside the window.
func spread(from, to time.Time, i, n int) time.Time {
	if n <= 1 {
		return from
	}
	return from.Add(to.Sub(from) * time.Duration(i) / time.Duration(n))
}

func searchWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	var body struct {
		Filter struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"errors":["invalid JSON body"]}`, http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(time.RFC3339, body.Filter.From)
	if err != nil {
		http.Error(w, `{"errors":["filter.from must be RFC3339"]}`, http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, body.Filter.To)
	if err != nil {
		http.Error(w, `{"errors":["filter.to must be RFC3339"]}`, http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func writeSearchPage(w http.ResponseWriter, data []map[string]any) {
	writeJSON(w, map[string]any{
		"data": data,
		"meta": map[string]any{"page": map[string]any{"after": ""}},
	})
}

func epochParam(r *http.Request, key string) time.Time {
	seconds, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
