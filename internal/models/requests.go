package models

// AnalyzeMonitorRequest seeds an analysis from a triggered monitor.
type AnalyzeMonitorRequest struct {
	MonitorID       int64  `json:"monitor_id"`
	TriggerTs       string `json:"trigger_ts"`
	WindowMinutes   int    `json:"window_minutes"`
	BaselineMinutes int    `json:"baseline_minutes"`
}

// AnalyzeLogsRequest seeds an analysis from a log query.
type AnalyzeLogsRequest struct {
	LogQuery        string `json:"log_query"`
	AnchorTs        string `json:"anchor_ts"`
	WindowMinutes   int    `json:"window_minutes"`
	BaselineMinutes int    `json:"baseline_minutes"`
}

// AnalyzeServiceRequest seeds an analysis from a service and explicit range.
type AnalyzeServiceRequest struct {
	Service string `json:"service"`
	Env     string `json:"env"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Mode    string `json:"mode"`
}
