package models

import "time"

// InputType enumerates supported insight input payloads.
type InputType string

const (
	InputMetrics    InputType = "metrics"
	InputText       InputType = "text"
	InputTimeSeries InputType = "timeseries"
)

// MetricsData is the payload for InputMetrics requests.
type MetricsData struct {
	MetricName string    `json:"metric_name"`
	Values     []float64 `json:"values"`
}

// TextData is the payload for InputText requests.
type TextData struct {
	Content string `json:"content"`
}

// TimeSeriesPoint is one timestamped sample in a TimeSeriesData payload.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeSeriesData is the payload for InputTimeSeries requests.
type TimeSeriesData struct {
	SeriesName string            `json:"series_name"`
	Points     []TimeSeriesPoint `json:"data_points"`
}

// Thresholds overrides severity cutoffs for a single request.
type Thresholds struct {
	CriticalPct float64 `json:"critical_pct"`
	HighPct     float64 `json:"high_pct"`
	MediumPct   float64 `json:"medium_pct"`
}

// InsightRequest represents one accepted insight generation call. Immutable
// once accepted; the payload field matching InputType is the one consulted.
type InsightRequest struct {
	UserID     string          `json:"user_id"`
	TenantID   string          `json:"tenant_id"`
	InputType  InputType       `json:"input_type"`
	Metrics    *MetricsData    `json:"metrics,omitempty"`
	Text       *TextData       `json:"text,omitempty"`
	TimeSeries *TimeSeriesData `json:"timeseries,omitempty"`
	Thresholds *Thresholds     `json:"thresholds,omitempty"`
}

// HistoryItem is a condensed insight used by history listings.
type HistoryItem struct {
	InsightID     string    `json:"insight_id"`
	CreatedAt     time.Time `json:"created_at"`
	MetricName    string    `json:"metric_name"`
	Severity      Severity  `json:"severity"`
	Summary       string    `json:"summary"`
	ChangePercent float64   `json:"change_percent"`
}

// HistoryQuery captures filters for insight history lookups.
type HistoryQuery struct {
	UserID   string
	TenantID string
	Severity Severity
	Limit    int
	Offset   int
}

// HistoryPage is one page of insight history.
type HistoryPage struct {
	TotalCount int           `json:"total_count"`
	Items      []HistoryItem `json:"insights"`
}
