package models

import "time"

// Severity captures how significant a detected change is, ordered by escalation.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the escalation order of the severity. Unknown values rank below none.
func (s Severity) Rank() int {
	if rank, ok := severityRank[s]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether s is at or above the given tier.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity normalises a severity string, returning SeverityNone for unknown input.
func ParseSeverity(raw string) Severity {
	s := Severity(raw)
	if _, ok := severityRank[s]; ok {
		return s
	}
	return SeverityNone
}

// FeatureSet holds the deterministic statistical features extracted from one request.
type FeatureSet struct {
	MetricName     string   `json:"metric_name"`
	PreviousValue  float64  `json:"previous_value"`
	CurrentValue   float64  `json:"current_value"`
	ChangeAbsolute float64  `json:"change_absolute"`
	ChangePercent  float64  `json:"change_percent"`
	Mean           float64  `json:"mean"`
	StdDev         float64  `json:"std_dev"`
	ZScore         float64  `json:"z_score"`
	SampleCount    int      `json:"sample_count"`
	// AbsoluteFallback is set when the previous value was zero and the percent
	// change had to be derived from the absolute delta instead.
	AbsoluteFallback bool     `json:"absolute_fallback"`
	SeverityHint     Severity `json:"severity_hint"`
}

// AnomalyAssessment is the pure classification derived from a FeatureSet.
type AnomalyAssessment struct {
	IsAnomalous bool     `json:"is_anomalous"`
	Severity    Severity `json:"severity"`
	Rationale   []string `json:"rationale"`
}

// Prompt is the rendered generation input for one insight.
type Prompt struct {
	TemplateID string `json:"template_id"`
	Text       string `json:"text"`
}

// GenerationResult holds the parsed output of a generation backend plus call metadata.
type GenerationResult struct {
	Summary            string   `json:"summary"`
	Severity           Severity `json:"severity"`
	Confidence         float64  `json:"confidence"`
	RecommendedActions []string `json:"recommended_actions"`
	KeyFindings        []string `json:"key_findings"`
	ProviderUsed       string   `json:"provider_used"`
	FallbackUsed       bool     `json:"fallback_used"`
	LatencyMS          int64    `json:"latency_ms"`
}

// Insight is the final artifact of one orchestration. Immutable once assembled.
type Insight struct {
	InsightID        string            `json:"insight_id"`
	UserID           string            `json:"user_id"`
	TenantID         string            `json:"tenant_id"`
	InputType        InputType         `json:"input_type"`
	Features         FeatureSet        `json:"features"`
	Assessment       AnomalyAssessment `json:"assessment"`
	Generation       GenerationResult  `json:"generation"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TaskStatus enumerates async task lifecycle states. Transitions are monotonic.
type TaskStatus string

const (
	TaskSubmitted TaskStatus = "submitted"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

var taskStatusRank = map[TaskStatus]int{
	TaskSubmitted: 0,
	TaskRunning:   1,
	TaskSucceeded: 2,
	TaskFailed:    2,
}

// Rank returns the lifecycle order of the status; terminal states share the top rank.
func (s TaskStatus) Rank() int {
	if rank, ok := taskStatusRank[s]; ok {
		return rank
	}
	return -1
}

// Terminal reports whether no further transition is permitted from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskRecord tracks one async insight job.
type TaskRecord struct {
	TaskID      string     `json:"task_id"`
	Status      TaskStatus `json:"status"`
	Result      *Insight   `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
