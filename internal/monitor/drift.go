// Package monitor watches generation quality: it compares rule-based severity
// against generated severity over recent insights and flags drift between the
// two before it degrades downstream decisions.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pythiastack/pythia-insights/internal/models"
	"github.com/pythiastack/pythia-insights/internal/repo"
)

// DriftReport summarizes generation quality for one tenant over a lookback window.
type DriftReport struct {
	TenantID         string    `json:"tenant_id"`
	WindowStart      time.Time `json:"window_start"`
	SampleCount      int       `json:"sample_count"`
	DisagreementRate float64   `json:"disagreement_rate"`
	Disagreements    int       `json:"disagreements"`
	LowConfidence    int       `json:"low_confidence_count"`
	FallbackCount    int       `json:"fallback_count"`
	Status           string    `json:"status"`
	Recommendation   string    `json:"recommendation"`
}

// Drift status tiers.
const (
	StatusInsufficient = "insufficient_data"
	StatusHealthy      = "healthy"
	StatusWarning      = "warning"
	StatusDrifting     = "drifting"
)

// Monitor computes drift reports from persisted insights.
type Monitor struct {
	logger        *slog.Logger
	store         repo.InsightStore
	lookback      time.Duration
	minSamples    int
	warnRate      float64
	driftRate     float64
	minConfidence float64
	now           func() time.Time
}

// NewMonitor constructs a Monitor with the stock thresholds: a one hour
// lookback, at least 5 samples before judging, warning at 30% disagreement and
// drifting at 50%, low confidence below 0.5.
func NewMonitor(logger *slog.Logger, store repo.InsightStore) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		logger:        logger,
		store:         store,
		lookback:      time.Hour,
		minSamples:    5,
		warnRate:      0.3,
		driftRate:     0.5,
		minConfidence: 0.5,
		now:           time.Now,
	}
}

// Report aggregates the tenant's recent insights into a DriftReport. A tenant
// with fewer than the minimum samples is reported as insufficient rather than
// healthy: absence of data is not evidence of health.
func (m *Monitor) Report(ctx context.Context, tenantID string) (DriftReport, error) {
	since := m.now().Add(-m.lookback)
	insights, err := m.store.ListRecent(ctx, tenantID, since)
	if err != nil {
		return DriftReport{}, fmt.Errorf("list recent insights: %w", err)
	}

	report := DriftReport{
		TenantID:    tenantID,
		WindowStart: since.UTC(),
		SampleCount: len(insights),
	}

	for _, insight := range insights {
		if disagrees(insight) {
			report.Disagreements++
		}
		if insight.Generation.Confidence < m.minConfidence {
			report.LowConfidence++
		}
		if insight.Generation.FallbackUsed {
			report.FallbackCount++
		}
	}

	if report.SampleCount < m.minSamples {
		report.Status = StatusInsufficient
		report.Recommendation = fmt.Sprintf("Fewer than %d insights in the window; no drift judgement yet.", m.minSamples)
		return report, nil
	}

	report.DisagreementRate = round4(float64(report.Disagreements) / float64(report.SampleCount))
	switch {
	case report.DisagreementRate >= m.driftRate:
		report.Status = StatusDrifting
		report.Recommendation = "Generated severity diverges from rule-based severity for most recent insights. Review prompt templates and consider pinning the provider model version."
	case report.DisagreementRate >= m.warnRate:
		report.Status = StatusWarning
		report.Recommendation = "Severity disagreement is elevated. Sample recent insights manually and compare rationale against generated summaries."
	default:
		report.Status = StatusHealthy
		report.Recommendation = "Generated output tracks rule-based classification. No action needed."
	}

	if report.Status != StatusHealthy {
		m.logger.Warn("generation drift detected",
			slog.String("tenant_id", tenantID),
			slog.String("status", report.Status),
			slog.Float64("disagreement_rate", report.DisagreementRate),
			slog.Int("sample_count", report.SampleCount))
	}

	return report, nil
}

// disagrees reports whether the generated severity differs from the rule-based
// severity by more than one tier. Adjacent tiers are tolerated: the generator
// legitimately weighs context the rules cannot see.
func disagrees(insight models.Insight) bool {
	ruleRank := insight.Assessment.Severity.Rank()
	genRank := insight.Generation.Severity.Rank()
	diff := ruleRank - genRank
	if diff < 0 {
		diff = -diff
	}
	return diff > 1
}

func round4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}
