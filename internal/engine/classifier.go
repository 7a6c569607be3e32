package engine

import (
	"fmt"
	"math"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// Thresholds holds the percent-change cutoffs for each severity tier plus the
// z-score cutoff used for the anomaly flag.
type Thresholds struct {
	CriticalPct float64
	HighPct     float64
	MediumPct   float64
	ZScore      float64
}

// DefaultThresholds returns the stock severity cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{CriticalPct: 50, HighPct: 25, MediumPct: 10, ZScore: 3}
}

// Merge overlays non-zero request-level overrides onto the configured cutoffs.
func (t Thresholds) Merge(overrides *models.Thresholds) Thresholds {
	if overrides == nil {
		return t
	}
	merged := t
	if overrides.CriticalPct > 0 {
		merged.CriticalPct = overrides.CriticalPct
	}
	if overrides.HighPct > 0 {
		merged.HighPct = overrides.HighPct
	}
	if overrides.MediumPct > 0 {
		merged.MediumPct = overrides.MediumPct
	}
	return merged
}

// Classifier scores a FeatureSet into an AnomalyAssessment. Pure and
// deterministic: identical features and thresholds always produce the same
// assessment.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier constructs a Classifier with the given cutoffs.
func NewClassifier(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

// Classify derives severity and the anomaly flag from the feature set.
// Severity is the highest tier whose cutoff is met or exceeded by the change
// magnitude; exact equality rounds up to the stricter tier.
func (c *Classifier) Classify(features models.FeatureSet, overrides *models.Thresholds) models.AnomalyAssessment {
	t := c.thresholds.Merge(overrides)
	abs := math.Abs(features.ChangePercent)

	var severity models.Severity
	var rationale []string
	switch {
	case abs >= t.CriticalPct:
		severity = models.SeverityCritical
		rationale = append(rationale, tierSignal(abs, "critical", t.CriticalPct))
	case abs >= t.HighPct:
		severity = models.SeverityHigh
		rationale = append(rationale, tierSignal(abs, "high", t.HighPct))
	case abs >= t.MediumPct:
		severity = models.SeverityMedium
		rationale = append(rationale, tierSignal(abs, "medium", t.MediumPct))
	case abs > 0:
		severity = models.SeverityLow
		rationale = append(rationale, fmt.Sprintf("change magnitude %.2f%% below medium threshold %.2f%%", abs, t.MediumPct))
	default:
		severity = models.SeverityNone
		rationale = append(rationale, "no change detected")
	}

	// Non-numeric inputs carry their signal in the hint (urgency keywords for
	// text). The percent channel is silent there, so the hint becomes the
	// rule-based severity.
	if abs == 0 && features.SeverityHint.Rank() > severity.Rank() {
		severity = features.SeverityHint
		rationale = []string{fmt.Sprintf("content signals indicate %s severity", severity)}
	}

	if features.AbsoluteFallback {
		rationale = append(rationale, "previous value was zero; change derived from absolute delta")
	}

	anomalous := severity.AtLeast(models.SeverityMedium)
	if t.ZScore > 0 && math.Abs(features.ZScore) > t.ZScore {
		anomalous = true
		rationale = append(rationale, fmt.Sprintf("z-score %.2f exceeds cutoff %.2f", features.ZScore, t.ZScore))
	}

	return models.AnomalyAssessment{
		IsAnomalous: anomalous,
		Severity:    severity,
		Rationale:   rationale,
	}
}

func tierSignal(abs float64, tier string, cutoff float64) string {
	return fmt.Sprintf("change magnitude %.2f%% meets %s threshold %.2f%%", abs, tier, cutoff)
}
