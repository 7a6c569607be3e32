package engine

import (
	"strings"
	"testing"

	"github.com/pythiastack/pythia-insights/internal/models"
)

func TestClassifySeverityTiers(t *testing.T) {
	classifier := NewClassifier(DefaultThresholds())

	cases := []struct {
		name          string
		changePercent float64
		wantSeverity  models.Severity
		wantAnomalous bool
	}{
		{"zero change", 0, models.SeverityNone, false},
		{"below medium", 4.2, models.SeverityLow, false},
		{"just under medium", 9.99, models.SeverityLow, false},
		{"exactly medium rounds up", 10, models.SeverityMedium, true},
		{"between medium and high", 18, models.SeverityMedium, true},
		{"exactly high rounds up", 25, models.SeverityHigh, true},
		{"typical high", 47.06, models.SeverityHigh, true},
		{"exactly critical rounds up", 50, models.SeverityCritical, true},
		{"large drop", -82.5, models.SeverityCritical, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assessment := classifier.Classify(models.FeatureSet{ChangePercent: tc.changePercent}, nil)
			if assessment.Severity != tc.wantSeverity {
				t.Fatalf("severity = %s, want %s", assessment.Severity, tc.wantSeverity)
			}
			if assessment.IsAnomalous != tc.wantAnomalous {
				t.Fatalf("anomalous = %v, want %v", assessment.IsAnomalous, tc.wantAnomalous)
			}
			if len(assessment.Rationale) == 0 {
				t.Fatalf("assessment must carry a rationale")
			}
		})
	}
}

func TestClassifySeverityMonotonic(t *testing.T) {
	classifier := NewClassifier(DefaultThresholds())

	prev := models.SeverityNone
	for pct := 0.0; pct <= 120; pct += 0.5 {
		got := classifier.Classify(models.FeatureSet{ChangePercent: pct}, nil).Severity
		if got.Rank() < prev.Rank() {
			t.Fatalf("severity regressed from %s to %s at %.1f%%", prev, got, pct)
		}
		prev = got
	}
}

func TestClassifyContentHint(t *testing.T) {
	classifier := NewClassifier(DefaultThresholds())

	// Text input: no percent signal, keyword-driven hint carries the severity.
	urgent := classifier.Classify(models.FeatureSet{SeverityHint: models.SeverityHigh}, nil)
	if urgent.Severity != models.SeverityHigh {
		t.Fatalf("severity = %s, want high", urgent.Severity)
	}
	if !urgent.IsAnomalous {
		t.Fatalf("high-severity content must flag the anomaly")
	}
	var found bool
	for _, r := range urgent.Rationale {
		if strings.Contains(r, "content signals") {
			found = true
		}
	}
	if !found {
		t.Fatalf("rationale must name the content signal, got %v", urgent.Rationale)
	}

	routine := classifier.Classify(models.FeatureSet{SeverityHint: models.SeverityMedium}, nil)
	if routine.Severity != models.SeverityMedium {
		t.Fatalf("severity = %s, want medium", routine.Severity)
	}

	// A live percent signal takes precedence over the hint.
	numeric := classifier.Classify(models.FeatureSet{ChangePercent: 4.2, SeverityHint: models.SeverityHigh}, nil)
	if numeric.Severity != models.SeverityLow {
		t.Fatalf("severity = %s, want low", numeric.Severity)
	}
}

func TestClassifyZScoreFlagsAnomaly(t *testing.T) {
	classifier := NewClassifier(DefaultThresholds())

	// Small percent change but extreme deviation from the historical mean.
	assessment := classifier.Classify(models.FeatureSet{ChangePercent: 3, ZScore: 4.5}, nil)
	if assessment.Severity != models.SeverityLow {
		t.Fatalf("severity = %s, want low", assessment.Severity)
	}
	if !assessment.IsAnomalous {
		t.Fatalf("z-score beyond cutoff must flag the anomaly")
	}
	var found bool
	for _, r := range assessment.Rationale {
		if strings.Contains(r, "z-score") {
			found = true
		}
	}
	if !found {
		t.Fatalf("rationale must mention the z-score signal, got %v", assessment.Rationale)
	}
}

func TestClassifyRequestOverrides(t *testing.T) {
	classifier := NewClassifier(DefaultThresholds())

	overrides := &models.Thresholds{CriticalPct: 30, HighPct: 20, MediumPct: 5}
	assessment := classifier.Classify(models.FeatureSet{ChangePercent: 32}, overrides)
	if assessment.Severity != models.SeverityCritical {
		t.Fatalf("severity with overrides = %s, want critical", assessment.Severity)
	}

	// Zero-valued override fields keep the configured cutoffs.
	partial := &models.Thresholds{HighPct: 40}
	assessment = classifier.Classify(models.FeatureSet{ChangePercent: 32}, partial)
	if assessment.Severity != models.SeverityMedium {
		t.Fatalf("severity with partial overrides = %s, want medium", assessment.Severity)
	}
}

func TestClassifyAbsoluteFallbackNoted(t *testing.T) {
	classifier := NewClassifier(DefaultThresholds())

	assessment := classifier.Classify(models.FeatureSet{ChangePercent: 1000, AbsoluteFallback: true}, nil)
	var found bool
	for _, r := range assessment.Rationale {
		if strings.Contains(r, "previous value was zero") {
			found = true
		}
	}
	if !found {
		t.Fatalf("rationale must note the absolute-delta fallback, got %v", assessment.Rationale)
	}
}
