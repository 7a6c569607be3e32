package extractors

import (
	"errors"
	"fmt"
	"math"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// percentCap bounds the synthetic percent change used when the previous value is zero.
const percentCap = 1000.0

func extractMetrics(req models.InsightRequest) (models.FeatureSet, error) {
	if req.Metrics == nil {
		return models.FeatureSet{}, fmt.Errorf("metrics payload missing: %w", ErrInsufficientData)
	}
	return featuresFromSeries(req.Metrics.MetricName, req.Metrics.Values)
}

// featuresFromSeries computes change and dispersion features over an ordered series.
func featuresFromSeries(name string, values []float64) (models.FeatureSet, error) {
	if len(values) < 2 {
		return models.FeatureSet{}, fmt.Errorf("need at least 2 values, got %d: %w", len(values), ErrInsufficientData)
	}

	previous := values[len(values)-2]
	current := values[len(values)-1]
	delta := current - previous

	changePercent, err := percentChange(previous, current)
	fallback := false
	if err != nil {
		if !errors.Is(err, ErrDivisionUndefined) {
			return models.FeatureSet{}, err
		}
		// Zero baseline: use the bounded absolute-delta signal instead.
		changePercent = cappedPercent(delta)
		fallback = true
	}

	mean, stdDev := dispersion(values)
	zScore := 0.0
	if stdDev > 0 {
		zScore = (current - mean) / stdDev
	}

	return models.FeatureSet{
		MetricName:       name,
		PreviousValue:    previous,
		CurrentValue:     current,
		ChangeAbsolute:   round2(delta),
		ChangePercent:    round2(changePercent),
		Mean:             round2(mean),
		StdDev:           round2(stdDev),
		ZScore:           round2(zScore),
		SampleCount:      len(values),
		AbsoluteFallback: fallback,
		SeverityHint:     severityHint(math.Abs(round2(changePercent))),
	}, nil
}

func percentChange(previous, current float64) (float64, error) {
	if previous == 0 {
		if current == 0 {
			return 0, nil
		}
		return 0, ErrDivisionUndefined
	}
	return (current - previous) / math.Abs(previous) * 100, nil
}

func cappedPercent(delta float64) float64 {
	if delta > 0 {
		return percentCap
	}
	if delta < 0 {
		return -percentCap
	}
	return 0
}

func dispersion(values []float64) (mean, stdDev float64) {
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += math.Pow(v-mean, 2)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
