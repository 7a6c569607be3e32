// Package extractors derives deterministic statistical features from raw
// insight payloads. Extraction is pure: no I/O, no clock, no shared state.
package extractors

import (
	"errors"
	"fmt"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// ErrUnsupportedInputType signals a request whose input type has no registered extractor.
var ErrUnsupportedInputType = errors.New("unsupported input type")

// ErrInsufficientData signals a payload too small to compute features from.
var ErrInsufficientData = errors.New("insufficient data points")

// ErrDivisionUndefined signals a zero previous value. It is absorbed inside the
// metrics extractor by deriving the percent change from the absolute delta.
var ErrDivisionUndefined = errors.New("percent change undefined for zero previous value")

type extractFunc func(req models.InsightRequest) (models.FeatureSet, error)

// Extractor routes requests to per-input-type feature extraction functions.
type Extractor struct {
	registry map[models.InputType]extractFunc
}

// New returns an Extractor with all built-in input types registered.
func New() *Extractor {
	e := &Extractor{registry: make(map[models.InputType]extractFunc)}
	e.registry[models.InputMetrics] = extractMetrics
	e.registry[models.InputText] = extractText
	e.registry[models.InputTimeSeries] = extractTimeSeries
	return e
}

// Extract computes the FeatureSet for the request's input type.
func (e *Extractor) Extract(req models.InsightRequest) (models.FeatureSet, error) {
	fn, ok := e.registry[req.InputType]
	if !ok {
		return models.FeatureSet{}, fmt.Errorf("%w: %q", ErrUnsupportedInputType, req.InputType)
	}
	return fn(req)
}

// Default severity hint cutoffs. The classifier applies the configured
// thresholds; the hint only gives downstream templates a coarse starting tier.
const (
	hintCriticalPct = 50.0
	hintHighPct     = 25.0
	hintMediumPct   = 10.0
)

func severityHint(absPct float64) models.Severity {
	switch {
	case absPct >= hintCriticalPct:
		return models.SeverityCritical
	case absPct >= hintHighPct:
		return models.SeverityHigh
	case absPct >= hintMediumPct:
		return models.SeverityMedium
	case absPct > 0:
		return models.SeverityLow
	default:
		return models.SeverityNone
	}
}
