package extractors

import (
	"fmt"

	"github.com/pythiastack/pythia-insights/internal/models"
)

func extractTimeSeries(req models.InsightRequest) (models.FeatureSet, error) {
	if req.TimeSeries == nil {
		return models.FeatureSet{}, fmt.Errorf("timeseries payload missing: %w", ErrInsufficientData)
	}

	values := make([]float64, 0, len(req.TimeSeries.Points))
	for _, p := range req.TimeSeries.Points {
		values = append(values, p.Value)
	}

	name := req.TimeSeries.SeriesName
	if name == "" {
		name = "Time Series"
	}
	return featuresFromSeries(name, values)
}
