package extractors

import (
	"fmt"
	"strings"

	"github.com/pythiastack/pythia-insights/internal/models"
)

var urgencyKeywords = []string{"urgent", "critical", "emergency", "immediate"}

func extractText(req models.InsightRequest) (models.FeatureSet, error) {
	if req.Text == nil || strings.TrimSpace(req.Text.Content) == "" {
		return models.FeatureSet{}, fmt.Errorf("text payload missing: %w", ErrInsufficientData)
	}

	content := req.Text.Content
	wordCount := len(strings.Fields(content))

	hint := models.SeverityMedium
	lowered := strings.ToLower(content)
	for _, kw := range urgencyKeywords {
		if strings.Contains(lowered, kw) {
			hint = models.SeverityHigh
			break
		}
	}

	return models.FeatureSet{
		MetricName:     "Text Analysis",
		CurrentValue:   float64(wordCount),
		ChangeAbsolute: float64(wordCount),
		SampleCount:    wordCount,
		SeverityHint:   hint,
	}, nil
}
