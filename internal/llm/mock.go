package llm

import (
	"context"
	"strings"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// MockClient produces deterministic insights without calling any backend.
// Used for tests and as a fallback of last resort.
type MockClient struct{}

// NewMockClient constructs the deterministic mock backend.
func NewMockClient() *MockClient { return &MockClient{} }

// Name identifies the provider in results and error reports.
func (c *MockClient) Name() string { return "mock" }

// Generate derives a canned candidate from the rule-based severity embedded in
// the prompt. Identical prompts always produce identical candidates.
func (c *MockClient) Generate(_ context.Context, prompt models.Prompt, _ Options) (Candidate, error) {
	severity := severityFromPrompt(prompt.Text)

	confidence := 0.8
	if severity.AtLeast(models.SeverityHigh) {
		confidence = 0.9
	}

	return Candidate{
		Summary: "Analysis indicates a notable trend change. The data shows movement that " +
			"warrants attention from stakeholders and should be validated against recent operational events.",
		Severity:   severity,
		Confidence: confidence,
		RecommendedActions: []string{
			"Review recent operational changes that may have influenced this metric",
			"Monitor closely over the next 24-48 hours for trend confirmation",
			"Alert relevant team members to investigate root causes",
		},
		KeyFindings: []string{
			"Metric deviation exceeds typical variance thresholds",
			"Pattern suggests potential systematic change rather than noise",
			"Timing correlates with recent business events",
		},
	}, nil
}

func severityFromPrompt(text string) models.Severity {
	marker := "RULE-BASED SEVERITY: "
	idx := strings.Index(text, marker)
	if idx < 0 {
		return models.SeverityMedium
	}
	rest := text[idx+len(marker):]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	return models.ParseSeverity(strings.TrimSpace(rest))
}
