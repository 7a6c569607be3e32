package engine

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// PromptBuilder renders generation prompts from features and assessments.
// Rendering is deterministic; all data-derived text is neutralized so it can
// never act as template or instruction syntax downstream.
type PromptBuilder struct {
	templates map[models.InputType]*template.Template
}

type promptContext struct {
	MetricName     string
	CurrentValue   string
	PreviousValue  string
	ChangeAbsolute string
	ChangePercent  string
	Mean           string
	StdDev         string
	ZScore         string
	SampleCount    int
	Severity       string
	IsAnomalous    bool
	Rationale      []string
	Emphasis       string
}

const metricsPromptText = `You are analyzing business metrics for an enterprise data platform.

METRIC: {{.MetricName}}
CURRENT VALUE: {{.CurrentValue}}
PREVIOUS VALUE: {{.PreviousValue}}
CHANGE: {{.ChangeAbsolute}} ({{.ChangePercent}}%)
RULE-BASED SEVERITY: {{.Severity}}

STATISTICAL ANOMALY ANALYSIS:
- Is Anomaly: {{.IsAnomalous}}
- Z-Score: {{.ZScore}} (mean {{.Mean}}, stddev {{.StdDev}}, {{.SampleCount}} samples)
{{- range .Rationale}}
- {{.}}
{{- end}}

{{.Emphasis}}
` + promptTask

const textPromptText = `You are analyzing a business text report for an enterprise data platform.

SOURCE: {{.MetricName}}
WORD COUNT: {{.CurrentValue}}
RULE-BASED SEVERITY: {{.Severity}}
{{- range .Rationale}}
- {{.}}
{{- end}}

{{.Emphasis}}
` + promptTask

const promptTask = `
TASK:
Generate a concise business insight explaining this change. Your response must be actionable and relevant to C-level stakeholders.

REQUIREMENTS:
1. Summary: 2-3 sentences explaining what happened and why it matters
2. Severity: critical | high | medium | low | none
3. Confidence: 0.0-1.0 based on data quality and pattern clarity
4. Recommended Actions: 2-4 specific, actionable steps
5. Key Findings: 2-4 bullet points highlighting important patterns

OUTPUT FORMAT: Return ONLY valid JSON with keys "summary", "severity",
"confidence", "recommended_actions", "key_findings". No markdown, no
explanations outside the JSON object.`

// NewPromptBuilder parses the built-in template set.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		templates: map[models.InputType]*template.Template{
			models.InputMetrics:    template.Must(template.New("metrics").Parse(metricsPromptText)),
			models.InputTimeSeries: template.Must(template.New("timeseries").Parse(metricsPromptText)),
			models.InputText:       template.Must(template.New("text").Parse(textPromptText)),
		},
	}
}

// Build renders the prompt for the given input type and severity tier.
func (b *PromptBuilder) Build(features models.FeatureSet, assessment models.AnomalyAssessment, inputType models.InputType) (models.Prompt, error) {
	tmpl, ok := b.templates[inputType]
	if !ok {
		return models.Prompt{}, fmt.Errorf("no prompt template for input type %q", inputType)
	}

	rationale := make([]string, 0, len(assessment.Rationale))
	for _, r := range assessment.Rationale {
		rationale = append(rationale, neutralize(r))
	}

	ctx := promptContext{
		MetricName:     neutralize(features.MetricName),
		CurrentValue:   formatValue(features.CurrentValue),
		PreviousValue:  formatValue(features.PreviousValue),
		ChangeAbsolute: formatValue(features.ChangeAbsolute),
		ChangePercent:  fmt.Sprintf("%+.2f", features.ChangePercent),
		Mean:           formatValue(features.Mean),
		StdDev:         formatValue(features.StdDev),
		ZScore:         formatValue(features.ZScore),
		SampleCount:    features.SampleCount,
		Severity:       string(assessment.Severity),
		IsAnomalous:    assessment.IsAnomalous,
		Rationale:      rationale,
		Emphasis:       emphasisFor(assessment.Severity),
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, ctx); err != nil {
		return models.Prompt{}, fmt.Errorf("render prompt: %w", err)
	}

	return models.Prompt{
		TemplateID: fmt.Sprintf("%s/%s", inputType, assessment.Severity),
		Text:       out.String(),
	}, nil
}

func emphasisFor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "EMPHASIS: This change is classified critical. Lead with impact and immediate mitigation."
	case models.SeverityHigh:
		return "EMPHASIS: This change is significant. Prioritize likely causes and near-term actions."
	case models.SeverityMedium:
		return "EMPHASIS: This change is notable. Balance explanation with monitoring guidance."
	default:
		return "EMPHASIS: This change is within normal bounds. Keep the summary brief and factual."
	}
}

var neutralizer = strings.NewReplacer(
	"{{", "",
	"}}", "",
	"{%", "",
	"%}", "",
	"`", "'",
	"\r", " ",
	"\n", " ",
)

// neutralize strips template control sequences and line breaks from
// data-derived text so substituted values stay opaque data.
func neutralize(s string) string {
	return strings.TrimSpace(neutralizer.Replace(s))
}

func formatValue(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
