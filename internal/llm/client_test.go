package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pythiastack/pythia-insights/internal/models"
)

func TestParseCandidateValid(t *testing.T) {
	raw := `{
		"summary": "Revenue jumped sharply.",
		"severity": "high",
		"confidence": 0.85,
		"recommended_actions": ["check billing", "notify finance"],
		"key_findings": ["47% increase", "above seasonal range"]
	}`
	candidate, err := parseCandidate("test", []byte(raw))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if candidate.Severity != models.SeverityHigh || candidate.Confidence != 0.85 {
		t.Fatalf("unexpected candidate: %+v", candidate)
	}
	if len(candidate.RecommendedActions) != 2 || len(candidate.KeyFindings) != 2 {
		t.Fatalf("sequences not carried: %+v", candidate)
	}
}

func TestParseCandidateInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "here is your insight!"},
		{name: "empty summary", raw: `{"summary":"","confidence":0.5,"recommended_actions":["a"],"key_findings":["f"]}`},
		{name: "missing confidence", raw: `{"summary":"s","recommended_actions":["a"],"key_findings":["f"]}`},
		{name: "confidence above one", raw: `{"summary":"s","confidence":1.3,"recommended_actions":["a"],"key_findings":["f"]}`},
		{name: "negative confidence", raw: `{"summary":"s","confidence":-0.1,"recommended_actions":["a"],"key_findings":["f"]}`},
		{name: "no actions", raw: `{"summary":"s","confidence":0.5,"recommended_actions":[],"key_findings":["f"]}`},
		{name: "no findings", raw: `{"summary":"s","confidence":0.5,"recommended_actions":["a"]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseCandidate("test", []byte(tc.raw))
			var genErr *GenerationError
			if !errors.As(err, &genErr) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
			if genErr.Kind != KindInvalidResponse {
				t.Fatalf("expected invalid_response kind, got %s", genErr.Kind)
			}
		})
	}
}

func TestParseCandidateUnknownSeverity(t *testing.T) {
	raw := `{"summary":"s","severity":"catastrophic","confidence":0.5,"recommended_actions":["a"],"key_findings":["f"]}`
	candidate, err := parseCandidate("test", []byte(raw))
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if candidate.Severity != models.SeverityNone {
		t.Fatalf("unknown severity should normalise to none, got %s", candidate.Severity)
	}
}

func TestKindOf(t *testing.T) {
	if kind := KindOf(&GenerationError{Kind: KindRateLimited}); kind != KindRateLimited {
		t.Fatalf("expected rate_limited, got %s", kind)
	}
	if kind := KindOf(context.DeadlineExceeded); kind != KindTimeout {
		t.Fatalf("expected timeout for deadline, got %s", kind)
	}
	if kind := KindOf(errors.New("boom")); kind != KindUnavailable {
		t.Fatalf("expected unavailable default, got %s", kind)
	}
}

func TestMockClientDeterministic(t *testing.T) {
	prompt := models.Prompt{Text: "METRIC: revenue\nRULE-BASED SEVERITY: critical\nrest"}
	mock := NewMockClient()

	first, err := mock.Generate(context.Background(), prompt, Options{})
	if err != nil {
		t.Fatalf("mock returned error: %v", err)
	}
	second, err := mock.Generate(context.Background(), prompt, Options{})
	if err != nil {
		t.Fatalf("mock returned error: %v", err)
	}
	if first.Summary != second.Summary || first.Confidence != second.Confidence {
		t.Fatalf("mock not deterministic: %+v vs %+v", first, second)
	}
	if first.Severity != models.SeverityCritical {
		t.Fatalf("expected severity echoed from prompt, got %s", first.Severity)
	}
	if len(first.RecommendedActions) == 0 || len(first.KeyFindings) == 0 {
		t.Fatalf("mock must return non-empty sequences")
	}
	if first.Confidence < 0 || first.Confidence > 1 {
		t.Fatalf("confidence outside [0,1]: %f", first.Confidence)
	}
}

func TestMockClientSeverityDefault(t *testing.T) {
	candidate, err := NewMockClient().Generate(context.Background(), models.Prompt{Text: "no marker here"}, Options{})
	if err != nil {
		t.Fatalf("mock returned error: %v", err)
	}
	if candidate.Severity != models.SeverityMedium {
		t.Fatalf("expected medium default, got %s", candidate.Severity)
	}
	if !strings.Contains(candidate.Summary, "trend change") {
		t.Fatalf("unexpected summary: %q", candidate.Summary)
	}
}
