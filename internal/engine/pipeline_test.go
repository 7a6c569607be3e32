package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pythiastack/pythia-insights/internal/llm"
	"github.com/pythiastack/pythia-insights/internal/models"
	"github.com/pythiastack/pythia-insights/internal/ratelimit"
	"github.com/pythiastack/pythia-insights/internal/repo"
)

type stubAdmitter struct {
	decision ratelimit.Decision
	err      error
	calls    int
}

func (a *stubAdmitter) Admit(_ context.Context, _ string) (ratelimit.Decision, error) {
	a.calls++
	return a.decision, a.err
}

type failingGenerator struct {
	err error
}

func (g *failingGenerator) Generate(_ context.Context, _ models.Prompt) (models.GenerationResult, error) {
	return models.GenerationResult{}, g.err
}

func mockGateway(t *testing.T) *llm.Gateway {
	t.Helper()
	return llm.NewGateway(nil, []llm.Client{llm.NewMockClient()}, llm.GatewayConfig{MaxRetries: 1})
}

func metricsRequest() models.InsightRequest {
	return models.InsightRequest{
		UserID:    "u1",
		TenantID:  "t1",
		InputType: models.InputMetrics,
		Metrics: &models.MetricsData{
			MetricName: "monthly_revenue",
			Values:     []float64{10200, 15000},
		},
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	store := repo.NewMemoryInsightStore()
	admitter := &stubAdmitter{decision: ratelimit.Decision{Allowed: true}}
	pipeline := NewPipeline(nil, admitter, nil, nil, nil, mockGateway(t), store)

	insight, err := pipeline.Process(context.Background(), metricsRequest())
	if err != nil {
		t.Fatalf("process returned error: %v", err)
	}

	if insight.InsightID == "" {
		t.Fatalf("insight must carry an id")
	}
	if insight.Features.ChangePercent != 47.06 {
		t.Fatalf("change percent = %.2f, want 47.06", insight.Features.ChangePercent)
	}
	if insight.Assessment.Severity != models.SeverityHigh {
		t.Fatalf("rule severity = %s, want high", insight.Assessment.Severity)
	}
	if insight.Generation.Severity != models.SeverityHigh {
		t.Fatalf("generated severity = %s, want high", insight.Generation.Severity)
	}
	if insight.Generation.Summary == "" || len(insight.Generation.RecommendedActions) == 0 {
		t.Fatalf("generation output incomplete: %+v", insight.Generation)
	}
	if insight.Generation.Confidence < 0 || insight.Generation.Confidence > 1 {
		t.Fatalf("confidence out of range: %f", insight.Generation.Confidence)
	}
	if insight.Generation.ProviderUsed != "mock" || insight.Generation.FallbackUsed {
		t.Fatalf("unexpected provider metadata: %+v", insight.Generation)
	}
	if admitter.calls != 1 {
		t.Fatalf("admission must run exactly once, got %d", admitter.calls)
	}

	page, err := store.History(context.Background(), models.HistoryQuery{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	if page.TotalCount != 1 {
		t.Fatalf("insight must be persisted, got %d records", page.TotalCount)
	}
}

func TestPipelineUrgentTextEndToEnd(t *testing.T) {
	pipeline := NewPipeline(nil, nil, nil, nil, nil, mockGateway(t), nil)

	req := models.InsightRequest{
		UserID:    "u1",
		TenantID:  "t1",
		InputType: models.InputText,
		Text:      &models.TextData{Content: "URGENT: payment pipeline backlog growing, orders stuck"},
	}
	insight, err := pipeline.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process returned error: %v", err)
	}

	if insight.Assessment.Severity != models.SeverityHigh {
		t.Fatalf("rule severity = %s, want high", insight.Assessment.Severity)
	}
	if insight.Generation.Severity != models.SeverityHigh {
		t.Fatalf("generated severity = %s, want high", insight.Generation.Severity)
	}
}

func TestPipelineDeniedBeforeExtraction(t *testing.T) {
	admitter := &stubAdmitter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 30 * time.Second}}
	pipeline := NewPipeline(nil, admitter, nil, nil, nil, mockGateway(t), nil)

	_, err := pipeline.Process(context.Background(), metricsRequest())
	if err == nil {
		t.Fatalf("expected admission denial")
	}

	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageAdmission {
		t.Fatalf("expected admission stage error, got %v", err)
	}
	retryAfter, ok := IsRateLimited(err)
	if !ok || retryAfter != 30*time.Second {
		t.Fatalf("expected rate-limited error with 30s retry, got %v (%v)", retryAfter, err)
	}
}

func TestPipelineExtractionStageError(t *testing.T) {
	pipeline := NewPipeline(nil, nil, nil, nil, nil, mockGateway(t), nil)

	req := metricsRequest()
	req.Metrics.Values = []float64{42}
	_, err := pipeline.Process(context.Background(), req)

	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageExtraction {
		t.Fatalf("expected extraction stage error, got %v", err)
	}
}

func TestPipelineGenerationStageError(t *testing.T) {
	exhausted := &llm.ExhaustedError{Failures: []llm.ClientFailure{{Provider: "gemini", Err: errors.New("boom")}}}
	pipeline := NewPipeline(nil, nil, nil, nil, nil, &failingGenerator{err: exhausted}, nil)

	_, err := pipeline.Process(context.Background(), metricsRequest())

	var stage *StageError
	if !errors.As(err, &stage) || stage.Stage != StageGeneration {
		t.Fatalf("expected generation stage error, got %v", err)
	}
	var gotExhausted *llm.ExhaustedError
	if !errors.As(err, &gotExhausted) {
		t.Fatalf("exhaustion detail must survive wrapping, got %v", err)
	}
}

func TestPipelinePersistenceFailureIsNonFatal(t *testing.T) {
	pipeline := NewPipeline(nil, nil, nil, nil, nil, mockGateway(t), failingStore{})

	insight, err := pipeline.Process(context.Background(), metricsRequest())
	if err != nil {
		t.Fatalf("persistence failure must not fail the request, got %v", err)
	}
	if insight.InsightID == "" {
		t.Fatalf("insight must still be assembled")
	}
}

type failingStore struct{}

func (failingStore) Create(context.Context, models.Insight) error {
	return errors.New("store unavailable")
}

func (failingStore) History(context.Context, models.HistoryQuery) (models.HistoryPage, error) {
	return models.HistoryPage{}, errors.New("store unavailable")
}

func (failingStore) ListRecent(context.Context, string, time.Time) ([]models.Insight, error) {
	return nil, errors.New("store unavailable")
}
