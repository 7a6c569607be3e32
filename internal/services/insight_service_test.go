package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pythiastack/pythia-insights/internal/models"
	"github.com/pythiastack/pythia-insights/internal/repo"
)

type pipelineStub struct {
	insight models.Insight
	err     error
	calls   int
}

func (p *pipelineStub) Process(_ context.Context, req models.InsightRequest) (models.Insight, error) {
	p.calls++
	if p.err != nil {
		return models.Insight{}, p.err
	}
	insight := p.insight
	insight.UserID = req.UserID
	return insight, nil
}

type queueStub struct {
	taskID    string
	submitted int
	record    models.TaskRecord
}

func (q *queueStub) Submit(_ context.Context, _ models.InsightRequest) (string, error) {
	q.submitted++
	return q.taskID, nil
}

func (q *queueStub) Status(_ context.Context, _ string) (models.TaskRecord, error) {
	return q.record, nil
}

func validRequest() models.InsightRequest {
	return models.InsightRequest{
		UserID:    "u1",
		TenantID:  "t1",
		InputType: models.InputMetrics,
		Metrics:   &models.MetricsData{MetricName: "revenue", Values: []float64{100, 150}},
	}
}

func TestGenerateDelegatesToPipeline(t *testing.T) {
	pipeline := &pipelineStub{insight: models.Insight{InsightID: "i1"}}
	service := NewInsightService(nil, pipeline, nil, nil, nil)

	insight, err := service.Generate(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("generate returned error: %v", err)
	}
	if insight.InsightID != "i1" || insight.UserID != "u1" {
		t.Fatalf("unexpected insight: %+v", insight)
	}
	if pipeline.calls != 1 {
		t.Fatalf("pipeline calls = %d, want 1", pipeline.calls)
	}
}

func TestGenerateRejectsInvalidRequests(t *testing.T) {
	pipeline := &pipelineStub{}
	service := NewInsightService(nil, pipeline, nil, nil, nil)

	cases := []struct {
		name string
		req  models.InsightRequest
	}{
		{"missing user", models.InsightRequest{InputType: models.InputMetrics, Metrics: &models.MetricsData{MetricName: "m", Values: []float64{1, 2}}}},
		{"missing payload", models.InsightRequest{UserID: "u", InputType: models.InputMetrics}},
		{"single value", models.InsightRequest{UserID: "u", InputType: models.InputMetrics, Metrics: &models.MetricsData{MetricName: "m", Values: []float64{1}}}},
		{"empty text", models.InsightRequest{UserID: "u", InputType: models.InputText, Text: &models.TextData{}}},
		{"unknown type", models.InsightRequest{UserID: "u", InputType: "audio"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.Generate(context.Background(), tc.req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
	if pipeline.calls != 0 {
		t.Fatalf("invalid requests must not reach the pipeline, got %d calls", pipeline.calls)
	}
}

func TestGeneratePropagatesPipelineError(t *testing.T) {
	wantErr := errors.New("generation exhausted")
	service := NewInsightService(nil, &pipelineStub{err: wantErr}, nil, nil, nil)

	if _, err := service.Generate(context.Background(), validRequest()); !errors.Is(err, wantErr) {
		t.Fatalf("expected pipeline error to propagate, got %v", err)
	}
}

func TestSubmitAsyncValidatesFirst(t *testing.T) {
	queue := &queueStub{taskID: "task-1"}
	service := NewInsightService(nil, &pipelineStub{}, queue, nil, nil)

	taskID, err := service.SubmitAsync(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	if taskID != "task-1" || queue.submitted != 1 {
		t.Fatalf("unexpected submission: id=%q submitted=%d", taskID, queue.submitted)
	}

	if _, err := service.SubmitAsync(context.Background(), models.InsightRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if queue.submitted != 1 {
		t.Fatalf("invalid request must not be enqueued")
	}
}

func TestHistoryRequiresUser(t *testing.T) {
	service := NewInsightService(nil, &pipelineStub{}, nil, repo.NewMemoryInsightStore(), nil)

	if _, err := service.History(context.Background(), models.HistoryQuery{TenantID: "t1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	page, err := service.History(context.Background(), models.HistoryQuery{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	if page.TotalCount != 0 {
		t.Fatalf("expected empty history, got %+v", page)
	}
}

func TestTaskStatusWithoutQueue(t *testing.T) {
	service := NewInsightService(nil, &pipelineStub{}, nil, nil, nil)
	if _, err := service.TaskStatus(context.Background(), "task-1"); err == nil {
		t.Fatalf("expected error when async execution is not configured")
	}
}

func TestValidateTimeSeries(t *testing.T) {
	req := models.InsightRequest{
		UserID:    "u1",
		InputType: models.InputTimeSeries,
		TimeSeries: &models.TimeSeriesData{
			SeriesName: "latency",
			Points: []models.TimeSeriesPoint{
				{Timestamp: time.Now().Add(-time.Hour), Value: 120},
				{Timestamp: time.Now(), Value: 180},
			},
		},
	}
	if err := ValidateRequest(req); err != nil {
		t.Fatalf("valid timeseries rejected: %v", err)
	}
	req.TimeSeries.Points = req.TimeSeries.Points[:1]
	if err := ValidateRequest(req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
