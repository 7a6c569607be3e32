// Package services hosts the application facade between the HTTP handlers and
// the pipeline, queue, and stores. It owns request validation, latency
// tracking, and metrics observation so the transport layer stays thin.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pythiastack/pythia-insights/internal/engine"
	"github.com/pythiastack/pythia-insights/internal/metrics"
	"github.com/pythiastack/pythia-insights/internal/models"
	"github.com/pythiastack/pythia-insights/internal/monitor"
	"github.com/pythiastack/pythia-insights/internal/repo"
	"github.com/pythiastack/pythia-insights/internal/utils"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid insight request")

// InsightPipeline runs one request through the synchronous pipeline.
type InsightPipeline interface {
	Process(ctx context.Context, req models.InsightRequest) (models.Insight, error)
}

// TaskSubmitter is the async execution collaborator.
type TaskSubmitter interface {
	Submit(ctx context.Context, req models.InsightRequest) (string, error)
	Status(ctx context.Context, taskID string) (models.TaskRecord, error)
}

// InsightService is the application facade used by the HTTP layer.
type InsightService struct {
	logger    *slog.Logger
	pipeline  InsightPipeline
	queue     TaskSubmitter
	store     repo.InsightStore
	drift     *monitor.Monitor
	latencies *utils.LatencyTracker
}

// NewInsightService constructs the service facade. The queue, store, and drift
// monitor are optional; operations needing an absent collaborator fail with a
// descriptive error instead of panicking.
func NewInsightService(logger *slog.Logger, pipeline InsightPipeline, queue TaskSubmitter, store repo.InsightStore, drift *monitor.Monitor) *InsightService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightService{
		logger:    logger,
		pipeline:  pipeline,
		queue:     queue,
		store:     store,
		drift:     drift,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Generate runs one request through the pipeline synchronously.
func (s *InsightService) Generate(ctx context.Context, req models.InsightRequest) (models.Insight, error) {
	if err := ValidateRequest(req); err != nil {
		return models.Insight{}, err
	}

	start := time.Now()
	insight, err := s.pipeline.Process(ctx, req)
	duration := time.Since(start)
	if err != nil {
		if _, denied := engine.IsRateLimited(err); denied {
			metrics.ObserveInsight(duration, metrics.OutcomeDenied)
			return models.Insight{}, err
		}
		metrics.ObserveInsight(duration, metrics.OutcomeError)
		s.logger.Error("insight pipeline failed",
			slog.String("tenant_id", req.TenantID),
			slog.Any("error", err))
		return models.Insight{}, err
	}

	s.latencies.Observe(duration)
	metrics.ObserveInsight(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("insight latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	return insight, nil
}

// SubmitAsync enqueues a request for background execution and returns its task id.
func (s *InsightService) SubmitAsync(ctx context.Context, req models.InsightRequest) (string, error) {
	if s.queue == nil {
		return "", errors.New("async execution not configured")
	}
	if err := ValidateRequest(req); err != nil {
		return "", err
	}
	taskID, err := s.queue.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	metrics.ObserveTask(string(models.TaskSubmitted))
	return taskID, nil
}

// TaskStatus returns the current record for an async task.
func (s *InsightService) TaskStatus(ctx context.Context, taskID string) (models.TaskRecord, error) {
	if s.queue == nil {
		return models.TaskRecord{}, errors.New("async execution not configured")
	}
	return s.queue.Status(ctx, taskID)
}

// History returns a page of a user's past insights.
func (s *InsightService) History(ctx context.Context, q models.HistoryQuery) (models.HistoryPage, error) {
	if s.store == nil {
		return models.HistoryPage{}, errors.New("insight store not configured")
	}
	if q.UserID == "" {
		return models.HistoryPage{}, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	return s.store.History(ctx, q)
}

// DriftReport returns the generation drift report for one tenant.
func (s *InsightService) DriftReport(ctx context.Context, tenantID string) (monitor.DriftReport, error) {
	if s.drift == nil {
		return monitor.DriftReport{}, errors.New("drift monitor not configured")
	}
	return s.drift.Report(ctx, tenantID)
}

// LatencyP95 returns the current p95 pipeline latency.
func (s *InsightService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// ValidateRequest checks that the request names a user and carries the payload
// matching its input type.
func ValidateRequest(req models.InsightRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	switch req.InputType {
	case models.InputMetrics:
		if req.Metrics == nil || req.Metrics.MetricName == "" {
			return fmt.Errorf("%w: metrics payload with metric_name is required", ErrInvalidRequest)
		}
		if len(req.Metrics.Values) < 2 {
			return fmt.Errorf("%w: metrics payload needs at least 2 values", ErrInvalidRequest)
		}
	case models.InputText:
		if req.Text == nil || req.Text.Content == "" {
			return fmt.Errorf("%w: text payload with content is required", ErrInvalidRequest)
		}
	case models.InputTimeSeries:
		if req.TimeSeries == nil || len(req.TimeSeries.Points) < 2 {
			return fmt.Errorf("%w: timeseries payload needs at least 2 data points", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown input_type %q", ErrInvalidRequest, req.InputType)
	}
	return nil
}
