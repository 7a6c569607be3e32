// Package tasks decouples insight submission from execution: Submit enqueues
// a job description and returns a task id immediately; a worker pool dequeues
// and runs the orchestration, recording the outcome in a RecordStore observed
// via polling.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pythiastack/pythia-insights/internal/metrics"
	"github.com/pythiastack/pythia-insights/internal/models"
)

// ErrQueueFull signals that the job buffer has no capacity left.
var ErrQueueFull = errors.New("task queue is full")

// Orchestrator runs one full insight pipeline.
type Orchestrator interface {
	Process(ctx context.Context, req models.InsightRequest) (models.Insight, error)
}

type job struct {
	taskID  string
	request models.InsightRequest
}

// Queue is the task queue adapter: bounded job buffer plus worker pool.
type Queue struct {
	logger       *slog.Logger
	store        RecordStore
	orchestrator Orchestrator
	workers      int
	jobs         chan job
	wg           sync.WaitGroup
	workerCtx    context.Context
	workerStop   context.CancelFunc
	startOnce    sync.Once
	stopOnce     sync.Once
	now          func() time.Time
}

// NewQueue constructs a Queue with the given worker count and buffer size.
func NewQueue(logger *slog.Logger, store RecordStore, orchestrator Orchestrator, workers, queueSize int) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		logger:       logger,
		store:        store,
		orchestrator: orchestrator,
		workers:      workers,
		jobs:         make(chan job, queueSize),
		workerCtx:    ctx,
		workerStop:   cancel,
		now:          time.Now,
	}
}

// Start launches the worker pool.
func (q *Queue) Start() {
	q.startOnce.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.worker()
		}
	})
}

// Stop closes the queue and waits for in-flight jobs, up to ctx's deadline.
// Jobs already dequeued run to completion; a job is never aborted mid-flight.
func (q *Queue) Stop(ctx context.Context) error {
	var err error
	q.stopOnce.Do(func() {
		close(q.jobs)
		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		q.workerStop()
	})
	return err
}

// Submit registers a task record and enqueues the job, returning the task id
// without waiting for execution. A full buffer fails fast with ErrQueueFull.
func (q *Queue) Submit(ctx context.Context, req models.InsightRequest) (string, error) {
	taskID := uuid.NewString()
	record := models.TaskRecord{
		TaskID:      taskID,
		Status:      models.TaskSubmitted,
		SubmittedAt: q.now(),
		UpdatedAt:   q.now(),
	}
	if err := q.store.Create(ctx, record); err != nil {
		return "", fmt.Errorf("create task record: %w", err)
	}

	select {
	case q.jobs <- job{taskID: taskID, request: req}:
		return taskID, nil
	default:
		if err := q.store.UpdateStatus(ctx, taskID, models.TaskFailed, nil, ErrQueueFull.Error()); err != nil {
			q.logger.Warn("failed to mark overflowed task", slog.String("task_id", taskID), slog.Any("error", err))
		}
		return "", ErrQueueFull
	}
}

// Status returns the current record for a task id.
func (q *Queue) Status(ctx context.Context, taskID string) (models.TaskRecord, error) {
	return q.store.Get(ctx, taskID)
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.run(j)
	}
}

func (q *Queue) run(j job) {
	ctx := q.workerCtx
	if err := q.store.UpdateStatus(ctx, j.taskID, models.TaskRunning, nil, ""); err != nil {
		q.logger.Error("failed to mark task running", slog.String("task_id", j.taskID), slog.Any("error", err))
		return
	}
	metrics.ObserveTask(string(models.TaskRunning))

	insight, err := q.orchestrator.Process(ctx, j.request)
	if err != nil {
		// No requeue: the gateway already applied all retry policy.
		q.logger.Warn("async insight failed", slog.String("task_id", j.taskID), slog.Any("error", err))
		if updateErr := q.store.UpdateStatus(ctx, j.taskID, models.TaskFailed, nil, err.Error()); updateErr != nil {
			q.logger.Error("failed to record task failure", slog.String("task_id", j.taskID), slog.Any("error", updateErr))
		}
		metrics.ObserveTask(string(models.TaskFailed))
		return
	}

	if err := q.store.UpdateStatus(ctx, j.taskID, models.TaskSucceeded, &insight, ""); err != nil {
		q.logger.Error("failed to record task success", slog.String("task_id", j.taskID), slog.Any("error", err))
	}
	metrics.ObserveTask(string(models.TaskSucceeded))
}
