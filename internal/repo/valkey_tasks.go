package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pythiastack/pythia-insights/internal/cache"
	"github.com/pythiastack/pythia-insights/internal/models"
	"github.com/pythiastack/pythia-insights/internal/tasks"
)

// ValkeyRecordStore persists async task records as JSON documents in a
// Valkey-compatible store, so task status survives a restart and can be read
// by any replica. Transitions stay monotonic regardless of caller: every
// update re-checks the stored record and lands via compare-and-swap.
type ValkeyRecordStore struct {
	provider cache.Provider
	ttl      time.Duration
}

// NewValkeyRecordStore constructs a record store over the shared provider.
func NewValkeyRecordStore(provider cache.Provider, ttl time.Duration) *ValkeyRecordStore {
	return &ValkeyRecordStore{provider: provider, ttl: ttl}
}

func taskKey(taskID string) string { return "task:" + taskID }

// Create registers a new task record.
func (s *ValkeyRecordStore) Create(ctx context.Context, record models.TaskRecord) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode task record: %w", err)
	}
	ok, err := s.provider.SetNX(ctx, taskKey(record.TaskID), doc, s.ttl)
	if err != nil {
		return fmt.Errorf("store task record: %w", err)
	}
	if !ok {
		return errors.New("task id already exists")
	}
	return nil
}

// Get returns the current record for a task id.
func (s *ValkeyRecordStore) Get(ctx context.Context, taskID string) (models.TaskRecord, error) {
	raw, err := s.provider.Get(ctx, taskKey(taskID))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.TaskRecord{}, tasks.ErrTaskNotFound
		}
		return models.TaskRecord{}, fmt.Errorf("load task record: %w", err)
	}
	var record models.TaskRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return models.TaskRecord{}, fmt.Errorf("decode task record %s: %w", taskID, err)
	}
	return record, nil
}

// updateAttempts bounds the optimistic-concurrency loop in UpdateStatus.
const updateAttempts = 3

// UpdateStatus advances a record's status, rejecting regressions and updates
// to terminal records. The monotonicity check and the write form one
// compare-and-swap: losing a race to another writer re-reads and re-checks.
func (s *ValkeyRecordStore) UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus, result *models.Insight, errMsg string) error {
	for attempt := 0; attempt < updateAttempts; attempt++ {
		raw, err := s.provider.Get(ctx, taskKey(taskID))
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				return tasks.ErrTaskNotFound
			}
			return fmt.Errorf("load task record: %w", err)
		}
		var record models.TaskRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("decode task record %s: %w", taskID, err)
		}
		if record.Status.Terminal() || status.Rank() <= record.Status.Rank() {
			return tasks.ErrStatusRegression
		}

		record.Status = status
		record.Result = result
		record.Error = errMsg
		record.UpdatedAt = time.Now().UTC()

		doc, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode task record: %w", err)
		}
		swapped, err := s.provider.SetIfMatch(ctx, taskKey(taskID), raw, doc, s.ttl)
		if err != nil {
			return fmt.Errorf("store task record: %w", err)
		}
		if swapped {
			return nil
		}
	}
	return fmt.Errorf("task record %s kept changing during update", taskID)
}
