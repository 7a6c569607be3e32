package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// ErrTaskNotFound signals an unknown task id.
var ErrTaskNotFound = errors.New("task not found")

// ErrStatusRegression signals an update that would move a task backwards in
// its lifecycle. Records only ever advance.
var ErrStatusRegression = errors.New("task status cannot regress")

// RecordStore is the task-status collaborator. Implementations must apply
// updates atomically with respect to concurrent readers and writers.
type RecordStore interface {
	Create(ctx context.Context, record models.TaskRecord) error
	Get(ctx context.Context, taskID string) (models.TaskRecord, error)
	UpdateStatus(ctx context.Context, taskID string, status models.TaskStatus, result *models.Insight, errMsg string) error
}

// MemoryRecordStore is an in-process RecordStore guarding records with a mutex.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]models.TaskRecord
	now     func() time.Time
}

// NewMemoryRecordStore constructs an empty in-process record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]models.TaskRecord),
		now:     time.Now,
	}
}

// Create registers a new task record.
func (s *MemoryRecordStore) Create(_ context.Context, record models.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.TaskID]; exists {
		return errors.New("task id already exists")
	}
	s.records[record.TaskID] = record
	return nil
}

// Get returns the current record for a task id.
func (s *MemoryRecordStore) Get(_ context.Context, taskID string) (models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[taskID]
	if !ok {
		return models.TaskRecord{}, ErrTaskNotFound
	}
	return record, nil
}

// UpdateStatus advances a record's status. Updates that would regress the
// lifecycle, or touch a terminal record, are rejected.
func (s *MemoryRecordStore) UpdateStatus(_ context.Context, taskID string, status models.TaskStatus, result *models.Insight, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	if record.Status.Terminal() || status.Rank() <= record.Status.Rank() {
		return ErrStatusRegression
	}

	record.Status = status
	record.Result = result
	record.Error = errMsg
	record.UpdatedAt = s.now()
	s.records[taskID] = record
	return nil
}
