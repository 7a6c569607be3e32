// Package repo implements the persistence collaborators of the insight
// engine: completed insights, their per-user history, and async task records.
package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pythiastack/pythia-insights/internal/models"
)

// InsightStore persists completed insights and serves history queries.
type InsightStore interface {
	Create(ctx context.Context, insight models.Insight) error
	History(ctx context.Context, q models.HistoryQuery) (models.HistoryPage, error)
	ListRecent(ctx context.Context, tenantID string, since time.Time) ([]models.Insight, error)
}

// MemoryInsightStore keeps insights in process memory. Suitable for tests and
// single-node deployments without a shared store.
type MemoryInsightStore struct {
	mu       sync.RWMutex
	insights []models.Insight
}

// NewMemoryInsightStore constructs an empty in-process insight store.
func NewMemoryInsightStore() *MemoryInsightStore {
	return &MemoryInsightStore{}
}

// Create appends the insight. Insights are immutable, so a copy of the struct
// value is all that is retained.
func (s *MemoryInsightStore) Create(_ context.Context, insight models.Insight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights = append(s.insights, insight)
	return nil
}

// History returns a page of condensed insights for one user, newest first.
func (s *MemoryInsightStore) History(_ context.Context, q models.HistoryQuery) (models.HistoryPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Insight, 0)
	for _, insight := range s.insights {
		if insight.UserID != q.UserID || insight.TenantID != q.TenantID {
			continue
		}
		if q.Severity != "" && insight.Generation.Severity != q.Severity {
			continue
		}
		matched = append(matched, insight)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := models.HistoryPage{TotalCount: len(matched), Items: []models.HistoryItem{}}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	for i := q.Offset; i < len(matched) && len(page.Items) < limit; i++ {
		page.Items = append(page.Items, historyItem(matched[i]))
	}
	return page, nil
}

// ListRecent returns full insights for one tenant created at or after since.
func (s *MemoryInsightStore) ListRecent(_ context.Context, tenantID string, since time.Time) ([]models.Insight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make([]models.Insight, 0)
	for _, insight := range s.insights {
		if insight.TenantID != tenantID {
			continue
		}
		if insight.CreatedAt.Before(since) {
			continue
		}
		recent = append(recent, insight)
	}
	return recent, nil
}

func historyItem(insight models.Insight) models.HistoryItem {
	summary := insight.Generation.Summary
	if len(summary) > 200 {
		summary = summary[:200]
	}
	return models.HistoryItem{
		InsightID:     insight.InsightID,
		CreatedAt:     insight.CreatedAt,
		MetricName:    insight.Features.MetricName,
		Severity:      insight.Generation.Severity,
		Summary:       summary,
		ChangePercent: insight.Features.ChangePercent,
	}
}
