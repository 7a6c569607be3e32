package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pythiastack/pythia-insights/internal/cache"
	"github.com/pythiastack/pythia-insights/internal/models"
)

// recentIndexSpan bounds how many ids the tenant-wide recency index is scanned for.
const recentIndexSpan = 512

// ValkeyInsightStore persists insights in a Valkey-compatible store: one JSON
// document per insight plus list indexes per user and per tenant.
type ValkeyInsightStore struct {
	provider cache.Provider
	ttl      time.Duration
}

// NewValkeyInsightStore constructs a store over the shared provider.
func NewValkeyInsightStore(provider cache.Provider, ttl time.Duration) *ValkeyInsightStore {
	return &ValkeyInsightStore{provider: provider, ttl: ttl}
}

func insightKey(id string) string { return "insight:" + id }

func userIndexKey(tenantID, userID string) string {
	return "insights:user:" + tenantID + ":" + userID
}

func tenantIndexKey(tenantID string) string {
	return "insights:tenant:" + tenantID
}

// Create stores the insight document and appends its id to both indexes.
func (s *ValkeyInsightStore) Create(ctx context.Context, insight models.Insight) error {
	doc, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("encode insight: %w", err)
	}
	if err := s.provider.Set(ctx, insightKey(insight.InsightID), doc, s.ttl); err != nil {
		return fmt.Errorf("store insight: %w", err)
	}
	if err := s.provider.RPush(ctx, userIndexKey(insight.TenantID, insight.UserID), []byte(insight.InsightID)); err != nil {
		return fmt.Errorf("index insight by user: %w", err)
	}
	if err := s.provider.RPush(ctx, tenantIndexKey(insight.TenantID), []byte(insight.InsightID)); err != nil {
		return fmt.Errorf("index insight by tenant: %w", err)
	}
	return nil
}

// History returns a page of condensed insights for one user, newest first.
// Expired documents whose index entries remain are skipped.
func (s *ValkeyInsightStore) History(ctx context.Context, q models.HistoryQuery) (models.HistoryPage, error) {
	ids, err := s.provider.LRange(ctx, userIndexKey(q.TenantID, q.UserID), 0, -1)
	if err != nil {
		return models.HistoryPage{}, fmt.Errorf("list user index: %w", err)
	}

	matched := make([]models.Insight, 0, len(ids))
	for _, id := range ids {
		insight, err := s.fetch(ctx, string(id))
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			return models.HistoryPage{}, err
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

// ListRecent returns full insights for one tenant created at or after since,
// scanning the newest recentIndexSpan index entries.
func (s *ValkeyInsightStore) ListRecent(ctx context.Context, tenantID string, since time.Time) ([]models.Insight, error) {
	ids, err := s.provider.LRange(ctx, tenantIndexKey(tenantID), -recentIndexSpan, -1)
	if err != nil {
		return nil, fmt.Errorf("list tenant index: %w", err)
	}

	recent := make([]models.Insight, 0, len(ids))
	for _, id := range ids {
		insight, err := s.fetch(ctx, string(id))
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				continue
			}
			return nil, err
		}
		if insight.CreatedAt.Before(since) {
			continue
		}
		recent = append(recent, insight)
	}
	return recent, nil
}

func (s *ValkeyInsightStore) fetch(ctx context.Context, id string) (models.Insight, error) {
	raw, err := s.provider.Get(ctx, insightKey(id))
	if err != nil {
		return models.Insight{}, err
	}
	var insight models.Insight
	if err := json.Unmarshal(raw, &insight); err != nil {
		return models.Insight{}, fmt.Errorf("decode insight %s: %w", id, err)
	}
	return insight, nil
}
