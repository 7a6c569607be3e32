package repo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pythiastack/pythia-insights/internal/models"
)

func seedInsight(id, userID, tenantID string, severity models.Severity, createdAt time.Time) models.Insight {
	return models.Insight{
		InsightID: id,
		UserID:    userID,
		TenantID:  tenantID,
		InputType: models.InputMetrics,
		Features:  models.FeatureSet{MetricName: "error_rate", ChangePercent: 47.06},
		Generation: models.GenerationResult{
			Summary:  "Error rate increased sharply for " + id,
			Severity: severity,
		},
		CreatedAt: createdAt,
	}
}

func TestMemoryStoreHistoryNewestFirst(t *testing.T) {
	store := NewMemoryInsightStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, seedInsight(id, "u1", "t1", models.SeverityHigh, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create returned error: %v", err)
		}
	}
	// Different user and tenant records must never leak into the page.
	_ = store.Create(ctx, seedInsight("other-user", "u2", "t1", models.SeverityHigh, base))
	_ = store.Create(ctx, seedInsight("other-tenant", "u1", "t2", models.SeverityHigh, base))

	page, err := store.History(ctx, models.HistoryQuery{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	if page.TotalCount != 3 {
		t.Fatalf("expected 3 matches, got %d", page.TotalCount)
	}
	got := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		got = append(got, item.InsightID)
	}
	if strings.Join(got, ",") != "c,b,a" {
		t.Fatalf("expected newest-first order c,b,a, got %v", got)
	}
}

func TestMemoryStoreHistorySeverityFilterAndPaging(t *testing.T) {
	store := NewMemoryInsightStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	severities := []models.Severity{
		models.SeverityHigh, models.SeverityLow, models.SeverityHigh,
		models.SeverityHigh, models.SeverityCritical,
	}
	for i, sev := range severities {
		id := string(rune('a' + i))
		if err := store.Create(ctx, seedInsight(id, "u1", "t1", sev, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create returned error: %v", err)
		}
	}

	page, err := store.History(ctx, models.HistoryQuery{
		UserID: "u1", TenantID: "t1",
		Severity: models.SeverityHigh,
		Limit:    2,
	})
	if err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	if page.TotalCount != 3 {
		t.Fatalf("expected 3 high matches, got %d", page.TotalCount)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page.Items))
	}
	if page.Items[0].InsightID != "d" || page.Items[1].InsightID != "c" {
		t.Fatalf("unexpected page contents: %+v", page.Items)
	}

	next, err := store.History(ctx, models.HistoryQuery{
		UserID: "u1", TenantID: "t1",
		Severity: models.SeverityHigh,
		Limit:    2, Offset: 2,
	})
	if err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].InsightID != "a" {
		t.Fatalf("unexpected second page: %+v", next.Items)
	}
}

func TestMemoryStoreHistoryTruncatesSummary(t *testing.T) {
	store := NewMemoryInsightStore()
	ctx := context.Background()

	insight := seedInsight("long", "u1", "t1", models.SeverityMedium, time.Now())
	insight.Generation.Summary = strings.Repeat("x", 300)
	if err := store.Create(ctx, insight); err != nil {
		t.Fatalf("create returned error: %v", err)
	}

	page, err := store.History(ctx, models.HistoryQuery{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	if len(page.Items) != 1 || len(page.Items[0].Summary) != 200 {
		t.Fatalf("expected summary truncated to 200 chars, got %d", len(page.Items[0].Summary))
	}
}

func TestMemoryStoreListRecent(t *testing.T) {
	store := NewMemoryInsightStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_ = store.Create(ctx, seedInsight("old", "u1", "t1", models.SeverityLow, base.Add(-2*time.Hour)))
	_ = store.Create(ctx, seedInsight("fresh", "u1", "t1", models.SeverityHigh, base))
	_ = store.Create(ctx, seedInsight("foreign", "u1", "t2", models.SeverityHigh, base))

	recent, err := store.ListRecent(ctx, "t1", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("list recent returned error: %v", err)
	}
	if len(recent) != 1 || recent[0].InsightID != "fresh" {
		t.Fatalf("expected only the fresh t1 insight, got %+v", recent)
	}
}
