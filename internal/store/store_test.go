package store

import (
	"context"
	"math"
	"testing"
	"time"

	"eventforge/internal/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newsCandidate(title string) Candidate {
	return Candidate{
		Record: core.EventRecord{
			Title:       title,
			Description: "A new processor line sends suppliers scrambling",
			Options: []core.EventOption{
				{Text: "invest early", Effects: map[string]float64{"cash": -50}},
				{Text: "wait and see", Effects: map[string]float64{"mood": 5}},
			},
			MinRank: core.RankSilver,
			MaxRank: core.RankPlatinum,
		},
		Source:    core.SourceInfo{Type: core.SourceNews, URL: "https://example.com/a", Title: "source headline"},
		Quality:   0.8,
		Validated: true,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, newsCandidate("Chip boom"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	event, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if event == nil {
		t.Fatal("Expected the saved event back, got nil")
	}
	if event.Title != "Chip boom" || event.SourceType != core.SourceNews {
		t.Errorf("Round trip lost fields: %+v", event)
	}
	if len(event.Options) != 2 || event.Options[0].Effects["cash"] != -50 {
		t.Errorf("Options did not survive the round trip: %+v", event.Options)
	}
	if event.BaseWeight != 1.0 || event.UsageCount != 0 || event.LastUsedAt != nil {
		t.Errorf("Unexpected defaults: %+v", event)
	}
	if event.QualityScore != 0.8 || !event.Validated {
		t.Errorf("Quality metadata lost: %+v", event)
	}
}

func TestGetMissingEvent(t *testing.T) {
	s := newTestStore(t)

	event, err := s.Get(context.Background(), "evt-news-00000000000000-deadbeef")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if event != nil {
		t.Errorf("Expected nil for a missing id, got %+v", event)
	}
}

func TestEventIDShape(t *testing.T) {
	when := time.Date(2025, 6, 1, 3, 4, 5, 0, time.UTC)
	id := newEventID(core.SourceCreative, when)

	want := "evt-creative-20250601030405-"
	if len(id) != len(want)+8 || id[:len(want)] != want {
		t.Errorf("Unexpected id shape %q", id)
	}

	if id == newEventID(core.SourceCreative, when) {
		t.Error("Two ids from the same instant must differ")
	}
}

func TestSaveBatchBestEffort(t *testing.T) {
	s := newTestStore(t)

	poisoned := newsCandidate("Bad apple")
	poisoned.Record.Options[0].Effects = map[string]float64{"cash": math.NaN()}

	ids := s.SaveBatch(context.Background(), []Candidate{
		newsCandidate("First"),
		poisoned,
		newsCandidate("Third"),
	})
	if len(ids) != 2 {
		t.Fatalf("Expected 2 persisted ids, got %d", len(ids))
	}

	count, err := s.CountAll(context.Background())
	if err != nil {
		t.Fatalf("CountAll failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 rows persisted, got %d", count)
	}
}

func TestSelectPoolPredicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	news := newsCandidate("News one") // silver..platinum
	creative := newsCandidate("Made up")
	creative.Source = core.SourceInfo{Type: core.SourceCreative}
	broad := newsCandidate("For all")
	broad.Record.MinRank = core.RankBronze
	broad.Record.MaxRank = core.RankDiamond

	for _, c := range []Candidate{news, creative, broad} {
		if _, err := s.Save(ctx, c); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	since := time.Now().UTC().Add(-time.Hour)

	pool, err := s.SelectPool(ctx, core.SourceNews, "", since)
	if err != nil {
		t.Fatalf("SelectPool failed: %v", err)
	}
	if len(pool) != 2 {
		t.Errorf("Expected 2 news events without a rank filter, got %d", len(pool))
	}

	// Bronze falls outside the silver..platinum window but inside the broad one.
	pool, err = s.SelectPool(ctx, core.SourceNews, core.RankBronze, since)
	if err != nil {
		t.Fatalf("SelectPool failed: %v", err)
	}
	if len(pool) != 1 || pool[0].Title != "For all" {
		t.Errorf("Expected only the broad-window event for bronze, got %+v", pool)
	}

	pool, err = s.SelectPool(ctx, core.SourceNews, core.RankGold, since)
	if err != nil {
		t.Fatalf("SelectPool failed: %v", err)
	}
	if len(pool) != 2 {
		t.Errorf("Expected both news events for gold, got %d", len(pool))
	}

	// A since in the future excludes everything.
	pool, err = s.SelectPool(ctx, core.SourceNews, "", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("SelectPool failed: %v", err)
	}
	if len(pool) != 0 {
		t.Errorf("Expected empty pool past the recency window, got %d", len(pool))
	}

	pool, err = s.SelectPool(ctx, core.SourceCreative, "", since)
	if err != nil {
		t.Fatalf("SelectPool failed: %v", err)
	}
	if len(pool) != 1 || pool[0].SourceType != core.SourceCreative {
		t.Errorf("Expected the creative pool isolated, got %+v", pool)
	}
}

func TestSelectPoolOrdersByBaseWeight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	light, _ := s.Save(ctx, newsCandidate("Light"))
	heavy, _ := s.Save(ctx, newsCandidate("Heavy"))
	if _, err := s.db.Exec("UPDATE events SET base_weight = 5.0 WHERE id = ?", heavy); err != nil {
		t.Fatalf("Failed to adjust weight: %v", err)
	}

	pool, err := s.SelectPool(ctx, core.SourceNews, "", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SelectPool failed: %v", err)
	}
	if len(pool) != 2 || pool[0].ID != heavy || pool[1].ID != light {
		t.Errorf("Expected base_weight DESC order, got %+v", pool)
	}
}

func TestMarkUsed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Save(ctx, newsCandidate("Chip boom"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := s.MarkUsed(ctx, id); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}
	if err := s.MarkUsed(ctx, id); err != nil {
		t.Fatalf("Second MarkUsed failed: %v", err)
	}

	event, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if event.UsageCount != 2 {
		t.Errorf("Expected usage count 2, got %d", event.UsageCount)
	}
	if event.LastUsedAt == nil {
		t.Error("Expected last_used_at set")
	}

	var logged int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM usage_log WHERE event_id = ?", id).Scan(&logged); err != nil {
		t.Fatalf("Failed to count usage log: %v", err)
	}
	if logged != 2 {
		t.Errorf("Expected 2 usage log rows, got %d", logged)
	}

	if err := s.MarkUsed(ctx, "evt-news-00000000000000-deadbeef"); err == nil {
		t.Error("Expected error for unknown id")
	}
}

func TestCleanupDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	s.now = func() time.Time { return old }
	oldID, err := s.Save(ctx, newsCandidate("Stale"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.MarkUsed(ctx, oldID); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}

	s.now = time.Now
	freshID, err := s.Save(ctx, newsCandidate("Fresh"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	deleted, err := s.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 event deleted, got %d", deleted)
	}

	if event, _ := s.Get(ctx, oldID); event != nil {
		t.Error("Expected the stale event gone")
	}
	if event, _ := s.Get(ctx, freshID); event == nil {
		t.Error("Expected the fresh event kept")
	}

	deletedUsage, err := s.DeleteUsageOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("DeleteUsageOlderThan failed: %v", err)
	}
	if deletedUsage != 1 {
		t.Errorf("Expected 1 usage row deleted, got %d", deletedUsage)
	}
}

func TestCountByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	creative := newsCandidate("Made up")
	creative.Source = core.SourceInfo{Type: core.SourceCreative}

	for _, c := range []Candidate{newsCandidate("a"), newsCandidate("b"), creative} {
		if _, err := s.Save(ctx, c); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	counts, err := s.CountByType(ctx)
	if err != nil {
		t.Fatalf("CountByType failed: %v", err)
	}
	if counts[core.SourceNews] != 2 || counts[core.SourceCreative] != 1 {
		t.Errorf("Unexpected counts %+v", counts)
	}
}
