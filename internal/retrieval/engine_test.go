package retrieval

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"eventforge/internal/config"
	"eventforge/internal/core"
)

// fakePools serves canned pool contents and records the rank filter it saw.
type fakePools struct {
	pools    map[core.SourceType][]core.StoredEvent
	lastRank core.Rank
}

func (f *fakePools) SelectPool(_ context.Context, sourceType core.SourceType, rank core.Rank, _ time.Time) ([]core.StoredEvent, error) {
	f.lastRank = rank
	return f.pools[sourceType], nil
}

func testRetrievalConfig() config.Retrieval {
	return config.Retrieval{
		PoolWeights: map[string]float64{"fixed": 1.0, "news": 1.0, "creative": 1.0},
		Decay: []config.DecayStep{
			{MaxAgeDays: 1, Multiplier: 1.5},
			{MaxAgeDays: 3, Multiplier: 1.0},
			{MaxAgeDays: 7, Multiplier: 0.6},
		},
		MaxAge: 168 * time.Hour,
	}
}

func newTestEngine(pools map[core.SourceType][]core.StoredEvent) (*Engine, *fakePools) {
	store := &fakePools{pools: pools}
	e := New(store, testRetrievalConfig())
	e.now = func() time.Time { return time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC) }
	e.randFloat = func() float64 { return 0.5 }
	return e, store
}

func eventAged(id string, sourceType core.SourceType, age time.Duration, weight float64) core.StoredEvent {
	created := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC).Add(-age)
	return core.StoredEvent{ID: id, SourceType: sourceType, BaseWeight: weight, CreatedAt: created}
}

func TestDrawNoContent(t *testing.T) {
	e, _ := newTestEngine(nil)

	event, err := e.Draw(context.Background(), "")
	if err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if event != nil {
		t.Errorf("Expected (nil, nil) on an empty store, got %+v", event)
	}
}

func TestDrawSingleNonEmptyPool(t *testing.T) {
	// Only creative has content; equal configured weights. The pool lottery
	// must land on creative for any random value.
	pools := map[core.SourceType][]core.StoredEvent{
		core.SourceCreative: {eventAged("c1", core.SourceCreative, time.Hour, 1.0)},
	}
	e, _ := newTestEngine(pools)

	for _, r := range []float64{0.0, 0.2, 0.5, 0.99} {
		e.randFloat = func() float64 { return r }
		event, err := e.Draw(context.Background(), "")
		if err != nil {
			t.Fatalf("Draw failed: %v", err)
		}
		if event == nil || event.ID != "c1" {
			t.Errorf("randFloat=%v: expected the only creative event, got %+v", r, event)
		}
	}
}

func TestDecayBoundaryInclusive(t *testing.T) {
	e, _ := newTestEngine(nil)

	tests := []struct {
		ageDays int
		want    float64
	}{
		{0, 1.5},
		{1, 1.5}, // boundary of the first step
		{2, 1.0},
		{3, 1.0}, // boundary of the second step
		{7, 0.6}, // boundary of the last step
		{8, 0},
	}
	for _, tt := range tests {
		if got := e.decayMultiplier(tt.ageDays); got != tt.want {
			t.Errorf("decayMultiplier(%d) = %v, want %v", tt.ageDays, got, tt.want)
		}
	}
}

func TestDrawExcludesFullyDecayed(t *testing.T) {
	// The only pool holds one event older than every decay step: its
	// effective weight is zero, so the draw yields no content.
	pools := map[core.SourceType][]core.StoredEvent{
		core.SourceNews: {eventAged("old", core.SourceNews, 10*24*time.Hour, 1.0)},
	}
	e, _ := newTestEngine(pools)

	event, err := e.Draw(context.Background(), "")
	if err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if event != nil {
		t.Errorf("Expected no content once the pool decayed away, got %+v", event)
	}
}

func TestDrawPassesRankFilter(t *testing.T) {
	e, store := newTestEngine(nil)

	if _, err := e.Draw(context.Background(), core.RankGold); err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	if store.lastRank != core.RankGold {
		t.Errorf("Expected rank filter forwarded to the store, got %q", store.lastRank)
	}
}

func TestDrawPoolDistribution(t *testing.T) {
	// Two equally weighted non-empty pools: over many trials each should be
	// picked about half the time.
	pools := map[core.SourceType][]core.StoredEvent{
		core.SourceFixed: {eventAged("f1", core.SourceFixed, time.Hour, 1.0)},
		core.SourceNews:  {eventAged("n1", core.SourceNews, time.Hour, 1.0)},
	}
	e, _ := newTestEngine(pools)

	rng := rand.New(rand.NewSource(42))
	e.randFloat = rng.Float64

	const trials = 10000
	fixed := 0
	for i := 0; i < trials; i++ {
		event, err := e.Draw(context.Background(), "")
		if err != nil {
			t.Fatalf("Draw failed: %v", err)
		}
		if event.SourceType == core.SourceFixed {
			fixed++
		}
	}

	ratio := float64(fixed) / trials
	if ratio < 0.46 || ratio > 0.54 {
		t.Errorf("Expected ~50%% fixed-pool selections, got %.1f%%", ratio*100)
	}
}

func TestDrawFavorsFreshItems(t *testing.T) {
	// Same base weight, different age: the 1.5x fresh multiplier must beat
	// the 0.6x stale one over many trials.
	pools := map[core.SourceType][]core.StoredEvent{
		core.SourceNews: {
			eventAged("fresh", core.SourceNews, time.Hour, 1.0),
			eventAged("stale", core.SourceNews, 5*24*time.Hour, 1.0),
		},
	}
	e, _ := newTestEngine(pools)

	rng := rand.New(rand.NewSource(7))
	e.randFloat = rng.Float64

	const trials = 5000
	fresh := 0
	for i := 0; i < trials; i++ {
		event, err := e.Draw(context.Background(), "")
		if err != nil {
			t.Fatalf("Draw failed: %v", err)
		}
		if event.ID == "fresh" {
			fresh++
		}
	}

	// Expected share 1.5/(1.5+0.6) ~ 71%.
	ratio := float64(fresh) / trials
	if ratio < 0.65 || ratio > 0.78 {
		t.Errorf("Expected the fresh item around 71%% of draws, got %.1f%%", ratio*100)
	}
}
