package core

import "testing"

func TestRankIndexOrdering(t *testing.T) {
	for i := 1; i < len(RankTiers); i++ {
		lower := RankIndex(RankTiers[i-1])
		higher := RankIndex(RankTiers[i])
		if lower >= higher {
			t.Errorf("Expected %s (%d) to order below %s (%d)", RankTiers[i-1], lower, RankTiers[i], higher)
		}
	}
}

func TestRankIndexUnknown(t *testing.T) {
	if idx := RankIndex("mythril"); idx != -1 {
		t.Errorf("Expected -1 for unknown rank, got %d", idx)
	}
	if idx := RankIndex(""); idx != -1 {
		t.Errorf("Expected -1 for empty rank, got %d", idx)
	}
}

func TestStoredEventRecord(t *testing.T) {
	ev := StoredEvent{
		ID:          "evt-news-20250101000000-abcd1234",
		Title:       "市场震荡",
		Description: "A sudden swing in the markets catches everyone off guard",
		Options: []EventOption{
			{Text: "buy the dip", Effects: map[string]float64{"cash": -100, "stock": 120}},
			{Text: "sit it out", Effects: map[string]float64{"mood": -5}},
		},
		MinRank: RankBronze,
		MaxRank: RankGold,
	}

	rec := ev.Record()
	if rec.Title != ev.Title || rec.Description != ev.Description {
		t.Error("Record() did not carry title/description")
	}
	if len(rec.Options) != 2 {
		t.Errorf("Expected 2 options, got %d", len(rec.Options))
	}
	if rec.MinRank != RankBronze || rec.MaxRank != RankGold {
		t.Error("Record() did not carry rank window")
	}
}
