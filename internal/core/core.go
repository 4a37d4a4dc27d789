package core

import "time"

// Rank is a player rank tier. Events are gated to a [MinRank, MaxRank] window.
type Rank string

// Rank tiers in ascending order.
const (
	RankBronze   Rank = "bronze"
	RankSilver   Rank = "silver"
	RankGold     Rank = "gold"
	RankPlatinum Rank = "platinum"
	RankDiamond  Rank = "diamond"
)

// RankTiers is the fixed rank ordering, lowest first.
var RankTiers = []Rank{RankBronze, RankSilver, RankGold, RankPlatinum, RankDiamond}

// RankIndex returns the position of r in RankTiers, or -1 if r is not a valid tier.
func RankIndex(r Rank) int {
	for i, tier := range RankTiers {
		if tier == r {
			return i
		}
	}
	return -1
}

// Content length limits for generated events, counted in runes.
const (
	MaxTitleRunes       = 10
	MaxDescriptionRunes = 50
	MaxOptionTextRunes  = 15
	MinOptions          = 2
)

// SourceType identifies which content pool an event belongs to.
type SourceType string

const (
	SourceFixed    SourceType = "fixed"
	SourceNews     SourceType = "news"
	SourceCreative SourceType = "creative"
)

// SourceTypes lists the three content pools in their tie-break order.
var SourceTypes = []SourceType{SourceFixed, SourceNews, SourceCreative}

// RawItem is a single item pulled from a news feed. It is ephemeral: produced
// by the fetcher and consumed immediately by the generator, never persisted.
type RawItem struct {
	Title          string    `json:"title"`           // Item headline
	Summary        string    `json:"summary"`         // Item description, HTML stripped
	PublishedAt    time.Time `json:"published_at"`    // Publication date (zero if the feed omits it)
	SourceURL      string    `json:"source_url"`      // Item link, used as the dedup key
	SourceName     string    `json:"source_name"`     // Human-readable feed name
	SourceCategory string    `json:"source_category"` // Feed category (e.g. "tech", "finance")
	SourceWeight   float64   `json:"source_weight"`   // Configured feed weight
}

// EventOption is one player choice on an event card. Effects is an open
// vocabulary of effect-name to numeric delta; only finiteness is validated.
type EventOption struct {
	Text    string             `json:"text"`
	Effects map[string]float64 `json:"effects"`
}

// EventRecord is a generated event candidate, pre-validation.
type EventRecord struct {
	Title       string        `json:"title"`       // Event title, <= 10 runes
	Description string        `json:"description"` // Event body, <= 50 runes
	Options     []EventOption `json:"options"`     // At least 2 choices
	MinRank     Rank          `json:"min_rank"`    // Lowest eligible rank tier
	MaxRank     Rank          `json:"max_rank"`    // Highest eligible rank tier
}

// SourceInfo carries provenance attached to an event at persistence time.
type SourceInfo struct {
	Type  SourceType `json:"type"`
	URL   string     `json:"url"`   // Originating item URL (empty for creative/fixed)
	Title string     `json:"title"` // Originating item title (empty for creative/fixed)
}

// StoredEvent is a persisted event row.
type StoredEvent struct {
	ID           string        `json:"id"` // Opaque, embeds source type and creation time
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Options      []EventOption `json:"options"`
	MinRank      Rank          `json:"min_rank"`
	MaxRank      Rank          `json:"max_rank"`
	SourceType   SourceType    `json:"source_type"`
	SourceURL    string        `json:"source_url"`
	SourceTitle  string        `json:"source_title"`
	BaseWeight   float64       `json:"base_weight"`   // Owner-mutable draw weight, default 1.0
	QualityScore float64       `json:"quality_score"` // Deterministic score in [0,1]
	Validated    bool          `json:"validated"`
	CreatedAt    time.Time     `json:"created_at"`
	LastUsedAt   *time.Time    `json:"last_used_at"` // nil until first use
	UsageCount   int           `json:"usage_count"`  // Monotonic, starts at 0
}

// Record returns the embedded generated-record fields of a stored event.
func (e StoredEvent) Record() EventRecord {
	return EventRecord{
		Title:       e.Title,
		Description: e.Description,
		Options:     e.Options,
		MinRank:     e.MinRank,
		MaxRank:     e.MaxRank,
	}
}

// JobState is the lifecycle state of a scheduled job.
type JobState string

const (
	JobIdle    JobState = "idle"
	JobRunning JobState = "running"
	JobSuccess JobState = "success"
	JobError   JobState = "error"
)

// JobStatus is the in-memory status record of one scheduled job. It is
// mutated only by the owning job's run loop.
type JobStatus struct {
	LastRun   time.Time `json:"last_run"` // Zero until the first run
	NextRun   time.Time `json:"next_run"` // Zero when the scheduler is stopped
	State     JobState  `json:"state"`
	LastError string    `json:"last_error"` // Empty unless State is error
}
