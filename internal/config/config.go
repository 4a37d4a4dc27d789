// Package config holds the application configuration tree, loaded via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Gemini     Gemini     `mapstructure:"gemini"`
	Fetch      Fetch      `mapstructure:"fetch"`
	Sources    []Source   `mapstructure:"sources"`
	Keywords   Keywords   `mapstructure:"keywords"`
	Generation Generation `mapstructure:"generation"`
	Retrieval  Retrieval  `mapstructure:"retrieval"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Store      Store      `mapstructure:"store"`
}

// Gemini holds generative backend configuration.
type Gemini struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int32   `mapstructure:"max_tokens"`
}

// Source describes one configured news feed.
type Source struct {
	URL      string  `mapstructure:"url"`
	Name     string  `mapstructure:"name"`
	Category string  `mapstructure:"category"`
	Weight   float64 `mapstructure:"weight"`
}

// Keywords holds the item filtering lists. An item passes when its lowercased
// title+summary matches the whitelist and either avoids the blacklist or
// matches a strong keyword that overrides it.
type Keywords struct {
	Whitelist []string `mapstructure:"whitelist"`
	Blacklist []string `mapstructure:"blacklist"`
	Strong    []string `mapstructure:"strong"`
}

// Fetch holds source fetching configuration.
type Fetch struct {
	Timeout      time.Duration `mapstructure:"timeout"`        // Per-source fetch timeout
	PerSourceCap int           `mapstructure:"per_source_cap"` // Keep at most this many items per source
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`      // Fallback cache freshness window
}

// Generation holds batch generation configuration.
type Generation struct {
	BatchSize        int     `mapstructure:"batch_size"`
	Concurrency      int     `mapstructure:"concurrency"`
	MaxRetries       int     `mapstructure:"max_retries"`
	QualityThreshold float64 `mapstructure:"quality_threshold"`
}

// DecayStep is one entry of the ordered age-decay schedule: items whose age in
// days is <= MaxAgeDays (and not matched by an earlier step) draw with
// base weight multiplied by Multiplier.
type DecayStep struct {
	MaxAgeDays int     `mapstructure:"max_age_days"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// Retrieval holds weighted-draw configuration.
type Retrieval struct {
	PoolWeights map[string]float64 `mapstructure:"pool_weights"` // fixed/news/creative
	Decay       []DecayStep        `mapstructure:"decay"`
	MaxAge      time.Duration      `mapstructure:"max_age"` // Query window for pool candidates
}

// Scheduler holds cron job configuration.
type Scheduler struct {
	Timezone        string        `mapstructure:"timezone"`
	GenerationCron  string        `mapstructure:"generation_cron"`
	CleanupCron     string        `mapstructure:"cleanup_cron"`
	SupplementCron  string        `mapstructure:"supplement_cron"`
	MinEvents       int           `mapstructure:"min_events"`       // Supplement job floor
	SupplementBatch int           `mapstructure:"supplement_batch"` // Max creative events per supplement run
	MaxEventAge     time.Duration `mapstructure:"max_event_age"`    // Cleanup deletion threshold
	UsageRetention  time.Duration `mapstructure:"usage_retention"`  // Usage-log retention window
}

// Store holds persistence configuration.
type Store struct {
	DataDir string `mapstructure:"data_dir"`
}

// SetDefaults registers every recognized option with viper.
func SetDefaults() {
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("gemini.model", "gemini-flash-lite-latest")
	viper.SetDefault("gemini.temperature", 0.8)
	viper.SetDefault("gemini.max_tokens", 1024)

	viper.SetDefault("fetch.timeout", "10s")
	viper.SetDefault("fetch.per_source_cap", 10)
	viper.SetDefault("fetch.cache_ttl", "1h")

	viper.SetDefault("sources", []map[string]any{
		{"url": "https://feeds.bbci.co.uk/news/technology/rss.xml", "name": "BBC Technology", "category": "tech", "weight": 1.0},
		{"url": "https://feeds.bbci.co.uk/news/business/rss.xml", "name": "BBC Business", "category": "finance", "weight": 1.0},
		{"url": "https://hnrss.org/frontpage", "name": "Hacker News", "category": "tech", "weight": 0.8},
	})

	viper.SetDefault("keywords.whitelist", []string{
		"market", "economy", "technology", "startup", "launch",
		"研究", "ai", "company", "deal", "policy",
	})
	viper.SetDefault("keywords.blacklist", []string{
		"obituary", "celebrity", "gossip", "horoscope",
	})
	viper.SetDefault("keywords.strong", []string{
		"breaking", "crisis", "record high", "record low",
	})

	viper.SetDefault("generation.batch_size", 5)
	viper.SetDefault("generation.concurrency", 3)
	viper.SetDefault("generation.max_retries", 3)
	viper.SetDefault("generation.quality_threshold", 0.3)

	viper.SetDefault("retrieval.pool_weights", map[string]float64{
		"fixed": 1.0, "news": 2.0, "creative": 1.0,
	})
	viper.SetDefault("retrieval.decay", []map[string]any{
		{"max_age_days": 1, "multiplier": 1.5},
		{"max_age_days": 3, "multiplier": 1.0},
		{"max_age_days": 7, "multiplier": 0.6},
	})
	viper.SetDefault("retrieval.max_age", "168h")

	viper.SetDefault("scheduler.timezone", "UTC")
	viper.SetDefault("scheduler.generation_cron", "0 3 * * *")
	viper.SetDefault("scheduler.cleanup_cron", "0 4 * * *")
	viper.SetDefault("scheduler.supplement_cron", "0 */2 * * *")
	viper.SetDefault("scheduler.min_events", 50)
	viper.SetDefault("scheduler.supplement_batch", 10)
	viper.SetDefault("scheduler.max_event_age", "168h")
	viper.SetDefault("scheduler.usage_retention", "720h")

	viper.SetDefault("store.data_dir", ".eventforge")
}

// Load unmarshals the current viper state into a Config. Defaults must have
// been registered (SetDefaults) and any config file read by the caller.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
