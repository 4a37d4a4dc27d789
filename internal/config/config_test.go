package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("Expected 10s fetch timeout, got %v", cfg.Fetch.Timeout)
	}
	if cfg.Generation.MaxRetries != 3 || cfg.Generation.QualityThreshold != 0.3 {
		t.Errorf("Unexpected generation defaults: %+v", cfg.Generation)
	}
	if len(cfg.Sources) == 0 {
		t.Error("Expected default sources configured")
	}

	if len(cfg.Retrieval.Decay) != 3 {
		t.Fatalf("Expected 3 decay steps, got %d", len(cfg.Retrieval.Decay))
	}
	if cfg.Retrieval.Decay[0].MaxAgeDays != 1 || cfg.Retrieval.Decay[0].Multiplier != 1.5 {
		t.Errorf("Unexpected first decay step: %+v", cfg.Retrieval.Decay[0])
	}
	if cfg.Retrieval.PoolWeights["news"] != 2.0 {
		t.Errorf("Expected news pool weight 2.0, got %v", cfg.Retrieval.PoolWeights["news"])
	}

	if cfg.Scheduler.GenerationCron != "0 3 * * *" || cfg.Scheduler.Timezone != "UTC" {
		t.Errorf("Unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.UsageRetention != 720*time.Hour {
		t.Errorf("Expected 720h usage retention, got %v", cfg.Scheduler.UsageRetention)
	}
}

func TestLoadOverride(t *testing.T) {
	viper.Reset()
	SetDefaults()
	viper.Set("scheduler.min_events", 5)
	viper.Set("fetch.timeout", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scheduler.MinEvents != 5 {
		t.Errorf("Expected override min_events 5, got %d", cfg.Scheduler.MinEvents)
	}
	if cfg.Fetch.Timeout != 3*time.Second {
		t.Errorf("Expected override timeout 3s, got %v", cfg.Fetch.Timeout)
	}
}
