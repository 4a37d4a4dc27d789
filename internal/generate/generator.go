// Package generate turns raw news items (or nothing at all) into event
// record candidates via the generative backend, gating every candidate on
// the deterministic quality score before it reaches persistence.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"eventforge/internal/config"
	"eventforge/internal/core"
	"eventforge/internal/llm"
	"eventforge/internal/logger"
	"eventforge/internal/validate"
)

// maxBackoff caps the exponential retry delay.
const maxBackoff = 30 * time.Second

// Generator produces event records from the generative backend. Retry
// counters are keyed per input so one stubborn item cannot starve a batch.
type Generator struct {
	backend     llm.TextGenerator
	opts        llm.Options
	threshold   float64
	maxRetries  int
	batchSize   int
	concurrency int
	sleep       func(time.Duration)
	randInt     func(n int) int
	log         *slog.Logger

	mu      sync.Mutex
	retries map[string]int
}

// New creates a generator over the given backend with the configured batch,
// retry, and quality settings.
func New(backend llm.TextGenerator, cfg config.Generation, opts llm.Options) *Generator {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Generator{
		backend:     backend,
		opts:        opts,
		threshold:   cfg.QualityThreshold,
		maxRetries:  maxRetries,
		batchSize:   cfg.BatchSize,
		concurrency: concurrency,
		sleep:       time.Sleep,
		randInt:     rand.Intn,
		log:         logger.Get(),
		retries:     make(map[string]int),
	}
}

// GenerateFromSource produces one event record candidate from a news item.
// It returns an error when the backend exhausts its retries, the response
// cannot be parsed, or the candidate scores below the quality threshold.
func (g *Generator) GenerateFromSource(ctx context.Context, item core.RawItem) (*core.EventRecord, error) {
	key := item.SourceURL
	if key == "" {
		key = item.Title
	}

	prompt := fmt.Sprintf(newsPromptTemplate,
		item.Title, snippet(item.Summary, 400), rankVocabulary(), g.randomRank())

	return g.generateOne(ctx, key, prompt)
}

// GenerateCreative produces one event record candidate from nothing but a
// randomly chosen event type tag. An unknown target rank is replaced with a
// random tier.
func (g *Generator) GenerateCreative(ctx context.Context, targetRank core.Rank) (*core.EventRecord, error) {
	if core.RankIndex(targetRank) < 0 {
		targetRank = g.randomRank()
	}
	eventType := eventTypeTags[g.randInt(len(eventTypeTags))]

	prompt := fmt.Sprintf(creativePromptTemplate, eventType, rankVocabulary(), targetRank)

	return g.generateOne(ctx, "creative:"+eventType, prompt)
}

// GenerateBatch runs news generation over items in batches, fanning each
// batch out in concurrency-bounded chunks. Per-item failures are logged and
// skipped; the returned slice holds only accepted candidates, in input order.
func (g *Generator) GenerateBatch(ctx context.Context, items []core.RawItem) []core.EventRecord {
	if len(items) == 0 {
		return nil
	}
	batchSize := g.batchSize
	if batchSize < 1 {
		batchSize = len(items)
	}

	var out []core.EventRecord
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		out = append(out, g.generateChunked(ctx, items[start:end])...)
	}

	g.log.Info("Batch generation finished", "items", len(items), "accepted", len(out))
	return out
}

// generateChunked fans one batch out in chunks of at most g.concurrency
// goroutines, waiting for each chunk before starting the next.
func (g *Generator) generateChunked(ctx context.Context, batch []core.RawItem) []core.EventRecord {
	results := make([]*core.EventRecord, len(batch))

	for start := 0; start < len(batch); start += g.concurrency {
		end := start + g.concurrency
		if end > len(batch) {
			end = len(batch)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()

				rec, err := g.GenerateFromSource(ctx, batch[i])
				if err != nil {
					g.log.Warn("Skipping item after generation failure",
						"title", batch[i].Title, "error", err.Error())
					return
				}
				results[i] = rec
			}(i)
		}
		wg.Wait()
	}

	var out []core.EventRecord
	for _, rec := range results {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

// generateOne runs the invoke-parse-score pipeline for a single candidate.
func (g *Generator) generateOne(ctx context.Context, key, prompt string) (*core.EventRecord, error) {
	raw, err := g.invokeWithRetry(ctx, key, prompt)
	if err != nil {
		return nil, err
	}

	rec, err := parseRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("unusable model response for %q: %w", key, err)
	}

	if score := validate.Score(*rec); score < g.threshold {
		return nil, fmt.Errorf("candidate %q scored %.2f, below threshold %.2f", rec.Title, score, g.threshold)
	}

	return rec, nil
}

// invokeWithRetry calls the backend, retrying with exponential backoff up to
// maxRetries attempts per key. The per-key counter is cleared on success and
// on exhaustion, so the next cycle starts fresh.
func (g *Generator) invokeWithRetry(ctx context.Context, key, prompt string) (string, error) {
	var lastErr error
	for {
		g.mu.Lock()
		attempt := g.retries[key]
		if attempt >= g.maxRetries {
			delete(g.retries, key)
			g.mu.Unlock()
			return "", fmt.Errorf("generation for %q failed after %d attempts: %w", key, g.maxRetries, lastErr)
		}
		g.mu.Unlock()

		if attempt > 0 {
			g.sleep(backoffDelay(attempt))
		}

		raw, err := g.backend.GenerateText(ctx, prompt, g.opts)
		if err == nil {
			g.mu.Lock()
			delete(g.retries, key)
			g.mu.Unlock()
			return raw, nil
		}

		lastErr = err
		g.mu.Lock()
		g.retries[key] = attempt + 1
		g.mu.Unlock()
		g.log.Warn("Generation attempt failed", "key", key, "attempt", attempt+1, "error", err.Error())
	}
}

// backoffDelay returns 2^attempt seconds, capped at maxBackoff.
func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// parseRecord decodes a model response into an event record, tolerating a
// markdown code fence around the JSON and rejecting structurally incomplete
// candidates.
func parseRecord(raw string) (*core.EventRecord, error) {
	cleaned := stripCodeFence(raw)

	var rec core.EventRecord
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return nil, fmt.Errorf("failed to parse response as JSON: %w", err)
	}

	if rec.Title == "" {
		return nil, fmt.Errorf("response is missing a title")
	}
	if rec.Description == "" {
		return nil, fmt.Errorf("response is missing a description")
	}
	if len(rec.Options) < core.MinOptions {
		return nil, fmt.Errorf("response has %d options, need at least %d", len(rec.Options), core.MinOptions)
	}
	for i, opt := range rec.Options {
		if opt.Text == "" {
			return nil, fmt.Errorf("option %d is missing text", i)
		}
		if len(opt.Effects) == 0 {
			return nil, fmt.Errorf("option %d is missing effects", i)
		}
	}
	if rec.MinRank == "" || rec.MaxRank == "" {
		return nil, fmt.Errorf("response is missing the rank window")
	}

	return &rec, nil
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (g *Generator) randomRank() core.Rank {
	return core.RankTiers[g.randInt(len(core.RankTiers))]
}

// rankVocabulary renders the tier names for prompt interpolation.
func rankVocabulary() string {
	names := make([]string, len(core.RankTiers))
	for i, r := range core.RankTiers {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// snippet truncates s to at most n runes for prompt budget reasons.
func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
