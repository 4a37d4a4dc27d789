// Package retrieval serves single events through a two-stage weighted random
// draw: a pool lottery over the non-empty content pools, then an age-decayed
// item lottery within the chosen pool.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"eventforge/internal/config"
	"eventforge/internal/core"
	"eventforge/internal/logger"
)

// poolSelector is the slice of the store the engine depends on.
type poolSelector interface {
	SelectPool(ctx context.Context, sourceType core.SourceType, rank core.Rank, since time.Time) ([]core.StoredEvent, error)
}

// Engine performs the weighted draws. Weights are recomputed on every call;
// nothing is cached between draws.
type Engine struct {
	store       poolSelector
	poolWeights map[string]float64
	decay       []config.DecayStep
	maxAge      time.Duration
	now         func() time.Time
	randFloat   func() float64
	log         *slog.Logger
}

// New creates an engine over the store with the configured pool weights and
// decay schedule.
func New(store poolSelector, cfg config.Retrieval) *Engine {
	return &Engine{
		store:       store,
		poolWeights: cfg.PoolWeights,
		decay:       cfg.Decay,
		maxAge:      cfg.MaxAge,
		now:         time.Now,
		randFloat:   rand.Float64,
		log:         logger.Get(),
	}
}

// Draw picks one event, optionally restricted to events whose rank window
// contains rank (pass an empty rank for no filter). A (nil, nil) return means
// no content is available; that is the expected terminal state of an empty or
// fully decayed store, not an error.
func (e *Engine) Draw(ctx context.Context, rank core.Rank) (*core.StoredEvent, error) {
	since := e.now().Add(-e.maxAge)

	var pools [][]core.StoredEvent
	var weights []float64
	for _, sourceType := range core.SourceTypes {
		events, err := e.store.SelectPool(ctx, sourceType, rank, since)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s pool: %w", sourceType, err)
		}
		if len(events) == 0 {
			continue
		}
		pools = append(pools, events)
		weights = append(weights, e.poolWeights[string(sourceType)])
	}

	chosen := e.pickWeighted(weights)
	if chosen < 0 {
		e.log.Debug("No content available for draw", "rank", string(rank))
		return nil, nil
	}

	return e.drawFromPool(pools[chosen]), nil
}

// drawFromPool runs the decay-weighted item lottery. Items older than every
// schedule entry carry zero weight and are excluded; nil means the whole pool
// decayed away.
func (e *Engine) drawFromPool(events []core.StoredEvent) *core.StoredEvent {
	now := e.now()

	var candidates []core.StoredEvent
	var weights []float64
	for _, event := range events {
		ageDays := int(now.Sub(event.CreatedAt).Hours() / 24)
		w := event.BaseWeight * e.decayMultiplier(ageDays)
		if w <= 0 {
			continue
		}
		candidates = append(candidates, event)
		weights = append(weights, w)
	}

	chosen := e.pickWeighted(weights)
	if chosen < 0 {
		return nil
	}
	return &candidates[chosen]
}

// decayMultiplier walks the ordered schedule and returns the multiplier of
// the first step whose boundary is not yet passed (inclusive). An age beyond
// every step decays to zero.
func (e *Engine) decayMultiplier(ageDays int) float64 {
	for _, step := range e.decay {
		if ageDays <= step.MaxAgeDays {
			return step.Multiplier
		}
	}
	return 0
}

// pickWeighted runs one weighted lottery and returns the chosen index, or -1
// when the total weight is not positive. Ties on the subtraction walk resolve
// by iteration order.
func (e *Engine) pickWeighted(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return -1
	}

	r := e.randFloat() * total
	for i, w := range weights {
		r -= w
		if r <= 0 {
			return i
		}
	}
	return len(weights) - 1
}
