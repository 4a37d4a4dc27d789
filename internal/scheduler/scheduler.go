// Package scheduler owns the three recurring pipeline jobs: daily generation,
// daily cleanup, and the supplement-if-low top-up. Jobs run on cron schedules
// pinned to one timezone and are individually triggerable for operations.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eventforge/internal/config"
	"eventforge/internal/core"
	"eventforge/internal/logger"
	"eventforge/internal/store"
	"eventforge/internal/validate"
)

// Job names, also the keys of Status().
const (
	JobGeneration = "generation"
	JobCleanup    = "cleanup"
	JobSupplement = "supplement"
)

// JobNames lists the jobs in display order.
var JobNames = []string{JobGeneration, JobCleanup, JobSupplement}

// itemFetcher is the slice of the fetcher the jobs depend on.
type itemFetcher interface {
	FetchAll(ctx context.Context) []core.RawItem
	CleanupCache()
	CleanupUnavailableSources()
}

// eventGenerator is the slice of the generator the jobs depend on.
type eventGenerator interface {
	GenerateBatch(ctx context.Context, items []core.RawItem) []core.EventRecord
	GenerateCreative(ctx context.Context, targetRank core.Rank) (*core.EventRecord, error)
}

// eventStore is the slice of the store the jobs depend on.
type eventStore interface {
	SaveBatch(ctx context.Context, candidates []store.Candidate) []string
	CountAll(ctx context.Context) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteUsageOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler drives the three jobs. Each job owns its status entry; a running
// job refuses a concurrent trigger of itself but never blocks the others.
type Scheduler struct {
	cfg     config.Scheduler
	fetcher itemFetcher
	gen     eventGenerator
	store   eventStore
	log     *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	statuses map[string]*core.JobStatus
}

// New creates a stopped scheduler. Start registers the cron entries.
func New(cfg config.Scheduler, fetcher itemFetcher, gen eventGenerator, st eventStore) *Scheduler {
	statuses := make(map[string]*core.JobStatus, len(JobNames))
	for _, name := range JobNames {
		statuses[name] = &core.JobStatus{State: core.JobIdle}
	}

	return &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		gen:      gen,
		store:    st,
		log:      logger.Get(),
		now:      time.Now,
		entries:  make(map[string]cron.EntryID),
		statuses: statuses,
	}
}

// Start registers the three cron entries and starts the clock. Calling Start
// on a started scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", s.cfg.Timezone, err)
	}

	c := cron.New(cron.WithLocation(loc))
	jobs := []struct {
		name string
		expr string
		run  func(context.Context) error
	}{
		{JobGeneration, s.cfg.GenerationCron, s.runGeneration},
		{JobCleanup, s.cfg.CleanupCron, s.runCleanup},
		{JobSupplement, s.cfg.SupplementCron, s.runSupplement},
	}
	for _, job := range jobs {
		id, err := c.AddFunc(job.expr, func() { _ = s.runJob(job.name, job.run) })
		if err != nil {
			return fmt.Errorf("invalid cron expression %q for %s: %w", job.expr, job.name, err)
		}
		s.entries[job.name] = id
	}

	c.Start()
	s.cron = c
	s.log.Info("Scheduler started",
		"timezone", s.cfg.Timezone,
		"generation", s.cfg.GenerationCron,
		"cleanup", s.cfg.CleanupCron,
		"supplement", s.cfg.SupplementCron)
	return nil
}

// Stop cancels all schedules, waits for in-flight runs, and resets every job
// status to idle. Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.entries = make(map[string]cron.EntryID)
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	s.mu.Lock()
	for _, status := range s.statuses {
		*status = core.JobStatus{State: core.JobIdle}
	}
	s.mu.Unlock()

	s.log.Info("Scheduler stopped")
}

// TriggerGeneration runs the generation job synchronously.
func (s *Scheduler) TriggerGeneration() error {
	return s.runJob(JobGeneration, s.runGeneration)
}

// TriggerCleanup runs the cleanup job synchronously.
func (s *Scheduler) TriggerCleanup() error {
	return s.runJob(JobCleanup, s.runCleanup)
}

// TriggerSupplement runs the supplement job synchronously.
func (s *Scheduler) TriggerSupplement() error {
	return s.runJob(JobSupplement, s.runSupplement)
}

// Status returns a snapshot of every job's status, with NextRun filled in
// from the live cron entries while the scheduler runs.
func (s *Scheduler) Status() map[string]core.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]core.JobStatus, len(s.statuses))
	for name, status := range s.statuses {
		snapshot := *status
		if s.cron != nil {
			if id, ok := s.entries[name]; ok {
				snapshot.NextRun = s.cron.Entry(id).Next
			}
		}
		out[name] = snapshot
	}
	return out
}

// runJob drives the idle -> running -> {success, error} state machine around
// one job execution, recovering panics into the error state.
func (s *Scheduler) runJob(name string, run func(context.Context) error) error {
	s.mu.Lock()
	status := s.statuses[name]
	if status.State == core.JobRunning {
		s.mu.Unlock()
		return fmt.Errorf("job %s is already running", name)
	}
	status.State = core.JobRunning
	status.LastRun = s.now()
	s.mu.Unlock()

	s.log.Info("Job started", "job", name)
	err := s.safeRun(run)

	s.mu.Lock()
	if err != nil {
		status.State = core.JobError
		status.LastError = err.Error()
	} else {
		status.State = core.JobSuccess
		status.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Job failed", "job", name, "error", err.Error())
	} else {
		s.log.Info("Job finished", "job", name)
	}
	return err
}

func (s *Scheduler) safeRun(run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return run(context.Background())
}

// runGeneration is the daily pipeline: fetch, generate, attach provenance,
// persist. Empty fetch and empty generation results are successes.
func (s *Scheduler) runGeneration(ctx context.Context) error {
	items := s.fetcher.FetchAll(ctx)
	if len(items) == 0 {
		s.log.Info("No items fetched, nothing to generate")
		return nil
	}

	records := s.gen.GenerateBatch(ctx, items)
	if len(records) == 0 {
		s.log.Info("No records accepted this cycle", "items", len(items))
		return nil
	}

	candidates := make([]store.Candidate, 0, len(records))
	for _, rec := range records {
		src := core.SourceInfo{Type: core.SourceNews}
		if item := matchItem(rec, items); item != nil {
			src.URL = item.SourceURL
			src.Title = item.Title
		}
		candidates = append(candidates, newCandidate(rec, src))
	}

	ids := s.store.SaveBatch(ctx, candidates)
	s.log.Info("Generation cycle persisted events", "accepted", len(records), "persisted", len(ids))
	return nil
}

// runCleanup runs all four maintenance sub-steps regardless of individual
// outcomes; errors are joined into one.
func (s *Scheduler) runCleanup(ctx context.Context) error {
	var errs []error

	if deleted, err := s.store.DeleteOlderThan(ctx, s.now().Add(-s.cfg.MaxEventAge)); err != nil {
		errs = append(errs, fmt.Errorf("event cleanup: %w", err))
	} else {
		s.log.Info("Deleted expired events", "deleted", deleted)
	}

	if deleted, err := s.store.DeleteUsageOlderThan(ctx, s.now().Add(-s.cfg.UsageRetention)); err != nil {
		errs = append(errs, fmt.Errorf("usage log cleanup: %w", err))
	} else {
		s.log.Info("Deleted expired usage rows", "deleted", deleted)
	}

	s.fetcher.CleanupCache()
	s.fetcher.CleanupUnavailableSources()

	return errors.Join(errs...)
}

// runSupplement tops the store up with creative events when the live count
// falls under the configured minimum. Generation is sequential: this job is
// deliberately rate-limited against the backend.
func (s *Scheduler) runSupplement(ctx context.Context) error {
	count, err := s.store.CountAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}
	if count >= s.cfg.MinEvents {
		s.log.Info("Event count sufficient, skipping supplement", "count", count, "min", s.cfg.MinEvents)
		return nil
	}

	need := s.cfg.MinEvents - count
	if need > s.cfg.SupplementBatch {
		need = s.cfg.SupplementBatch
	}

	var candidates []store.Candidate
	for i := 0; i < need; i++ {
		rec, err := s.gen.GenerateCreative(ctx, "")
		if err != nil {
			s.log.Warn("Creative generation failed", "error", err.Error())
			continue
		}
		candidates = append(candidates, newCandidate(*rec, core.SourceInfo{Type: core.SourceCreative}))
	}

	if len(candidates) == 0 {
		s.log.Warn("Supplement produced no events", "need", need)
		return nil
	}

	ids := s.store.SaveBatch(ctx, candidates)
	s.log.Info("Supplement persisted events", "count", count, "need", need, "persisted", len(ids))
	return nil
}

func newCandidate(rec core.EventRecord, src core.SourceInfo) store.Candidate {
	return store.Candidate{
		Record:    rec,
		Source:    src,
		Quality:   validate.Score(rec),
		Validated: len(validate.Validate(rec)) == 0,
	}
}

// matchItem correlates a generated record back to its originating item by
// best-effort title containment. No match leaves the provenance URL empty.
func matchItem(rec core.EventRecord, items []core.RawItem) *core.RawItem {
	title := strings.ToLower(rec.Title)
	for i, item := range items {
		itemTitle := strings.ToLower(item.Title)
		if strings.Contains(itemTitle, title) || strings.Contains(title, itemTitle) {
			return &items[i]
		}
	}
	return nil
}
