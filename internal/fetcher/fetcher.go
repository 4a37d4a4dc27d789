// Package fetcher pulls raw items from the configured news feeds with
// per-source failure isolation and a cached/canned fallback.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"eventforge/internal/config"
	"eventforge/internal/core"
	"eventforge/internal/logger"
)

// Backoff windows per failure class. Timeouts are deliberately not marked:
// a slow source gets retried on the very next cycle.
const (
	dnsBackoff   = 24 * time.Hour
	resetBackoff = 1 * time.Hour
	otherBackoff = 4 * time.Hour
)

// unavailability is a circuit-breaker entry for one failing source.
type unavailability struct {
	MarkedAt   time.Time
	RetryAfter time.Time
}

// cacheEntry holds the most recent successful fetch result.
type cacheEntry struct {
	Items     []core.RawItem
	FetchedAt time.Time
}

// Status reports cheap (no I/O) fetcher counters.
type Status struct {
	TotalSources       int
	AvailableSources   int
	UnavailableSources int
	CachedItems        int
}

// Fetcher pulls all configured sources concurrently. All mutable state
// (availability map, result cache) is private to one instance.
type Fetcher struct {
	sources      []config.Source
	whitelist    []string
	blacklist    []string
	strong       []string
	timeout      time.Duration
	perSourceCap int
	cacheTTL     time.Duration
	client       *http.Client
	log          *slog.Logger
	now          func() time.Time

	mu          sync.Mutex
	unavailable map[string]unavailability
	cache       map[string]cacheEntry
}

// New creates a fetcher for the configured sources and keyword lists.
func New(cfg config.Fetch, sources []config.Source, keywords config.Keywords) *Fetcher {
	return &Fetcher{
		sources:      sources,
		whitelist:    lowerAll(keywords.Whitelist),
		blacklist:    lowerAll(keywords.Blacklist),
		strong:       lowerAll(keywords.Strong),
		timeout:      cfg.Timeout,
		perSourceCap: cfg.PerSourceCap,
		cacheTTL:     cfg.CacheTTL,
		client:       &http.Client{Timeout: cfg.Timeout},
		log:          logger.Get(),
		now:          time.Now,
		unavailable:  make(map[string]unavailability),
		cache:        make(map[string]cacheEntry),
	}
}

func lowerAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strings.ToLower(s)
	}
	return out
}

// FetchAll pulls every currently-available source concurrently, filters and
// dedups the results, and falls back to cached or canned content when nothing
// usable came back. It never returns an error: per-source failures are
// absorbed into availability marking.
func (f *Fetcher) FetchAll(ctx context.Context) []core.RawItem {
	available := f.availableSources()

	results := make([][]core.RawItem, len(available))
	var wg sync.WaitGroup
	for i, src := range available {
		wg.Add(1)
		go func(i int, src config.Source) {
			defer wg.Done()

			srcCtx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()

			items, err := f.fetchSource(srcCtx, src)
			if err != nil {
				f.handleFetchError(src, err)
				return
			}
			if f.perSourceCap > 0 && len(items) > f.perSourceCap {
				items = items[:f.perSourceCap]
			}
			results[i] = items
		}(i, src)
	}
	wg.Wait()

	var merged []core.RawItem
	for _, items := range results {
		merged = append(merged, items...)
	}

	kept := dedupItems(f.filterItems(merged))
	if len(kept) == 0 {
		f.log.Warn("No usable items from any source, using fallback",
			"sources_tried", len(available))
		return f.fallbackItems()
	}

	f.mu.Lock()
	f.cache["all"] = cacheEntry{Items: kept, FetchedAt: f.now()}
	f.mu.Unlock()

	f.log.Info("Fetched items", "sources", len(available), "items", len(kept))
	return kept
}

// availableSources returns sources not currently marked unavailable,
// pruning entries whose backoff window has passed.
func (f *Fetcher) availableSources() []config.Source {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	var out []config.Source
	for _, src := range f.sources {
		entry, marked := f.unavailable[src.URL]
		if marked && now.After(entry.RetryAfter) {
			delete(f.unavailable, src.URL)
			marked = false
		}
		if !marked {
			out = append(out, src)
		}
	}
	return out
}

// IsSourceAvailable reports whether the source is currently eligible for
// fetching. An expired backoff entry is removed on read.
func (f *Fetcher) IsSourceAvailable(sourceURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, marked := f.unavailable[sourceURL]
	if !marked {
		return true
	}
	if f.now().After(entry.RetryAfter) {
		delete(f.unavailable, sourceURL)
		return true
	}
	return false
}

// handleFetchError classifies the failure and marks the source unavailable
// for the class's backoff window. Timeouts are not marked at all.
func (f *Fetcher) handleFetchError(src config.Source, err error) {
	backoff, class := classifyFetchError(err)
	if backoff == 0 {
		f.log.Warn("Source fetch timed out, will retry next cycle", "source", src.Name, "error", err.Error())
		return
	}

	f.mu.Lock()
	now := f.now()
	f.unavailable[src.URL] = unavailability{MarkedAt: now, RetryAfter: now.Add(backoff)}
	f.mu.Unlock()

	f.log.Warn("Source marked unavailable",
		"source", src.Name, "class", class, "retry_after", backoff.String(), "error", err.Error())
}

// classifyFetchError maps a fetch error to a backoff duration. A zero
// duration means "transient, do not mark".
func classifyFetchError(err error) (time.Duration, string) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return dnsBackoff, "dns-not-found"
	}

	if errors.Is(err, syscall.ECONNRESET) || strings.Contains(err.Error(), "connection reset") {
		return resetBackoff, "connection-reset"
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return 0, "timeout"
	}

	return otherBackoff, "other"
}

// filterItems applies the keyword policy: keep an item only if its lowercased
// title+summary matches the whitelist AND either avoids the blacklist or
// matches a strong keyword that overrides it.
func (f *Fetcher) filterItems(items []core.RawItem) []core.RawItem {
	var kept []core.RawItem
	for _, item := range items {
		text := strings.ToLower(item.Title + " " + item.Summary)
		if !containsAny(text, f.whitelist) {
			continue
		}
		if containsAny(text, f.blacklist) && !containsAny(text, f.strong) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// dedupItems removes duplicates across all sources by URL, falling back to
// title when the URL is absent. First occurrence wins.
func dedupItems(items []core.RawItem) []core.RawItem {
	seen := make(map[string]bool, len(items))
	var out []core.RawItem
	for _, item := range items {
		key := item.SourceURL
		if key == "" {
			key = item.Title
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// fallbackItems returns the cached result if still fresh, else the canned
// classic items, so a total source failure never leaves callers empty-handed.
func (f *Fetcher) fallbackItems() []core.RawItem {
	f.mu.Lock()
	entry, ok := f.cache["all"]
	fresh := ok && f.now().Sub(entry.FetchedAt) < f.cacheTTL
	f.mu.Unlock()

	if fresh {
		f.log.Info("Serving cached items", "items", len(entry.Items), "age", f.now().Sub(entry.FetchedAt).String())
		return entry.Items
	}
	return classicItems()
}

// classicItems is the last-resort canned content set.
func classicItems() []core.RawItem {
	return []core.RawItem{
		{
			Title:          "Tech giant unveils breakthrough chip",
			Summary:        "A major manufacturer announced a processor that halves power consumption for AI workloads.",
			SourceName:     "classics",
			SourceCategory: "tech",
			SourceWeight:   0.5,
		},
		{
			Title:          "Markets rally on rate cut hopes",
			Summary:        "Global stock indices climbed after central bank comments hinted at easing policy.",
			SourceName:     "classics",
			SourceCategory: "finance",
			SourceWeight:   0.5,
		},
		{
			Title:          "Startup raises record seed round",
			Summary:        "A two-person startup closed the largest seed financing of the year for its logistics platform.",
			SourceName:     "classics",
			SourceCategory: "business",
			SourceWeight:   0.5,
		},
	}
}

// CleanupCache removes cache entries older than the TTL. Safe to call
// anytime, idempotent.
func (f *Fetcher) CleanupCache() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for key, entry := range f.cache {
		if now.Sub(entry.FetchedAt) >= f.cacheTTL {
			delete(f.cache, key)
		}
	}
}

// CleanupUnavailableSources removes availability entries whose backoff has
// expired. Safe to call anytime, idempotent.
func (f *Fetcher) CleanupUnavailableSources() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for url, entry := range f.unavailable {
		if now.After(entry.RetryAfter) {
			delete(f.unavailable, url)
		}
	}
}

// Status returns source and cache counters without performing any I/O.
func (f *Fetcher) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	unavailable := 0
	for _, entry := range f.unavailable {
		if !now.After(entry.RetryAfter) {
			unavailable++
		}
	}

	cached := 0
	for _, entry := range f.cache {
		cached += len(entry.Items)
	}

	return Status{
		TotalSources:       len(f.sources),
		AvailableSources:   len(f.sources) - unavailable,
		UnavailableSources: unavailable,
		CachedItems:        cached,
	}
}
