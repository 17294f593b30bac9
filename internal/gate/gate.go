// Package gate collapses duplicate and rapid-fire submissions of the same
// logical request: one computation per fingerprint at a time, and a short
// debounce cache of completed results.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pinkittys/flowerstory/internal/observability"
)

// ErrTooManyRequests is returned by callers when a duplicate request arrives
// while an identical one is in flight and no cached result exists yet.
var ErrTooManyRequests = errors.New("duplicate request in progress, retry shortly")

const (
	defaultDebounceWindow = 500 * time.Millisecond
	defaultStaleInFlight  = 30 * time.Second
	defaultRetentionRatio = 10
)

// Config holds gate configuration.
type Config struct {
	// DebounceWindow is how long a completed result is served to duplicates.
	DebounceWindow time.Duration
	// StaleInFlight bounds how long an in-flight entry may block its
	// fingerprint; zero uses the default, negative disables the bound.
	StaleInFlight time.Duration
	// RetentionRatio multiplies DebounceWindow to get the age at which cache
	// entries are physically evicted.
	RetentionRatio int
	// Clock is injectable for tests.
	Clock func() time.Time
}

// DefaultConfig returns the default gate settings.
func DefaultConfig() Config {
	return Config{
		DebounceWindow: defaultDebounceWindow,
		StaleInFlight:  defaultStaleInFlight,
		RetentionRatio: defaultRetentionRatio,
		Clock:          time.Now,
	}
}

type inFlightEntry struct {
	startedAt time.Time
	done      chan struct{}
}

type cachedResult struct {
	payload     []byte
	completedAt time.Time
}

// Stats is a point-in-time view of the gate maps.
type Stats struct {
	InFlight int `json:"inFlight"`
	Cached   int `json:"cached"`
}

// Gate is the request deduplication gate. All map access is serialized by mu.
type Gate struct {
	logger *observability.Logger
	config Config

	mu        sync.Mutex
	inFlight  map[Fingerprint]*inFlightEntry
	cache     map[Fingerprint]cachedResult
	lastSweep time.Time
}

// New creates a gate, filling zero config fields with defaults.
func New(logger *observability.Logger, config Config) *Gate {
	def := DefaultConfig()
	if config.DebounceWindow <= 0 {
		config.DebounceWindow = def.DebounceWindow
	}
	if config.StaleInFlight == 0 {
		config.StaleInFlight = def.StaleInFlight
	}
	if config.RetentionRatio <= 0 {
		config.RetentionRatio = def.RetentionRatio
	}
	if config.Clock == nil {
		config.Clock = def.Clock
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Gate{
		logger:   logger.WithComponent("gate"),
		config:   config,
		inFlight: make(map[Fingerprint]*inFlightEntry),
		cache:    make(map[Fingerprint]cachedResult),
	}
}

// DebounceWindow returns the configured debounce window.
func (g *Gate) DebounceWindow() time.Duration {
	return g.config.DebounceWindow
}

// ShouldProcess reports whether the caller should compute fp. It returns false
// when fp is in flight or completed within the debounce window; otherwise it
// registers fp as in flight and returns true.
func (g *Gate) ShouldProcess(fp Fingerprint) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.config.Clock()

	if entry, ok := g.inFlight[fp]; ok {
		if !g.isStale(entry, now) {
			return false
		}
		g.logger.Warn().
			Str("fingerprint", fp.Short()).
			Dur("age", now.Sub(entry.startedAt)).
			Msg("Dropping stale in-flight entry")
		g.releaseLocked(fp, entry)
	}

	if res, ok := g.cache[fp]; ok {
		if now.Sub(res.completedAt) < g.config.DebounceWindow {
			return false
		}
		delete(g.cache, fp)
	}

	g.inFlight[fp] = &inFlightEntry{startedAt: now, done: make(chan struct{})}
	return true
}

// GetCached returns the cached result for fp if it completed within the
// debounce window. Expired entries are evicted on access.
func (g *Gate) GetCached(fp Fingerprint) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.cache[fp]
	if !ok {
		return nil, false
	}
	if g.config.Clock().Sub(res.completedAt) >= g.config.DebounceWindow {
		delete(g.cache, fp)
		return nil, false
	}
	return clone(res.payload), true
}

// MarkCompleted clears fp from the in-flight set and caches result. It is
// tolerated without a preceding ShouldProcess.
func (g *Gate) MarkCompleted(fp Fingerprint, result []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.config.Clock()
	if entry, ok := g.inFlight[fp]; ok {
		g.releaseLocked(fp, entry)
	}
	g.cache[fp] = cachedResult{payload: clone(result), completedAt: now}

	// Amortized: scan at most once per debounce window.
	if now.Sub(g.lastSweep) >= g.config.DebounceWindow {
		g.evictLocked(now)
	}
}

// Abandon clears fp from the in-flight set without caching anything, for
// computations that failed.
func (g *Gate) Abandon(fp Fingerprint) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if entry, ok := g.inFlight[fp]; ok {
		g.releaseLocked(fp, entry)
	}
}

// Wait blocks until fp is no longer in flight or ctx is done. It returns
// immediately when fp is not in flight.
func (g *Gate) Wait(ctx context.Context, fp Fingerprint) error {
	g.mu.Lock()
	entry, ok := g.inFlight[fp]
	g.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-entry.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep evicts cache entries past retention and stale in-flight entries. It
// returns the number of entries removed.
func (g *Gate) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.evictLocked(g.config.Clock())
}

// Run sweeps every interval until ctx is cancelled.
func (g *Gate) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = g.config.DebounceWindow * time.Duration(g.config.RetentionRatio)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.logger.Debug().Int("evicted", n).Msg("Gate sweep")
			}
		}
	}
}

// Stats returns the current map sizes.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Stats{InFlight: len(g.inFlight), Cached: len(g.cache)}
}

func (g *Gate) evictLocked(now time.Time) int {
	retention := g.config.DebounceWindow * time.Duration(g.config.RetentionRatio)
	removed := 0

	for fp, res := range g.cache {
		if now.Sub(res.completedAt) > retention {
			delete(g.cache, fp)
			removed++
		}
	}

	for fp, entry := range g.inFlight {
		if g.isStale(entry, now) {
			g.releaseLocked(fp, entry)
			removed++
		}
	}

	g.lastSweep = now
	return removed
}

func (g *Gate) isStale(entry *inFlightEntry, now time.Time) bool {
	return g.config.StaleInFlight > 0 && now.Sub(entry.startedAt) > g.config.StaleInFlight
}

func (g *Gate) releaseLocked(fp Fingerprint, entry *inFlightEntry) {
	delete(g.inFlight, fp)
	close(entry.done)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
