// Package profiler implements an embedded scope profiler. Code marks timed
// regions by name; call counts and durations accumulate per scope in a
// fixed-capacity registry, and a periodic dump writes the top scopes as
// JSON Lines through an append-only sink.
//
// The hot path (Scope, StartScope, Timer.Stop) never allocates and never
// performs I/O. Only dumps touch the sink, and only outside the registry
// lock, so the host loop is never stalled by persistence.
package profiler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTopN         = 20
	DefaultDumpInterval = 10 * time.Second
)

// Appender is the narrow sink contract the dump engine writes through. An
// implementation must create the destination if absent, append at end of
// file, and durably flush before returning.
type Appender interface {
	Append(payload []byte) error
}

// Config configures a Profiler.
type Config struct {
	// Capacity is the maximum number of distinct scopes (default 512).
	// Lookups past capacity return an invalid Handle.
	Capacity int

	// TopN is the number of scopes reported per dump (default 20).
	TopN int

	// DumpInterval is the periodic dump cadence checked by Tick
	// (default 10s).
	DumpInterval time.Duration

	// DrainOnDump resets every scope's counters after a dump snapshot, so
	// each dump reports a window rather than lifetime totals. Off by
	// default: dumps are then idempotent and a dropped write loses nothing.
	DrainOnDump bool

	// ResetOnEnable clears accumulated counters when the profiler is
	// re-enabled after a disable. Cached handles stay valid either way.
	ResetOnEnable bool

	// Sink receives serialized dump blocks. Required.
	Sink Appender

	// Logger carries the profiler's own diagnostics. It is deliberately a
	// separate channel from Sink so the profiler never logs through the
	// file it is persisting to. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Profiler owns the scope registry and the dump schedule. Construct one with
// New and hold it in the host; there is no package-level instance.
type Profiler struct {
	mu       sync.Mutex // guards reg, its records, and lastDump
	reg      *registry
	lastDump time.Time

	enabled atomic.Bool

	topN     int
	interval time.Duration
	drain    bool
	resetOn  bool
	sink     Appender
	log      zerolog.Logger

	now func() time.Time // swapped out by tests
}

// New constructs an enabled profiler. The first Tick after DumpInterval has
// elapsed performs the first dump.
func New(cfg Config) (*Profiler, error) {
	if cfg.Sink == nil {
		return nil, errors.New("profiler: sink is required")
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.DumpInterval <= 0 {
		cfg.DumpInterval = DefaultDumpInterval
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	p := &Profiler{
		reg:      newRegistry(cfg.Capacity),
		topN:     cfg.TopN,
		interval: cfg.DumpInterval,
		drain:    cfg.DrainOnDump,
		resetOn:  cfg.ResetOnEnable,
		sink:     cfg.Sink,
		log:      logger,
		now:      time.Now,
	}
	p.lastDump = p.now()
	p.enabled.Store(true)
	return p, nil
}

// Scope returns the handle for name, registering it on first use. The handle
// stays valid until Shutdown; callers should look it up once and cache it.
// When the registry is full the returned handle is invalid and every timing
// operation through it is a no-op.
func (p *Profiler) Scope(name string) Handle {
	p.mu.Lock()
	rec := p.reg.lookupOrCreate(name)
	p.mu.Unlock()
	if rec == nil {
		p.log.Warn().Str("scope", name).Msg("scope registry full, not tracked")
	}
	return Handle{rec: rec}
}

// Precreate registers the given scope names up front so hot paths find
// existing records on first use. Safe to call repeatedly.
func (p *Profiler) Precreate(names ...string) {
	for _, name := range names {
		p.Scope(name)
	}
}

// SetEnabled switches recording and periodic dumping on or off. Disabling
// flushes one final dump; re-enabling clears accumulated counters only when
// the profiler was configured with ResetOnEnable.
func (p *Profiler) SetEnabled(enabled bool) {
	if p.enabled.Swap(enabled) == enabled {
		return
	}
	if !enabled {
		if err := p.dump(); err != nil {
			p.log.Warn().Err(err).Msg("final dump on disable failed")
		}
		return
	}
	p.mu.Lock()
	if p.resetOn {
		p.reg.clearCounts()
	}
	p.lastDump = p.now()
	p.mu.Unlock()
}

// Enabled reports whether the profiler is currently recording.
func (p *Profiler) Enabled() bool { return p.enabled.Load() }

// Tick drives the dump schedule; call it once per host loop iteration. It is
// a no-op while disabled. The last-dump timestamp advances on every attempt,
// successful or not, so a failing sink is retried at the normal cadence
// instead of every frame.
func (p *Profiler) Tick() {
	if !p.enabled.Load() {
		return
	}
	now := p.now()
	p.mu.Lock()
	due := now.Sub(p.lastDump) >= p.interval
	if due {
		p.lastDump = now
	}
	p.mu.Unlock()
	if !due {
		return
	}
	if err := p.dump(); err != nil {
		p.log.Warn().Err(err).Msg("periodic dump dropped")
	}
}

// ForceDump bypasses the interval check and dumps immediately. Unlike Tick
// it surfaces the sink error to the caller.
func (p *Profiler) ForceDump() error {
	p.mu.Lock()
	p.lastDump = p.now()
	p.mu.Unlock()
	return p.dump()
}

// Shutdown flushes one final dump (if enabled) and resets the registry.
// Handles obtained before Shutdown must not be used afterwards.
func (p *Profiler) Shutdown() error {
	var err error
	if p.enabled.Swap(false) {
		err = p.dump()
	}
	p.mu.Lock()
	p.reg.reset()
	p.mu.Unlock()
	return err
}

// record folds one completed timing into rec. The three fields move as a
// group under the subsystem mutex, so a concurrent snapshot sees the record
// fully before or fully after this update, never in between.
func (p *Profiler) record(rec *ScopeStats, elapsedNS uint64) {
	if !p.enabled.Load() {
		return
	}
	p.mu.Lock()
	rec.calls++
	rec.totalNS += elapsedNS
	if elapsedNS > rec.maxNS {
		rec.maxNS = elapsedNS
	}
	p.mu.Unlock()
}
