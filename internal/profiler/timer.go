package profiler

import "time"

// Handle is a stable reference to a scope's statistics record. The zero
// Handle is invalid and makes every timing operation a no-op, which is what
// callers get when the registry is full.
type Handle struct {
	rec *ScopeStats
}

// Valid reports whether the handle is bound to a record.
func (h Handle) Valid() bool { return h.rec != nil }

// Name returns the bound scope name, or "" for an invalid handle.
func (h Handle) Name() string {
	if h.rec == nil {
		return ""
	}
	return h.rec.name
}

// Timer measures one execution of a scope. The zero value is inert. Obtain
// one from [Profiler.StartScope] and finish it with Stop on every exit path,
// typically via defer. A Timer performs no I/O and no logging.
type Timer struct {
	p     *Profiler
	rec   *ScopeStats
	start time.Time
}

// Stop folds the elapsed time into the bound record: one more call, elapsed
// added to the total, max raised if exceeded. Safe on an inert timer.
func (t Timer) Stop() {
	if t.p == nil || t.rec == nil {
		return
	}
	elapsed := t.p.now().Sub(t.start)
	if elapsed < 0 {
		// Monotonic clocks are not supposed to regress; clamp if one does.
		elapsed = 0
	}
	t.p.record(t.rec, uint64(elapsed))
}

// StartScope begins timing the scope behind h. Returns an inert Timer when
// the handle is invalid or the profiler is disabled.
func (p *Profiler) StartScope(h Handle) Timer {
	if h.rec == nil || !p.enabled.Load() {
		return Timer{}
	}
	return Timer{p: p, rec: h.rec, start: p.now()}
}

// Track is the convenience form for defer call sites:
//
//	defer p.Track("render.frame")()
//
// It looks the scope up by name on every call and allocates the returned
// closure, so hot loops should cache a Handle and use StartScope instead.
func (p *Profiler) Track(name string) func() {
	t := p.StartScope(p.Scope(name))
	return t.Stop
}
