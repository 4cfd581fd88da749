package profiler

import (
	"github.com/zeebo/xxh3"
)

// DefaultCapacity is the maximum number of distinct scopes tracked when the
// configuration does not say otherwise.
const DefaultCapacity = 512

// ScopeStats holds the aggregated counters for one named scope. Records live
// in a fixed arena owned by the registry and never move, so a pointer
// obtained at first lookup stays valid until the registry is reset.
type ScopeStats struct {
	name    string
	calls   uint64
	totalNS uint64
	maxNS   uint64
}

// Name returns the scope's identity.
func (s *ScopeStats) Name() string { return s.name }

// registry is the fixed-capacity scope table. It does no locking of its own;
// all access happens under the owning Profiler's mutex.
type registry struct {
	arena []ScopeStats // backing array, never reallocated
	count int          // records in use; arena order is discovery order
	index []int32      // open-addressed name index into arena, -1 = empty
	mask  uint64
}

func newRegistry(capacity int) *registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// Index sized to at least twice the arena keeps the probe load factor
	// at or below 0.5, so a scan always terminates on an empty slot.
	size := 1
	for size < capacity*2 {
		size <<= 1
	}
	r := &registry{
		arena: make([]ScopeStats, capacity),
		index: make([]int32, size),
		mask:  uint64(size - 1),
	}
	for i := range r.index {
		r.index[i] = -1
	}
	return r
}

// lookupOrCreate returns the record for name, creating one on first sight.
// Returns nil when the arena is full; existing records are unaffected.
func (r *registry) lookupOrCreate(name string) *ScopeStats {
	h := xxh3.HashString(name)
	for i := h & r.mask; ; i = (i + 1) & r.mask {
		slot := r.index[i]
		if slot < 0 {
			if r.count == len(r.arena) {
				return nil
			}
			rec := &r.arena[r.count]
			rec.name = name
			r.index[i] = int32(r.count)
			r.count++
			return rec
		}
		if r.arena[slot].name == name {
			return &r.arena[slot]
		}
	}
}

// reset clears every record and frees all slots for reuse. Handles returned
// before the reset must not be used afterwards.
func (r *registry) reset() {
	for i := 0; i < r.count; i++ {
		r.arena[i] = ScopeStats{}
	}
	r.count = 0
	for i := range r.index {
		r.index[i] = -1
	}
}

// clearCounts zeroes the counters of every record but keeps the scopes
// registered, so cached handles stay valid. Used by drain-on-dump and by
// re-enable with ResetOnEnable.
func (r *registry) clearCounts() {
	for i := 0; i < r.count; i++ {
		rec := &r.arena[i]
		rec.calls = 0
		rec.totalNS = 0
		rec.maxNS = 0
	}
}
