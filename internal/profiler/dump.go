package profiler

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/multierr"
)

// DumpRecord is the reported projection of one scope: its raw counters plus
// the derived average and share of the snapshot's grand total. Records exist
// only for the duration of a dump or a Top call.
type DumpRecord struct {
	Scope     string  `json:"scope"`
	Calls     uint64  `json:"calls"`
	TotalMS   float64 `json:"total_ms"`
	AvgMS     float64 `json:"avg_ms"`
	MaxMS     float64 `json:"max_ms"`
	PctTotal  float64 `json:"pct_total"`
	Timestamp string  `json:"timestamp"`
}

const timestampLayout = "2006-01-02T15:04:05Z07:00"

// snapshot copies every record out of the registry and releases the lock
// before any sorting or I/O happens. When drain is set the counters are
// cleared inside the same critical section, so no completed timing can fall
// between the copy and the clear. Only real dumps drain; Top never does.
func (p *Profiler) snapshot(drain bool) []ScopeStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reg.count == 0 {
		return nil
	}
	out := make([]ScopeStats, p.reg.count)
	copy(out, p.reg.arena[:p.reg.count])
	if drain {
		p.reg.clearCounts()
	}
	return out
}

// rank turns a snapshot into the top-n dump records: grand total, stable
// sort by total descending (ties keep discovery order), truncate, then
// derive averages and percentages. Scopes that never completed a timing are
// skipped.
func rank(snap []ScopeStats, n int, ts time.Time) []DumpRecord {
	active := snap[:0]
	for _, s := range snap {
		if s.calls > 0 {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return nil
	}

	var grandNS uint64
	for _, s := range active {
		grandNS += s.totalNS
	}

	sort.SliceStable(active, func(i, j int) bool {
		return active[i].totalNS > active[j].totalNS
	})
	if len(active) > n {
		active = active[:n]
	}

	stamp := ts.UTC().Format(timestampLayout)
	recs := make([]DumpRecord, len(active))
	for i, s := range active {
		avg := float64(0)
		if s.calls > 0 {
			avg = float64(s.totalNS) / float64(s.calls) / 1e6
		}
		pct := float64(0)
		if grandNS > 0 {
			pct = float64(s.totalNS) / float64(grandNS) * 100
		}
		recs[i] = DumpRecord{
			Scope:     s.name,
			Calls:     s.calls,
			TotalMS:   float64(s.totalNS) / 1e6,
			AvgMS:     avg,
			MaxMS:     float64(s.maxNS) / 1e6,
			PctTotal:  pct,
			Timestamp: stamp,
		}
	}
	return recs
}

// Top returns the current top-n scopes ranked by total duration, without
// touching the sink. Useful for live display in the host.
func (p *Profiler) Top(n int) []DumpRecord {
	return rank(p.snapshot(false), n, p.now())
}

// dump serializes the ranked snapshot as one JSON object per line and hands
// the whole block to the sink in a single append. With nothing recorded it
// is a no-op. Errors are returned for the caller to log or swallow; nothing
// propagates into the host loop uninvited.
func (p *Profiler) dump() error {
	recs := rank(p.snapshot(p.drain), p.topN, p.now())
	if len(recs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	var encErr error
	for i := range recs {
		// Encode appends the newline that terminates each record.
		encErr = multierr.Append(encErr, enc.Encode(&recs[i]))
	}
	if encErr != nil {
		return encErr
	}
	return p.sink.Append(buf.Bytes())
}
