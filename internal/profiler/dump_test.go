package profiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func parseBlock(t *testing.T, payload []byte) []DumpRecord {
	t.Helper()
	var recs []DumpRecord
	for _, line := range bytes.Split(bytes.TrimSpace(payload), []byte("\n")) {
		var rec DumpRecord
		require.NoError(t, json.Unmarshal(line, &rec))
		recs = append(recs, rec)
	}
	return recs
}

func TestDumpRecordFields(t *testing.T) {
	p, clk, ms := newTestProfiler(t, Config{})
	h := p.Scope("gpu.flush")
	timeScope(p, clk, h, 4*time.Millisecond)
	timeScope(p, clk, h, 6*time.Millisecond)

	require.NoError(t, p.ForceDump())
	recs := parseBlock(t, ms.appends[0])
	require.Len(t, recs, 1)

	rec := recs[0]
	require.Equal(t, "gpu.flush", rec.Scope)
	require.Equal(t, uint64(2), rec.Calls)
	require.InDelta(t, 10.0, rec.TotalMS, 1e-9)
	require.InDelta(t, 5.0, rec.AvgMS, 1e-9)
	require.InDelta(t, 6.0, rec.MaxMS, 1e-9)
	require.InDelta(t, 100.0, rec.PctTotal, 1e-9)
	require.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`), rec.Timestamp)
}

func TestDumpIdempotentWithoutDrain(t *testing.T) {
	p, clk, ms := newTestProfiler(t, Config{})
	timeScope(p, clk, p.Scope("a"), 3*time.Millisecond)
	timeScope(p, clk, p.Scope("b"), 5*time.Millisecond)

	require.NoError(t, p.ForceDump())
	clk.advance(42 * time.Second)
	require.NoError(t, p.ForceDump())

	first := parseBlock(t, ms.appends[0])
	second := parseBlock(t, ms.appends[1])
	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].Scope, second[i].Scope)
		require.Equal(t, first[i].Calls, second[i].Calls)
		require.Equal(t, first[i].TotalMS, second[i].TotalMS)
		require.Equal(t, first[i].AvgMS, second[i].AvgMS)
		require.Equal(t, first[i].MaxMS, second[i].MaxMS)
		require.Equal(t, first[i].PctTotal, second[i].PctTotal)
		require.NotEqual(t, first[i].Timestamp, second[i].Timestamp)
	}
}

func TestDumpPercentages(t *testing.T) {
	p, clk, ms := newTestProfiler(t, Config{})
	timeScope(p, clk, p.Scope("ten"), 10*time.Millisecond)
	timeScope(p, clk, p.Scope("thirty"), 30*time.Millisecond)
	timeScope(p, clk, p.Scope("sixty"), 60*time.Millisecond)

	require.NoError(t, p.ForceDump())
	recs := parseBlock(t, ms.appends[0])
	require.Len(t, recs, 3)

	// Sorted by total descending.
	require.Equal(t, "sixty", recs[0].Scope)
	require.Equal(t, "thirty", recs[1].Scope)
	require.Equal(t, "ten", recs[2].Scope)
	require.InDelta(t, 60.0, recs[0].PctTotal, 1e-9)
	require.InDelta(t, 30.0, recs[1].PctTotal, 1e-9)
	require.InDelta(t, 10.0, recs[2].PctTotal, 1e-9)
}

func TestDumpTopNTruncation(t *testing.T) {
	const topN = 5
	p, clk, ms := newTestProfiler(t, Config{TopN: topN})
	for i := 1; i <= topN+5; i++ {
		timeScope(p, clk, p.Scope(fmt.Sprintf("scope-%02d", i)), time.Duration(i)*time.Millisecond)
	}

	require.NoError(t, p.ForceDump())
	recs := parseBlock(t, ms.appends[0])
	require.Len(t, recs, topN)

	// The topN largest totals, descending.
	for i, rec := range recs {
		require.Equal(t, fmt.Sprintf("scope-%02d", topN+5-i), rec.Scope)
	}
	for i := 1; i < len(recs); i++ {
		require.GreaterOrEqual(t, recs[i-1].TotalMS, recs[i].TotalMS)
	}
}

func TestDumpTieBreakKeepsDiscoveryOrder(t *testing.T) {
	p, clk, ms := newTestProfiler(t, Config{})
	timeScope(p, clk, p.Scope("later-name"), 5*time.Millisecond)
	timeScope(p, clk, p.Scope("earlier-name"), 5*time.Millisecond)

	require.NoError(t, p.ForceDump())
	recs := parseBlock(t, ms.appends[0])
	require.Equal(t, "later-name", recs[0].Scope)
	require.Equal(t, "earlier-name", recs[1].Scope)
}

func TestDumpSkipsIdleScopes(t *testing.T) {
	p, clk, ms := newTestProfiler(t, Config{})
	p.Precreate("idle.one", "idle.two")
	timeScope(p, clk, p.Scope("busy"), time.Millisecond)

	require.NoError(t, p.ForceDump())
	recs := parseBlock(t, ms.appends[0])
	require.Len(t, recs, 1)
	require.Equal(t, "busy", recs[0].Scope)
}

func TestTopDoesNotDrain(t *testing.T) {
	p, clk, ms := newTestProfiler(t, Config{DrainOnDump: true})
	h := p.Scope("live")
	timeScope(p, clk, h, 2*time.Millisecond)

	top := p.Top(10)
	require.Len(t, top, 1)
	require.Equal(t, uint64(1), h.rec.calls)

	// The real dump still sees (and then drains) the data.
	require.NoError(t, p.ForceDump())
	require.Len(t, ms.appends, 1)
	require.Equal(t, uint64(0), h.rec.calls)
}

func TestTopOnEmptyProfiler(t *testing.T) {
	p, _, _ := newTestProfiler(t, Config{})
	require.Empty(t, p.Top(5))
}
