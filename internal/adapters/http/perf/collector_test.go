package perf

import (
	"testing"
	"time"
)

// TestRecord_Counts verifies entries are counted.
func TestRecord_Counts(t *testing.T) {
	c := NewCollector(8)
	for i := 0; i < 3; i++ {
		c.Record(Entry{Kind: KindQuery, Path: "ExecContext", DurationMs: 1, Timestamp: time.Now()})
	}
	if c.TotalRecorded() != 3 {
		t.Errorf("TotalRecorded = %d, want 3", c.TotalRecorded())
	}
}

// TestRecord_Wraps verifies the ring buffer overwrites oldest entries.
func TestRecord_Wraps(t *testing.T) {
	c := NewCollector(2)
	now := time.Now()
	c.Record(Entry{Kind: KindRequest, Path: "/a", DurationMs: 1, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "/b", DurationMs: 1, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "/c", DurationMs: 1, Timestamp: now})

	sum := c.Summarize(10)
	if sum.TotalRecorded != 3 {
		t.Errorf("TotalRecorded = %d, want 3", sum.TotalRecorded)
	}
	if len(sum.SlowestPaths) != 2 {
		t.Errorf("expected 2 retained paths after wrap, got %d", len(sum.SlowestPaths))
	}
	for _, p := range sum.SlowestPaths {
		if p.Path == "/a" {
			t.Error("oldest entry should have been overwritten")
		}
	}
}

// TestSummarize_SeparatesKinds verifies queries and requests aggregate separately.
func TestSummarize_SeparatesKinds(t *testing.T) {
	c := NewCollector(8)
	now := time.Now()
	c.Record(Entry{Kind: KindRequest, Path: "/api/workspace", DurationMs: 4, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "/api/workspace", DurationMs: 6, Timestamp: now})
	c.Record(Entry{Kind: KindQuery, Path: "ExecContext", DurationMs: 2, Timestamp: now})

	sum := c.Summarize(10)
	if len(sum.SlowestPaths) != 1 || sum.SlowestPaths[0].AvgMs != 5 {
		t.Errorf("unexpected request stats: %+v", sum.SlowestPaths)
	}
	if len(sum.SlowestQueries) != 1 || sum.SlowestQueries[0].Count != 1 {
		t.Errorf("unexpected query stats: %+v", sum.SlowestQueries)
	}
}
