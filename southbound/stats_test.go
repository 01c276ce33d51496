package southbound

import (
	"sync/atomic"
	"testing"
)

func TestStatsSnapshotMatchesHeader(t *testing.T) {
	var s Stats
	if len(s.Header()) != len(s.ToSlice()) {
		t.Fatalf("header has %d columns, snapshot %d", len(s.Header()), len(s.ToSlice()))
	}

	atomic.AddUint64(&s.PacketsIn, 3)
	atomic.AddUint64(&s.MalformedFrames, 1)

	row := s.ToSlice()
	if row[0] != "3" {
		t.Fatalf("PacketsIn column = %q, want 3", row[0])
	}
	if row[len(row)-1] != "1" {
		t.Fatalf("MalformedFrames column = %q, want 1", row[len(row)-1])
	}
}
