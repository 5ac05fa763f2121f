package progress

import "testing"

func TestReportInvokesCallbackOnEveryFileForSmallTotals(t *testing.T) {
	var calls int
	r := New(3, 300, func(filesDone, bytesDone uint64) {
		calls++
	})
	r.Report(100)
	r.Report(100)
	r.Report(100)

	if calls != 3 {
		t.Fatalf("expected a callback per file on a small total, got %d calls", calls)
	}
}

func TestReportThrottlesOnLargeTotals(t *testing.T) {
	var calls int
	total := uint64(1_000_000)
	r := New(total, total, func(filesDone, bytesDone uint64) {
		calls++
	})
	for i := uint64(0); i < total; i++ {
		r.Report(1)
	}

	if calls == 0 {
		t.Fatal("expected at least one callback invocation")
	}
	if calls > 150 {
		t.Fatalf("expected throttled callback count (~100), got %d", calls)
	}
}

func TestReportNilCallbackIsNoOp(t *testing.T) {
	r := New(10, 1000, nil)
	r.Report(100) // must not panic
}

func TestETAUnknownBeforeStart(t *testing.T) {
	r := New(10, 1000, func(uint64, uint64) {})
	if got := r.ETA(); got != "unknown" {
		t.Fatalf("expected \"unknown\" before any progress, got %q", got)
	}
}

func TestETAUnknownWithZeroTotalBytes(t *testing.T) {
	r := New(10, 0, func(uint64, uint64) {})
	r.Start()
	r.Report(0)
	if got := r.ETA(); got != "unknown" {
		t.Fatalf("expected \"unknown\" with zero total bytes, got %q", got)
	}
}
