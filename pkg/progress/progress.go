// Package progress throttles periodic progress callbacks for a sync run,
// invoking a caller-supplied sink at least every 1% of total work or every
// completed file, whichever is less frequent.
package progress

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Callback receives cumulative progress: the number of operations completed
// and the number of bytes transferred so far.
type Callback func(filesDone, bytesDone uint64)

// Reporter throttles calls to a Callback against a known total so that
// fast-moving small-file runs don't flood the sink with updates.
type Reporter struct {
	mu sync.Mutex

	totalFiles uint64
	totalBytes uint64
	callback   Callback

	filesDone     uint64
	bytesDone     uint64
	lastReportPct uint64
	start         time.Time
}

// New constructs a Reporter for a run expected to process totalFiles files
// and totalBytes bytes of source data. With a nil callback, Report still
// accumulates counts (which ETA uses) but never invokes anything.
func New(totalFiles, totalBytes uint64, callback Callback) *Reporter {
	return &Reporter{
		totalFiles: totalFiles,
		totalBytes: totalBytes,
		callback:   callback,
		start:      time.Time{},
	}
}

// Start records the run's start time, used by ETA.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = time.Now()
}

// Report records the completion of one operation transferring byteCount
// bytes, invoking the callback if cumulative progress has advanced by at
// least 1% of the total work since the last report, or if this completion
// brings the file count to the expected total.
func (r *Reporter) Report(byteCount uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.filesDone++
	r.bytesDone += byteCount

	if r.callback == nil {
		return
	}

	pct := r.percentDone()
	if pct >= r.lastReportPct+1 || r.filesDone == r.totalFiles {
		r.lastReportPct = pct
		r.callback(r.filesDone, r.bytesDone)
	}
}

// percentDone computes overall progress as an integer percentage, favoring
// byte progress when a meaningful byte total is known (file counts alone
// under-represent progress on trees dominated by a few huge files).
func (r *Reporter) percentDone() uint64 {
	if r.totalBytes > 0 {
		return (r.bytesDone * 100) / r.totalBytes
	}
	if r.totalFiles > 0 {
		return (r.filesDone * 100) / r.totalFiles
	}
	return 100
}

// ETA returns a human-readable estimated-time-remaining string based on
// elapsed time and bytes transferred so far, or "unknown" if progress or
// elapsed time is too small to extrapolate from.
func (r *Reporter) ETA() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.start.IsZero() || r.totalBytes == 0 || r.bytesDone == 0 {
		return "unknown"
	}
	elapsed := time.Since(r.start)
	if elapsed <= 0 {
		return "unknown"
	}
	rate := float64(r.bytesDone) / elapsed.Seconds()
	if rate <= 0 {
		return "unknown"
	}
	remainingBytes := float64(r.totalBytes) - float64(r.bytesDone)
	if remainingBytes <= 0 {
		return "0s"
	}
	remaining := time.Duration(remainingBytes/rate) * time.Second
	now := time.Now()
	return humanize.RelTime(now, now.Add(remaining), "", "remaining")
}
