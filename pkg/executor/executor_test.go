package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/treesync/treesync/pkg/logging"
	"github.com/treesync/treesync/pkg/metadata"
	"github.com/treesync/treesync/pkg/plan"
	"github.com/treesync/treesync/pkg/retry"
	"github.com/treesync/treesync/pkg/scan"
	"github.com/treesync/treesync/pkg/stats"
)

func buildPlan(t *testing.T, srcRoot, dstRoot string, purge bool) plan.Plan {
	t.Helper()
	srcEntries, err := scan.Walk(context.Background(), srcRoot, scan.Options{IncludeEmptyDirs: true})
	if err != nil {
		t.Fatalf("scan.Walk(src): %v", err)
	}
	dstEntries, err := scan.Walk(context.Background(), dstRoot, scan.Options{IncludeEmptyDirs: true})
	if err != nil {
		t.Fatalf("scan.Walk(dst): %v", err)
	}
	return plan.Diff(srcEntries, dstEntries, plan.Options{Purge: purge})
}

func newTestExecutor(t *testing.T, srcRoot, dstRoot string, purge, move bool) *Executor {
	t.Helper()
	e, err := New(Options{
		SourceRoot: srcRoot,
		DestRoot:   dstRoot,
		Purge:      purge,
		MoveFiles:  move,
		Metadata:   metadata.NewCopier(metadata.DefaultFields, logging.RootLogger),
		Retry:      retry.Config{MaxRetries: 1, WaitSeconds: 0},
		Stats:      stats.New(),
		Logger:     logging.RootLogger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestRunCreatesNewFilesAndDirectories(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.MkdirAll(filepath.Join(src, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	p := buildPlan(t, src, dst, false)
	e := newTestExecutor(t, src, dst, false, false)
	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "sub", "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestRunUpdatesChangedFile(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("new content"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "a.txt"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	p := buildPlan(t, src, dst, false)
	e := newTestExecutor(t, src, dst, false, false)
	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "new content" {
		t.Fatalf("got %q, want %q", got, "new content")
	}
}

func TestRunDeltaUpdateReconstructsExactBytes(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	base := make([]byte, 10000)
	for i := range base {
		base[i] = byte(i % 251)
	}
	if err := os.WriteFile(filepath.Join(dst, "big.bin"), base, 0644); err != nil {
		t.Fatal(err)
	}
	modified := append([]byte(nil), base...)
	copy(modified[5000:5010], []byte("XXXXXXXXXX"))
	if err := os.WriteFile(filepath.Join(src, "big.bin"), modified, 0644); err != nil {
		t.Fatal(err)
	}

	// Bump source mtime so the Differ's size/mtime heuristic detects a
	// difference even though the file sizes match.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(src, "big.bin"), future, future); err != nil {
		t.Fatal(err)
	}

	srcEntries, err := scan.Walk(context.Background(), src, scan.Options{})
	if err != nil {
		t.Fatalf("scan.Walk(src): %v", err)
	}
	dstEntries, err := scan.Walk(context.Background(), dst, scan.Options{})
	if err != nil {
		t.Fatalf("scan.Walk(dst): %v", err)
	}
	p := plan.Diff(srcEntries, dstEntries, plan.Options{})

	foundDelta := false
	for _, op := range p {
		if op.Type == plan.OpUpdate && op.UseDelta {
			foundDelta = true
		}
	}
	if !foundDelta {
		t.Fatal("expected the differ to select a delta-eligible update for a large, mostly-unchanged file")
	}

	e := newTestExecutor(t, src, dst, false, false)
	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "big.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(modified) {
		t.Fatal("delta-reconstructed destination does not match source byte-for-byte")
	}
}

func TestRunPurgeDeletesDestOnlyEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "keep.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "keep.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "stale.txt"), []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dst, "stale-dir"), 0755); err != nil {
		t.Fatal(err)
	}

	p := buildPlan(t, src, dst, true)
	e := newTestExecutor(t, src, dst, true, false)
	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "stale.txt")); !os.IsNotExist(err) {
		t.Fatal("expected stale.txt to be purged")
	}
	if _, err := os.Stat(filepath.Join(dst, "stale-dir")); !os.IsNotExist(err) {
		t.Fatal("expected stale-dir to be purged")
	}
	if _, err := os.Stat(filepath.Join(dst, "keep.txt")); err != nil {
		t.Fatal("expected keep.txt to survive purge")
	}
}

func TestRunMoveModeRemovesSource(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	p := buildPlan(t, src, dst, false)
	e := newTestExecutor(t, src, dst, false, true)
	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(src, "a.txt")); !os.IsNotExist(err) {
		t.Fatal("expected source file to be removed after move")
	}
	if _, err := os.Stat(filepath.Join(dst, "a.txt")); err != nil {
		t.Fatal("expected destination file to exist after move")
	}
}

func TestRunCreatesSymlink(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "target.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("target.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	p := buildPlan(t, src, dst, false)
	e := newTestExecutor(t, src, dst, false, false)
	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := os.Readlink(filepath.Join(dst, "link"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if got != "target.txt" {
		t.Fatalf("got link target %q, want %q", got, "target.txt")
	}
}

func TestRunFailedOperationRecordsWarningAndContinues(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "b.txt"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}

	p := buildPlan(t, src, dst, false)

	// Corrupt one operation's Rel to name a file that does not exist in the
	// source root, forcing a stat failure partway through the run.
	for i := range p {
		if p[i].Rel == "a.txt" {
			p[i].Rel = "does-not-exist.txt"
		}
	}

	st := stats.New()
	e, err := New(Options{
		SourceRoot: src,
		DestRoot:   dst,
		Retry:      retry.Config{MaxRetries: 0},
		Stats:      st,
		Logger:     logging.RootLogger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Run(context.Background(), p); err != nil {
		t.Fatalf("Run should not fail the whole plan on a single operation error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "b.txt")); err != nil {
		t.Fatal("expected the unaffected operation to still succeed")
	}
	if len(st.Warnings()) == 0 {
		t.Fatal("expected a warning to be recorded for the failed operation")
	}
}
