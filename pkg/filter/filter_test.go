package filter

import "testing"

func mustNew(t *testing.T, cfg Config) *Filter {
	t.Helper()
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestIncludeNoRules(t *testing.T) {
	f := mustNew(t, Config{})
	if !f.Include("a/b.txt", KindFile, 10) {
		t.Fatal("expected inclusion with no rules configured")
	}
}

func TestExcludeFilesByBasename(t *testing.T) {
	f := mustNew(t, Config{ExcludeFiles: []string{"*.log"}})
	if f.Include("a/b.txt", KindFile, 10) != true {
		t.Fatal("b.txt should not match *.log")
	}
	if f.Include("a/b.log", KindFile, 10) {
		t.Fatal("b.log should be excluded by *.log")
	}
}

func TestExcludeFilesByRelativePath(t *testing.T) {
	f := mustNew(t, Config{ExcludeFiles: []string{"a/*.txt"}})
	if f.Include("a/b.txt", KindFile, 10) {
		t.Fatal("a/b.txt should be excluded")
	}
	if !f.Include("c/b.txt", KindFile, 10) {
		t.Fatal("c/b.txt should not be excluded")
	}
}

func TestExcludeDirsIsRecursive(t *testing.T) {
	f := mustNew(t, Config{ExcludeDirs: []string{"node_modules"}})
	if f.Include("node_modules", KindDirectory, 0) {
		t.Fatal("node_modules itself should be excluded")
	}
	if f.Include("node_modules/pkg/index.js", KindFile, 5) {
		t.Fatal("descendants of an excluded directory should be excluded")
	}
	if !f.Include("src/index.js", KindFile, 5) {
		t.Fatal("unrelated path should not be excluded")
	}
}

func TestSizeBoundsApplyOnlyToFiles(t *testing.T) {
	f := mustNew(t, Config{MinSize: 100, MaxSize: 200})
	if f.Include("small.bin", KindFile, 10) {
		t.Fatal("file below MinSize should be excluded")
	}
	if f.Include("large.bin", KindFile, 1000) {
		t.Fatal("file above MaxSize should be excluded")
	}
	if !f.Include("ok.bin", KindFile, 150) {
		t.Fatal("file within bounds should be included")
	}
	if !f.Include("tinydir", KindDirectory, 0) {
		t.Fatal("size bounds must not apply to directories")
	}
}

func TestMonotonicity(t *testing.T) {
	base := mustNew(t, Config{})
	stricter := mustNew(t, Config{ExcludeFiles: []string{"*.tmp"}})

	paths := []struct {
		rel  string
		kind Kind
		size uint64
	}{
		{"a.txt", KindFile, 10},
		{"a.tmp", KindFile, 10},
		{"dir/b.tmp", KindFile, 5},
	}
	for _, p := range paths {
		if stricter.Include(p.rel, p.kind, p.size) && !base.Include(p.rel, p.kind, p.size) {
			t.Fatalf("adding an exclude pattern increased inclusion for %q", p.rel)
		}
	}
}

func TestInvalidPattern(t *testing.T) {
	if _, err := New(Config{ExcludeFiles: []string{"["}}); err == nil {
		t.Fatal("expected error for invalid glob pattern")
	}
}

func TestInvalidSizeBounds(t *testing.T) {
	if _, err := New(Config{MinSize: 200, MaxSize: 100}); err == nil {
		t.Fatal("expected error when MinSize exceeds MaxSize")
	}
}
