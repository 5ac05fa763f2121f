package config

import (
	"testing"

	"github.com/treesync/treesync/pkg/codec"
)

func baseOptions() Options {
	return Options{Source: "/tmp/src", Destination: "/tmp/dst"}
}

func TestResolveRequiresSourceAndDestination(t *testing.T) {
	if _, err := Resolve(Options{}); err == nil {
		t.Fatal("expected error for missing source/destination")
	}
}

func TestResolveRejectsIdenticalPaths(t *testing.T) {
	opts := baseOptions()
	opts.Destination = opts.Source
	if _, err := Resolve(opts); err == nil {
		t.Fatal("expected error for identical source and destination")
	}
}

func TestResolveMirrorImpliesRecurseAndPurge(t *testing.T) {
	opts := baseOptions()
	opts.Mirror = true
	resolved, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !resolved.Recurse || !resolved.Purge {
		t.Fatal("expected --mir to imply recurse and purge")
	}
}

func TestResolveDefaultCopyFlags(t *testing.T) {
	resolved, err := Resolve(baseOptions())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.MetadataCopy == 0 {
		t.Fatal("expected default copy flags to resolve to non-zero fields")
	}
}

func TestResolveRejectsInvertedSizeBounds(t *testing.T) {
	opts := baseOptions()
	opts.MinSize = 100
	opts.MaxSize = 10
	if _, err := Resolve(opts); err == nil {
		t.Fatal("expected error for min size exceeding max size")
	}
}

func TestResolveRejectsInvalidCopyFlags(t *testing.T) {
	opts := baseOptions()
	opts.CopyFlags = "ZZZ"
	if _, err := Resolve(opts); err == nil {
		t.Fatal("expected error for invalid copy flags")
	}
}

func TestResolveCompressDefaultsToZstd(t *testing.T) {
	opts := baseOptions()
	opts.Compress = true
	resolved, err := Resolve(opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Codec == nil {
		t.Fatal("expected a codec to be configured when Compress is set")
	}
	if resolved.Codec.Algorithm() != codec.Zstd {
		t.Fatalf("expected Compress to default to zstd, got %v", resolved.Codec.Algorithm())
	}
}

func TestResolveNoCompressionByDefault(t *testing.T) {
	resolved, err := Resolve(baseOptions())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Codec != nil {
		t.Fatal("expected no codec when Compress is not set")
	}
}
