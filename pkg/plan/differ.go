// Package plan pairs two scanned trees by relative path and produces the
// deterministic, ordered sequence of Operations (the Plan) that the
// Executor runs to make a destination tree match a source tree.
package plan

import (
	"sort"
	"strings"

	"github.com/treesync/treesync/pkg/scan"
)

// Plan is the ordered sequence of Operations produced by a Differ run.
// CreateDir operations precede any operation beneath them; Delete
// operations follow all others, files before directories, directories
// deepest-first.
type Plan []Operation

// Options configures a Diff run.
type Options struct {
	// UseHash prefers content-hash comparison over the mtime/size
	// heuristic when both entries carry a hash.
	UseHash bool
	// Purge emits Delete operations for every destination entry absent
	// from source.
	Purge bool
}

// depthOf returns rel's path component count, used to order CreateDir
// shallowest-first and directory deletes deepest-first.
func depthOf(rel string) int {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

// differs reports whether a source and destination regular-file Entry are
// considered changed.
func differs(useHash bool, s, d scan.Entry) bool {
	if useHash && s.HasContentHash() && d.HasContentHash() {
		return s.ContentHash != d.ContentHash
	}
	return s.ModTime.After(d.ModTime) || s.Size != d.Size
}

// useDelta reports whether an Update between s and d is eligible for
// block-delta patching rather than a full copy.
func useDelta(s, d scan.Entry) bool {
	const minSize = 1024
	if s.Size < minSize || d.Size < minSize {
		return false
	}
	larger := s.Size
	if d.Size > larger {
		larger = d.Size
	}
	var diff uint64
	if s.Size > d.Size {
		diff = s.Size - d.Size
	} else {
		diff = d.Size - s.Size
	}
	return float64(diff)/float64(larger) < 0.5
}

// Diff pairs src against dst by relative path and returns the ordered Plan.
// Delete operations carry the absolute destination path already recorded on
// each dst Entry by the Scanner.
func Diff(src, dst []scan.Entry, opts Options) Plan {
	dstByRel := make(map[string]scan.Entry, len(dst))
	for _, e := range dst {
		dstByRel[e.Rel] = e
	}
	srcRels := make(map[string]struct{}, len(src))

	var ops Plan
	for _, s := range src {
		srcRels[s.Rel] = struct{}{}
		d, hasDst := dstByRel[s.Rel]
		ops = append(ops, pair(s, d, hasDst, opts)...)
	}

	if opts.Purge {
		for _, d := range dst {
			if _, ok := srcRels[d.Rel]; ok {
				continue
			}
			ops = append(ops, deleteOp(d))
		}
	}

	sortPlan(ops)
	return ops
}

// pair derives the operations (if any) for a single source entry and its
// (possibly absent) destination counterpart.
func pair(s scan.Entry, d scan.Entry, hasDst bool, opts Options) []Operation {
	if !hasDst {
		switch s.Kind {
		case scan.KindDirectory:
			return []Operation{{Type: OpCreateDir, Rel: s.Rel, depth: depthOf(s.Rel)}}
		case scan.KindFile:
			return []Operation{{Type: OpCreate, Rel: s.Rel, depth: depthOf(s.Rel)}}
		case scan.KindSymlink:
			return []Operation{{Type: OpCreateSymlink, Rel: s.Rel, Target: s.SymlinkTarget, depth: depthOf(s.Rel)}}
		}
		return nil
	}

	switch s.Kind {
	case scan.KindDirectory:
		if d.Kind == scan.KindDirectory {
			return nil
		}
		return []Operation{
			deleteOp(d),
			{Type: OpCreateDir, Rel: s.Rel, depth: depthOf(s.Rel)},
		}
	case scan.KindFile:
		switch d.Kind {
		case scan.KindDirectory, scan.KindSymlink:
			return []Operation{
				deleteOp(d),
				{Type: OpCreate, Rel: s.Rel, depth: depthOf(s.Rel)},
			}
		case scan.KindFile:
			if !differs(opts.UseHash, s, d) {
				return nil
			}
			return []Operation{{
				Type:     OpUpdate,
				Rel:      s.Rel,
				UseDelta: useDelta(s, d),
				depth:    depthOf(s.Rel),
			}}
		}
	case scan.KindSymlink:
		switch d.Kind {
		case scan.KindDirectory, scan.KindFile:
			return []Operation{
				deleteOp(d),
				{Type: OpCreateSymlink, Rel: s.Rel, Target: s.SymlinkTarget, depth: depthOf(s.Rel)},
			}
		case scan.KindSymlink:
			if s.SymlinkTarget == d.SymlinkTarget {
				return nil
			}
			return []Operation{{
				Type:   OpUpdateSymlink,
				Rel:    s.Rel,
				Target: s.SymlinkTarget,
				depth:  depthOf(s.Rel),
			}}
		}
	}
	return nil
}

// deleteOp builds an OpDelete for destination entry d, using the absolute
// path the Scanner already recorded for it.
func deleteOp(d scan.Entry) Operation {
	return Operation{
		Type:        OpDelete,
		DestAbsPath: d.Path,
		isDir:       d.Kind == scan.KindDirectory,
		depth:       depthOf(d.Rel),
	}
}

// sortPlan enforces the final ordering contract: CreateDir first
// (shallowest first, then lexicographic), then everything else in stable
// (insertion) order, then Delete last (files before directories,
// directories deepest-first).
func sortPlan(ops Plan) {
	bucket := func(o Operation) int {
		switch {
		case o.Type == OpCreateDir:
			return 0
		case o.Type == OpDelete && !o.isDir:
			return 2
		case o.Type == OpDelete && o.isDir:
			return 3
		default:
			return 1
		}
	}

	sort.SliceStable(ops, func(i, j int) bool {
		bi, bj := bucket(ops[i]), bucket(ops[j])
		if bi != bj {
			return bi < bj
		}
		switch bi {
		case 0:
			if ops[i].depth != ops[j].depth {
				return ops[i].depth < ops[j].depth
			}
			return ops[i].Rel < ops[j].Rel
		case 3:
			return ops[i].depth > ops[j].depth
		default:
			return false
		}
	})
}
