// Package filesystem provides low-level, race-resistant filesystem
// primitives used by the scanner, executor, and metadata packages: mode and
// ownership types, an atomic write-then-rename helper, and a file-descriptor
// relative Directory type that performs *at operations to avoid symlink
// traversal and TOCTOU races when creating, removing, or restating content.
//
// This package targets POSIX systems. treesync's destination tree is always
// a local or locally-mounted path, so no Windows-specific variant is
// maintained here.
package filesystem
