// Package version exposes the treesync release version.
package version

import "fmt"

const (
	// Major represents the current major version of treesync.
	Major = 0
	// Minor represents the current minor version of treesync.
	Minor = 1
	// Patch represents the current patch version of treesync.
	Patch = 0
)

// Version is the full dotted version string, computed once at init time.
var Version string

func init() {
	Version = fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)
}
