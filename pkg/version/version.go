// Package version records the build version of the freshen binary.
package version

import "fmt"

// These are set at build time via -ldflags; the defaults mark a source build.
var (
	// Version is the semantic version of the binary.
	Version = "0.0.0-dev"
	// Commit is the short git commit the binary was built from.
	Commit = "unknown"
)

// String returns the version with the commit, suitable for --version output.
func String() string {
	return fmt.Sprintf("%s (commit %s)", Version, Commit)
}
