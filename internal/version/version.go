// Package version carries build metadata stamped in via -ldflags.
package version

import "fmt"

var (
	// Version is the release version, or "dev" for unstamped builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns a single-line description of the build, e.g.
// "v0.3.1 (a1b2c3d, built 2026-08-01T12:00:00Z)".
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
