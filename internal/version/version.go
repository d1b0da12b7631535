// Package version records build metadata stamped in via -ldflags.
package version

import "fmt"

var (
	// Version is the release version, "dev" for unstamped builds
	Version = "dev"
	// GitSHA is the git commit the binary was built from
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata on one line for -version output and
// startup logs.
func String() string {
	return fmt.Sprintf("dwell %s (%s, built %s)", Version, GitSHA, BuildTime)
}
