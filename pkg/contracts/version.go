// Package contracts holds values shared between the pipeline binaries and
// external consumers of the results API.
package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version is the current version of the application.
	Version = "0.1.0"

	// DataFormatVersion is the version of the published output tables.
	DataFormatVersion = "v1"
)

var (
	// BuildTime is set during build using ldflags.
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags.
	GitCommit = "unknown"
)

// VersionString returns a formatted version string for startup logging.
func VersionString() string {
	return fmt.Sprintf("grantlens v%s (built: %s, commit: %s, go: %s, os: %s/%s)",
		Version, BuildTime, GitCommit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
