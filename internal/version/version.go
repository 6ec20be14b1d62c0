// Package version carries build metadata injected through ldflags.
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the version, commit and build date.
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// String formats the build metadata on a single line.
func String() string {
	return fmt.Sprintf("labelscan %s (%s, built %s)", Version, GitCommit, BuildDate)
}
