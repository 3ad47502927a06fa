// Package version provides information about the build version of the tools.
package version

import "fmt"

// BuildInfo holds version information about the build.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are intended to be set at build time using -ldflags.
func Info() BuildInfo {
	// Set via -ldflags "-X 'seriate/internal/core/version.version=v0.1.0'
	// -X 'seriate/internal/core/version.commit=abcd' -X 'seriate/internal/core/version.date=2026-08-31'"
	return BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// String renders the build info on one line
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (%s, %s)", b.Version, b.Commit, b.Date)
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)
