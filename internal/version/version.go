// Package version holds build metadata injected at link time.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// SetInfo overrides build metadata; empty values are ignored.
func SetInfo(v, bt, gc, gv string) {
	if v != "" {
		Version = v
	}
	if bt != "" {
		BuildTime = bt
	}
	if gc != "" {
		GitCommit = gc
	}
	if gv != "" {
		GoVersion = gv
	}
}

// String returns a single-line version description.
func String() string {
	return fmt.Sprintf("stockpilot %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion)
}

// FormatStartupMessage returns the notification text emitted when the service starts.
func FormatStartupMessage() string {
	return fmt.Sprintf("StockPilot started\nVersion: %s\nBuild: %s", Version, BuildTime)
}
