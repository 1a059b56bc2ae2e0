// ============================================================================
// meinDENKWERK (mDW) - speechrec
// ============================================================================
//
// Package:     version
// Description: Version information for speechrec
// Created:     2026-10-12
// License:     MIT
// ============================================================================

package version

import (
	"fmt"
	"runtime"
)

// Version constants
const (
	// Speechrec is the release version
	Speechrec = "1.0.0"

	// Name is the program name
	Name = "speechrec"
)

// Set at build time via -ldflags
var (
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String returns the full version line
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s/%s)",
		Name, Speechrec, Commit, BuildDate, runtime.GOOS, runtime.GOARCH)
}
