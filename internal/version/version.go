// Package version provides version information for the lockres binary.
package version

import (
	_ "embed"
	"strings"
)

// VERSION contains the version from the VERSION file.
// This is used as a fallback when ldflags are not set (e.g., go install).
//
//go:embed VERSION
var VERSION string

// Get returns the version with "v" prefix.
func Get() string {
	return "v" + strings.TrimSpace(VERSION)
}

// Resolve returns ldflagsVersion unless it is empty or the "dev"
// placeholder, in which case the embedded version is used.
func Resolve(ldflagsVersion string) string {
	if ldflagsVersion == "" || ldflagsVersion == "dev" {
		return Get()
	}
	return ldflagsVersion
}
