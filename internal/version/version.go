package version

import (
	"fmt"
)

var version string

// GetVersionString returns a standard version header
func GetVersionString() string {
	return fmt.Sprintf("textshard, version %v", GetVersion())
}

// GetVersion returns the semver compatible version number
func GetVersion() string {
	if version == "" {
		return "unknown"
	}
	return version
}
