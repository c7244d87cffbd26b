package common

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/ternarybob/salonpress/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// BuildInfo is reported by the health endpoint
type BuildInfo struct {
	Version   string `json:"version"`
	Build     string `json:"build"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetBuildInfo returns the ldflags values plus the Go runtime version
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Build:     Build,
		Commit:    GitCommit,
		GoVersion: runtime.Version(),
	}
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	info := GetBuildInfo()
	return fmt.Sprintf("%s (build: %s, commit: %s, %s)", info.Version, info.Build, info.Commit, info.GoVersion)
}
