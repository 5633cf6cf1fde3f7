// Package version carries the build identity reported by politerm --version
// and attached to exported traces.
package version

import (
	"fmt"
	"strconv"
)

// Version values are set at build time using -ldflags.
var Version = "dev"
var Major = "0"
var Minor = "0"
var Patch = "0"
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		Major:     parseInt(Major),
		Minor:     parseInt(Minor),
		Patch:     parseInt(Patch),
		Built:     Built,
		GitCommit: GitCommit,
	}
}

// String renders the banner printed by --version.
func (info VersionInfo) String() string {
	if info.Version == "" || info.Version == "dev" {
		return "politerm dev"
	}
	banner := fmt.Sprintf("politerm version %s", info.Version)
	if info.GitCommit != "" {
		banner += fmt.Sprintf(" (%s)", info.GitCommit)
	}
	return banner
}

func parseInt(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
