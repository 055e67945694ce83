// Package version reports build metadata for the imageoptimizer binary.
//
// Version, Commit and Date can be injected at build time:
//
//	-ldflags "-X github.com/Skryldev/image-optimizer/version.Version=v1.0.0"
//
// Otherwise the values come from debug.ReadBuildInfo.
package version

import (
	"fmt"
	"io"
	"runtime/debug"
)

var (
	// Set by build flags.
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info contains version information.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// buildInfo is swapped in tests.
var buildInfo = debug.ReadBuildInfo

// GetVersion returns the version string, preferring the compile-time value.
func GetVersion() string {
	if Version != "dev" && Version != "" {
		return Version
	}
	if info, ok := buildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "development"
}

// GetCommit returns the VCS revision, preferring the compile-time value.
func GetCommit() string {
	if Commit != "unknown" && Commit != "" {
		return Commit
	}
	return setting("vcs.revision")
}

// GetBuildDate returns the build date, preferring the compile-time value.
func GetBuildDate() string {
	if Date != "unknown" && Date != "" {
		return Date
	}
	return setting("vcs.time")
}

func setting(key string) string {
	if info, ok := buildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == key {
				return s.Value
			}
		}
	}
	return "unknown"
}

// GetInfo returns complete version information.
func GetInfo() Info {
	return Info{Version: GetVersion(), Commit: GetCommit(), Date: GetBuildDate()}
}

// GetFullVersion returns the version with short commit and build date.
func GetFullVersion() string {
	info := GetInfo()
	if info.Commit != "unknown" && len(info.Commit) > 7 {
		short := info.Commit[:7]
		if info.Date != "unknown" {
			return fmt.Sprintf("%s (%s, built %s)", info.Version, short, info.Date)
		}
		return fmt.Sprintf("%s (%s)", info.Version, short)
	}
	return info.Version
}

// Fprint writes human-readable version information to w.
func Fprint(w io.Writer, appName string) {
	info := GetInfo()
	fmt.Fprintf(w, "%s version %s\n", appName, GetFullVersion())
	fmt.Fprintf(w, "Commit: %s\n", info.Commit)
	fmt.Fprintf(w, "Build Date: %s\n", info.Date)
}
