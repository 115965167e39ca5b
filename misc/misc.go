// Package misc keeps build time information.
package misc

import "runtime/debug"

var (
	appName = "tbr"
	version = "development"
	gitHash = "unknown"
)

// GetAppName returns short program name used for temporary files, logs and keys.
func GetAppName() string {
	return appName
}

// GetVersion returns program version set at build time.
func GetVersion() string {
	return version
}

// GetGitHash returns vcs revision recorded in the binary if any.
func GetGitHash() string {
	if gitHash != "unknown" {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return gitHash
}
