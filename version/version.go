// Package version reports the build version of the engine.
package version

import "runtime/debug"

// Version can be set at build time:
// go build -ldflags "-X github.com/dawtools/dawproject/version.Version=$(git describe --dirty)"
var Version string

// String returns the build-time version if set, otherwise the VCS revision
// embedded by the Go toolchain, otherwise "unknown".
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		var revision string
		var modified bool
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				modified = setting.Value == "true"
			}
		}
		if len(revision) >= 7 {
			if modified {
				return revision[:7] + "-dirty"
			}
			return revision[:7]
		}
	}
	return "unknown"
}
