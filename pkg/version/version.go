// Package version reports the build version of the bot.
package version

import "runtime/debug"

// Version is the release version, set at build time via
// -ldflags "-X github.com/midoshouse/racebot/pkg/version.Version=v1.2.3".
var Version = "dev"

// String returns the release version, falling back to the VCS revision
// embedded in the build info when no version was set at build time.
func String() string {
	if Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			rev := setting.Value
			if len(rev) > 12 {
				rev = rev[:12]
			}
			return Version + "-" + rev
		}
	}
	return Version
}
