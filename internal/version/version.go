package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.1.0-dev"

// Set with -ldflags "-X github.com/openmined/studiosync/internal/version.Version=..."
var (
	AppName   = "StudioSync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		settings := make(map[string]string, len(info.Settings))
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}
		applyBuildInfo(info.Main.Version, settings)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}

// applyBuildInfo fills whatever ldflags left at its placeholder from the
// module version and VCS stamp embedded by the go tool.
func applyBuildInfo(mainVersion string, settings map[string]string) {
	if Version == devVersion || Version == "" {
		if mainVersion != "" && mainVersion != "(devel)" {
			Version = strings.TrimPrefix(mainVersion, "v")
		}
	}

	if Revision == "HEAD" || Revision == "" {
		if rev := settings["vcs.revision"]; rev != "" {
			if settings["vcs.modified"] == "true" {
				rev += "-dirty"
			}
			Revision = rev
		}
	}

	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

// Short returns `0.1.0 (5e23a4)`
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, Revision)
}

func ShortWithApp() string {
	return AppName + " " + Short()
}

// Detailed returns `0.1.0 (5e23a4; go1.23.6; linux/amd64; 2026-01-02T10:00:00Z)`
func Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s/%s; %s)", Version, Revision, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildDate)
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}

// UserAgent identifies a studiosync component in outgoing requests,
// e.g. `StudioSync-cli/0.1.0 (5e23a4; linux; amd64)`.
func UserAgent(component string) string {
	name := AppName
	if component != "" {
		name += "-" + component
	}
	return fmt.Sprintf("%s/%s (%s; %s; %s)", name, Version, Revision, runtime.GOOS, runtime.GOARCH)
}
