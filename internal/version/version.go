package version

import (
	"fmt"
	"runtime"
)

// Build metadata, set via ldflags:
//
//	-X github.com/smazurov/lensnode/internal/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" doc:"Release version"`
	GitCommit string `json:"git_commit" doc:"Source commit"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	GoVersion string `json:"go_version" doc:"Go toolchain version"`
	Platform  string `json:"platform" doc:"GOOS/GOARCH"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns the application version string.
func String() string {
	return Version
}

// UserAgent is sent on outbound requests to the lens runtime provider.
func UserAgent() string {
	return fmt.Sprintf("lensnode/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
