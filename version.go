// Package dygram is the root package of the DyGram execution engine.
//
// Import specific sub-packages for actual functionality:
//
//	import (
//	    "github.com/christopherdebeer/dygram/pkg/execution"
//	    "github.com/christopherdebeer/dygram/pkg/loop"
//	    "github.com/christopherdebeer/dygram/pkg/persistence"
//	)
package dygram

import (
	"fmt"
	"runtime"
)

// Version information for the engine build.
const (
	Version   = "0.1.0-alpha"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info describes a build of the engine.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion returns version information for the running binary.
func GetVersion() Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a formatted version string.
func (i Info) String() string {
	return fmt.Sprintf("dygram %s (built %s, commit %s, %s %s)",
		i.Version, i.BuildDate, i.GitCommit, i.GoVersion, i.Platform)
}
