// Package version exposes build metadata injected at link time.
package version

import "fmt"

var (
	// Version is the release version, set during the build.
	Version = "dev"

	// GitCommit is the git commit SHA that was built.
	GitCommit = "unknown"
)

// Info represents version information.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

// Get returns the version information.
func Get() Info {
	return Info{Version: Version, GitCommit: GitCommit}
}

// String returns the human-readable version line.
func (i Info) String() string {
	return fmt.Sprintf("prtriage %s (%s)", i.Version, i.GitCommit)
}
