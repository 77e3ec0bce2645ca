// Package version reports build information for the daemon.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time with -ldflags "-X .../version.Version=...".
var (
	Name      = "Stellar Queue"
	Version   = "0.3.0"
	BuildTime = ""
	GitCommit = ""
)

// Info is served by /api/v1/version and printed by the version command.
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime,omitempty"`
	GitCommit string `json:"gitCommit,omitempty"`
	GoVersion string `json:"goVersion"`
}

// GetInfo returns the current build information. Without ldflags the
// commit and time fall back to the VCS stamp embedded by the go tool.
func GetInfo() Info {
	info := Info{
		Name:      Name,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	return info
}

// ShortCommit returns the first seven characters of the commit hash.
func (i Info) ShortCommit() string {
	return i.GitCommit[:min(7, len(i.GitCommit))]
}

func (i Info) String() string {
	s := fmt.Sprintf("%s v%s", i.Name, i.Version)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.ShortCommit())
	}
	if i.BuildTime != "" {
		s += " built " + i.BuildTime
	}
	return s
}
