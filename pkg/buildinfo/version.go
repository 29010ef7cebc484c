// Package buildinfo reports which bundlewire binary is running.
//
// Release builds stamp the variables below:
//
//	go build -ldflags "-X github.com/matzehuels/bundlewire/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/bundlewire/pkg/buildinfo.Commit=$(git rev-parse HEAD)"
//
// Builds without ldflags fall back to the VCS data the Go toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info describes the running binary. StateSchema is the persisted state
// layout it reads and writes.
type Info struct {
	Version     string `json:"version"`
	Commit      string `json:"commit,omitempty"`
	Date        string `json:"date,omitempty"`
	Go          string `json:"go"`
	StateSchema uint16 `json:"state_schema"`
}

// Get collects the build information, filling unset fields from the
// embedded VCS settings.
func Get(stateSchema uint16) Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version(), StateSchema: stateSchema}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.Date == "":
			info.Date = s.Value
		}
	}
	return info
}

// Template returns the cobra version template for info.
func (info Info) Template() string {
	commit := info.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit == "" {
		commit = "unknown"
	}
	return fmt.Sprintf("{{.Name}} %s (commit %s, %s)\nstate schema v%d\n", info.Version, commit, info.Go, info.StateSchema)
}
