// Package compileinfo reports the VCS state a mirnade binary was built from,
// so that results can be traced back to the code that produced them.
package compileinfo

import (
	"fmt"
	"io"
	"runtime/debug"
)

// CompileInfo is read from the build information embedded by the Go
// toolchain.
type CompileInfo struct {
	Binary     string
	Version    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool
}

func (c CompileInfo) String() string {
	if c.Binary == "" {
		return "mirnade: no build information available"
	}

	out := fmt.Sprintf("%s %s built with %s", c.Binary, c.Version, c.GoVersion)
	if c.Commit != "" {
		out += fmt.Sprintf(" from commit %s (%s)", c.Commit, c.CommitTime)
	}
	if c.Modified {
		out += " with uncommitted changes"
	}
	return out
}

// Short is the first 12 characters of the commit, marked with + when the tree
// was modified.
func (c CompileInfo) Short() string {
	s := c.Commit
	if len(s) > 12 {
		s = s[:12]
	}
	if c.Modified {
		s += "+"
	}
	return s
}

// Get reads the running binary's build information.
func Get() CompileInfo {
	z, ok := debug.ReadBuildInfo()
	if !ok {
		return CompileInfo{}
	}
	return fromBuildInfo(z)
}

func fromBuildInfo(z *debug.BuildInfo) CompileInfo {
	out := CompileInfo{
		Binary:    z.Path,
		Version:   z.Main.Version,
		GoVersion: z.GoVersion,
	}

	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}

// Fprint writes the build information of the running binary to w.
func Fprint(w io.Writer) {
	fmt.Fprintln(w, Get())
}
