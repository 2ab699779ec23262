// SPDX-License-Identifier: MIT
//
// Package build exposes build metadata embedded with linker flags:
//
//	go build -ldflags "-X tonecast/pkg/build.buildVersion=0.3.0 -X tonecast/pkg/build.buildCommit=$(git rev-parse HEAD) ..."
//
// Development builds fall back to the module information recorded by the
// Go toolchain.
package build

import (
	"errors"
	"fmt"
	"runtime/debug"
)

const (
	defaultName        = "tonecast"
	defaultDescription = "Turn live audio into symbolic messages and fan them out"
)

// ErrMissingFlags reports that one or more linker flags were not set.
var ErrMissingFlags = errors.New("build flags missing")

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = &Info{
		Name:        defaultName,
		Description: defaultDescription,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize copies linker-provided values into the build info. Missing
// values keep their development defaults and are reported together in the
// returned error, which wraps ErrMissingFlags.
func Initialize() error {
	var missing []string
	set := func(dst *string, v, name string) {
		if v == "" {
			missing = append(missing, name)
			return
		}
		*dst = v
	}
	set(&buildInfo.Name, buildName, "buildName")
	set(&buildInfo.Time, buildTime, "buildTime")
	set(&buildInfo.Commit, buildCommit, "buildCommit")
	set(&buildInfo.Version, buildVersion, "buildVersion")

	if len(missing) == 0 {
		return nil
	}
	fillFromModule(buildInfo)
	return fmt.Errorf("%w: %v", ErrMissingFlags, missing)
}

func fillFromModule(info *Info) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Time == "unknown" {
				info.Time = s.Value
			}
		}
	}
}

// Get returns the current build information.
func Get() *Info {
	return buildInfo
}
