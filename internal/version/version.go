// Package version reports which syncvault build is running. Values come
// from -ldflags when set and fall back to the module build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

const (
	AppName    = "SyncVault"
	devVersion = "0.1.0-dev"
	unknownRev = "HEAD"
)

// Set with -ldflags "-X github.com/openmined/syncvault/internal/version.Version=..."
var (
	Version   = devVersion
	Revision  = unknownRev
	BuildDate = ""
)

// Info describes a build. Peers report it on the control plane so mixed
// versions sharing a remote can be spotted.
type Info struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	Dirty     bool   `json:"dirty,omitempty"`
	BuildDate string `json:"buildDate"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

var resolveOnce sync.Once

// Get returns the running build.
func Get() Info {
	resolveOnce.Do(resolve)

	rev, dirty := strings.CutSuffix(Revision, "-dirty")
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  rev,
		Dirty:     dirty,
		BuildDate: BuildDate,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func resolve() {
	if info, ok := debug.ReadBuildInfo(); ok && info != nil {
		settings := make(map[string]string, len(info.Settings))
		for _, s := range info.Settings {
			settings[s.Key] = s.Value
		}
		fillFromBuild(info.Main.Version, settings)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}

// fillFromBuild only replaces values ldflags left at their defaults.
func fillFromBuild(mainVersion string, settings map[string]string) {
	if (Version == devVersion || Version == "") && mainVersion != "" && mainVersion != "(devel)" {
		Version = strings.TrimPrefix(mainVersion, "v")
	}
	if (Revision == unknownRev || Revision == "") && settings["vcs.revision"] != "" {
		Revision = settings["vcs.revision"]
		if settings["vcs.modified"] == "true" {
			Revision += "-dirty"
		}
	}
	if BuildDate == "" {
		BuildDate = settings["vcs.time"]
	}
}

func (i Info) rev() string {
	r := i.Revision
	if len(r) > 12 {
		r = r[:12]
	}
	if i.Dirty {
		r += "-dirty"
	}
	return r
}

// Short is `0.1.0 (5e23a4b1c2d3)`.
func (i Info) Short() string {
	return fmt.Sprintf("%s (%s)", i.Version, i.rev())
}

// Detailed is `0.1.0 (5e23a4b1c2d3; go1.23.6; linux/amd64; 2025-07-01T10:00:00Z)`.
func (i Info) Detailed() string {
	return fmt.Sprintf("%s (%s; %s; %s; %s)", i.Version, i.rev(), i.Go, i.Platform, i.BuildDate)
}

func Short() string {
	return Get().Short()
}

// ShortWithApp doubles as the control plane client's user agent.
func ShortWithApp() string {
	return AppName + " " + Short()
}

func Detailed() string {
	return Get().Detailed()
}

func DetailedWithApp() string {
	return AppName + " " + Detailed()
}
