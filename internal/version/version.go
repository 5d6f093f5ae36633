// Package version reports build information stamped in by the linker:
//
//	go build -ldflags "-X github.com/soyeahso/depot/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/depot/internal/version.Commit=$(git rev-parse HEAD)
//	  -X github.com/soyeahso/depot/internal/version.Date=$(date -u +%F)"
package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Date     string `json:"date"`
	Platform string `json:"platform"`
	Release  bool   `json:"release"`
}

// Current returns the stamped build information.
func Current() Build {
	_, release := Semver()
	return Build{
		Version:  Version,
		Commit:   ShortCommit(),
		Date:     Date,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Release:  release,
	}
}

func (b Build) String() string {
	return fmt.Sprintf("depot %s (commit: %s, built: %s, %s)", b.Version, b.Commit, b.Date, b.Platform)
}

// Info returns the one-line version banner.
func Info() string { return Current().String() }

// Semver parses Version. Development builds report false.
func Semver() (*semver.Version, bool) {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return nil, false
	}
	return v, true
}

// ShortCommit returns Commit abbreviated to seven characters.
func ShortCommit() string {
	const width = 7
	if len(Commit) > width {
		return Commit[:width]
	}
	return Commit
}
