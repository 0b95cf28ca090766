package version

import (
	"fmt"
	"runtime"
)

// Stamped by the release build:
//
//	go build -ldflags "-X github.com/soyeahso/aide/internal/version.Version=0.4.0
//	  -X github.com/soyeahso/aide/internal/version.Commit=$(git rev-parse HEAD)
//	  -X github.com/soyeahso/aide/internal/version.Date=$(date -u +%F)"
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
}

// Current returns the stamped build values with the commit shortened.
func Current() Build {
	return Build{
		Version:  Version,
		Commit:   short(Commit),
		Date:     Date,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Info returns a one-line version string.
func Info() string {
	b := Current()
	return fmt.Sprintf("aide %s (commit: %s, built: %s, %s)", b.Version, b.Commit, b.Date, b.Platform)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
