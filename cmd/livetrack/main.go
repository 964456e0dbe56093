package main

import "github.com/livetrack/livetrack/internal/cmd"

// Stamped by the release build:
//
//	go build -ldflags "-X main.version=1.2.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%F)"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.Main(cmd.BuildInfo{Version: version, Commit: commit, BuildDate: buildDate})
}
