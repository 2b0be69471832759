package main

import (
	"fmt"
	"runtime"
)

// Set during build via -ldflags "-X main.version=... -X main.commit=...".
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func versionString() string {
	return fmt.Sprintf("futures-bot %s (%s, %s) %s %s/%s",
		version, commit, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
