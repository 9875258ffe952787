package main

import (
	"fmt"
	"os"

	"github.com/tphakala/pulseshim/cmd"
	"github.com/tphakala/pulseshim/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	info := buildinfo.NewContext(version, buildDate)
	if err := cmd.RootCommand(info).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
