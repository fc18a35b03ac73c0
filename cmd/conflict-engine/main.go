package main

// ============================================================================
// Responsibilities:
// 1. CLI entry point
// 2. Build and execute the command tree
// 3. Top-level panic recovery
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/conflict-engine/internal/cli"
)

var version = "dev" // set with -ldflags "-X main.version=..."

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	if version != "dev" {
		rootCmd.Version = version
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
