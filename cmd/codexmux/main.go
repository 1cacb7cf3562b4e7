// Package main is the entry point for codexmux - the Codex auth profile manager.
package main

import (
	"os"

	"github.com/codexmux/codexmux/cmd/codexmux/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
