// Command columntheory compiles find requests, syncs entity tables and runs
// migrations against a local SQLite stand-in for the warehouse.
package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
