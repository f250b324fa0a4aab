// Package main is the entry point for the harvest CLI.
package main

import (
	"os"

	"github.com/jmylchreest/harvest/cmd/harvest/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
