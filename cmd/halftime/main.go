// Package main is the entry point for the halftime application.
package main

import (
	"os"

	"github.com/halftimetv/halftime/cmd/halftime/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
