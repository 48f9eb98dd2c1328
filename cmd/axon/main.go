// Package main provides the entry point for the axon CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/axon-dev/axon/cmd/axon/cmd"
)

func main() {
	// A missing .env is the normal case; values already in the environment
	// take precedence over the file.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
