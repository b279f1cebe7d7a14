// Package main provides the entry point for the retrievexctl CLI.
package main

import (
	"os"

	"github.com/kailas-cloud/retrievex/cmd/retrievexctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
