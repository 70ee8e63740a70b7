// Package main provides the entry point for the mirror CLI.
package main

import (
	"os"

	"github.com/jamesainslie/mirror/pkg/mirror/pipeline"
)

func main() {
	os.Exit(pipeline.ExitCode(Execute()))
}
