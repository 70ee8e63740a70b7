// Package config provides configuration management for the mirror tool.
package config

import "runtime"

// Default configuration values for mirror.
const (
	// DefaultAlgo is the hash algorithm mode used when none is requested.
	DefaultAlgo = "auto"

	// DefaultStep runs the full pipeline: make-manifest, copy, verify.
	DefaultStep = "all"

	// DefaultHashThreads is the per-file internal BLAKE3 thread count.
	// Zero lets the implementation choose.
	DefaultHashThreads = 0
)

// DefaultExcludes contains base names that are never manifested or
// verified. These are filesystem metadata sentinels, not user data.
var DefaultExcludes = []string{".DS_Store"}

// DefaultExcludePrefixes contains base-name prefixes to skip, such as
// macOS resource-fork shadow files.
var DefaultExcludePrefixes = []string{"._"}

// DefaultJobs returns the default hashing worker count.
func DefaultJobs() int {
	return runtime.NumCPU()
}
