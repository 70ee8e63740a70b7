// Package types provides core data types shared across the mirror tool:
// verification results, progress snapshots, and size formatting helpers.
package types

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
)

// ChunkSize is the read buffer size used when hashing file contents.
// Memory use per worker is bounded by this regardless of file size.
const ChunkSize = 4 * MiB

// VerifyStatus is the per-entry outcome of a verification pass.
type VerifyStatus string

// Verification outcomes.
const (
	StatusOK       VerifyStatus = "OK"
	StatusMissing  VerifyStatus = "MISSING"
	StatusMismatch VerifyStatus = "MISMATCH"
)

// VerifyResult reports the outcome of checking one manifest entry.
// Expected and Actual are lowercase hex digests; Actual is empty for
// missing files. Err carries the underlying I/O error when hashing the
// file failed (reported as a mismatch rather than aborting the run).
type VerifyResult struct {
	Path     string       `json:"path"`
	Status   VerifyStatus `json:"status"`
	Expected string       `json:"expected,omitempty"`
	Actual   string       `json:"actual,omitempty"`
	Err      error        `json:"-"`
}

// String renders the result in the report format, e.g. "[MISMATCH] b/c.txt".
func (r VerifyResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", r.Status, r.Path, r.Err)
	}
	return fmt.Sprintf("[%s] %s", r.Status, r.Path)
}

// Progress is a snapshot of a hashing pass. Completed counts finished
// jobs in completion order; Errors counts verification problems found
// so far; Bytes is the total size of files hashed so far.
type Progress struct {
	Stage     string `json:"stage"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Errors    int64  `json:"errors"`
	Bytes     int64  `json:"bytes"`
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units for consistency with common filesystem tools.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
