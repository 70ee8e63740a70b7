// Package rsync shells out to rsync for the bulk file copy. The copy
// itself has no algorithmic content here; integrity comes from the
// manifest verification pass that follows it.
package rsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/jamesainslie/mirror/pkg/mirror/executor"
)

// Tool is the external copy command.
const Tool = "rsync"

// Args builds the rsync argument list for an archive-preserving
// recursive copy with statistics reporting. Trailing slashes on both
// roots make rsync copy directory contents rather than the directory
// itself.
func Args(src, dst string, dryRun bool) []string {
	args := []string{"-a"}
	if dryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, "--info=stats2,progress2",
		strings.TrimSuffix(src, "/")+"/",
		strings.TrimSuffix(dst, "/")+"/")
	return args
}

// Copy mirrors src into dst. A dry run performs no filesystem
// mutation. A nonzero rsync exit status surfaces as an error with the
// command line and status included.
func Copy(ctx context.Context, r executor.Runner, src, dst string, dryRun bool) error {
	if err := r.Run(ctx, Tool, Args(src, dst, dryRun)...); err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}
	return nil
}
