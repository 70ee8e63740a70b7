// Package executor wraps external command execution behind a small
// interface so callers can substitute fakes in tests and assert on the
// constructed argument list without invoking real binaries.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes external commands. Implementations must be safe for
// concurrent use; the hashing worker pool may run many commands at once.
type Runner interface {
	// Output runs program with args and returns its stdout. Stderr is
	// captured and included in the returned error on failure.
	Output(ctx context.Context, program string, args ...string) ([]byte, error)

	// Run executes program with args, streaming its output to the
	// runner's stdio. Used for long-running tools that render their own
	// progress, such as rsync.
	Run(ctx context.Context, program string, args ...string) error

	// LookPath reports whether program is available on the execution path.
	LookPath(program string) bool
}

// System is the Runner backed by os/exec.
type System struct {
	// Stdout and Stderr receive streamed output from Run.
	// Defaults to the process stdio when nil.
	Stdout io.Writer
	Stderr io.Writer
}

// NewSystem returns a Runner that executes real processes.
func NewSystem() *System {
	return &System{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Output implements Runner.
func (s *System) Output(ctx context.Context, program string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, program, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, wrapExitError(program, args, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Run implements Runner.
func (s *System) Run(ctx context.Context, program string, args ...string) error {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		return wrapExitError(program, args, err, "")
	}
	return nil
}

// LookPath implements Runner.
func (s *System) LookPath(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}

// wrapExitError surfaces the command line and exit status, plus any
// captured stderr, in the error message.
func wrapExitError(program string, args []string, err error, stderr string) error {
	cmdline := program
	if len(args) > 0 {
		cmdline += " " + strings.Join(args, " ")
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(stderr); msg != "" {
			return fmt.Errorf("command %q exited with status %d: %s", cmdline, exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("command %q exited with status %d: %w", cmdline, exitErr.ExitCode(), err)
	}
	return fmt.Errorf("command %q failed: %w", cmdline, err)
}
