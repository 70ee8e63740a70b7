// Package pipeline sequences the mirror stages: manifest creation at
// the source, the external copy, and verification at the destination.
// Each stage is selectable; outcomes map to process exit codes through
// ExitCode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/mirror/pkg/mirror/engine"
	"github.com/jamesainslie/mirror/pkg/mirror/executor"
	"github.com/jamesainslie/mirror/pkg/mirror/hasher"
	"github.com/jamesainslie/mirror/pkg/mirror/logging"
	"github.com/jamesainslie/mirror/pkg/mirror/manifest"
	"github.com/jamesainslie/mirror/pkg/mirror/rsync"
	"github.com/jamesainslie/mirror/pkg/mirror/types"
	"github.com/jamesainslie/mirror/pkg/mirror/walker"
)

// Step selects which stages of the pipeline run.
type Step string

// Pipeline steps.
const (
	StepAll          Step = "all"
	StepMakeManifest Step = "make-manifest"
	StepCopy         Step = "copy"
	StepVerify       Step = "verify"
)

// ParseStep validates a step string.
func ParseStep(s string) (Step, error) {
	switch Step(s) {
	case StepAll, StepMakeManifest, StepCopy, StepVerify:
		return Step(s), nil
	default:
		return "", &UsageError{fmt.Sprintf("invalid step %q (want all, make-manifest, copy, or verify)", s)}
	}
}

// UsageError indicates bad or missing arguments. Exit code 2, no
// partial work attempted.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// VerifyError indicates the verification pass found problems. The run
// itself completed; exit code 1.
type VerifyError struct {
	Count int64
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification failed: %d problem(s)", e.Count)
}

// ExitCode maps a pipeline outcome to the process exit status:
// 0 success, 1 verification problems, 2 everything else (usage, I/O,
// parse, interrupt, external tool failure).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ve *VerifyError
	if errors.As(err, &ve) {
		return 1
	}
	return 2
}

// Options configures a pipeline run.
type Options struct {
	// Src and Dst are the mirror roots. Src is required for
	// make-manifest; both are required for copy; verify targets Dst
	// when present, else Src.
	Src string
	Dst string

	// Step selects the stages to run.
	Step Step

	// Manifest overrides the manifest location. Empty uses the default
	// resolution; manifest.Stdio selects stdout/stdin.
	Manifest string

	// Mode, PreferExternalB3, Jobs, and HashThreads configure hashing.
	Mode             hasher.Mode
	PreferExternalB3 bool
	Jobs             int
	HashThreads      int

	// DryRun forwards --dry-run to rsync and skips verification, since
	// nothing was copied to verify.
	DryRun bool

	// Exclude and ExcludePrefixes feed the file enumerator.
	Exclude         []string
	ExcludePrefixes []string

	// Runner executes external tools (rsync, b3sum). Defaults to the
	// real system runner; tests inject fakes.
	Runner executor.Runner

	// Stdout and Stdin back the manifest stdio sentinel; Stderr
	// receives per-entry verification reports. All default to the
	// process stdio.
	Stdout io.Writer
	Stdin  io.Reader
	Stderr io.Writer

	// OnProgress receives hashing progress snapshots.
	OnProgress func(types.Progress)
}

// Result summarizes a completed run.
type Result struct {
	RunID        string
	Algorithm    hasher.Algorithm
	ManifestPath string
	FilesHashed  int64
	BytesHashed  int64
	VerifyErrors int64
	Elapsed      time.Duration
}

// Run executes the selected pipeline stages. Stages are strictly
// sequential: the copy does not start until the manifest is flushed,
// and verification does not start until rsync has exited.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	log := logging.Get("pipeline")

	if opts.Runner == nil {
		opts.Runner = executor.NewSystem()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Step == "" {
		opts.Step = StepAll
	}
	if opts.Mode == "" {
		opts.Mode = hasher.ModeAuto
	}

	// Algorithm selection is consistent for the whole run: write and
	// verify phases of one invocation always agree.
	caps := hasher.Probe(opts.Runner)
	algo := hasher.Select(opts.Mode, opts.PreferExternalB3, caps)
	h := hasher.New(algo, opts.HashThreads, opts.Runner)

	res := &Result{
		RunID:     uuid.NewString(),
		Algorithm: algo,
	}

	log.Info("run started",
		"run_id", res.RunID,
		"step", opts.Step,
		"algo", algo.String(),
		"jobs", opts.Jobs,
		"dry_run", opts.DryRun)

	if opts.Step == StepAll || opts.Step == StepMakeManifest {
		if err := runMakeManifest(ctx, &opts, h, res); err != nil {
			return res, err
		}
	}

	if opts.Step == StepAll || opts.Step == StepCopy {
		if err := runCopy(ctx, &opts, res); err != nil {
			return res, err
		}
	}

	if opts.Step == StepAll || opts.Step == StepVerify {
		if opts.DryRun && opts.Step == StepAll {
			// Nothing was copied; verifying the destination would only
			// report every entry missing.
			log.Info("dry run, skipping verification", "run_id", res.RunID)
		} else if err := runVerify(ctx, &opts, h, res); err != nil {
			return res, err
		}
	}

	res.Elapsed = time.Since(start)
	log.Info("run finished",
		"run_id", res.RunID,
		"files", res.FilesHashed,
		"bytes", res.BytesHashed,
		"verify_errors", res.VerifyErrors,
		"elapsed", res.Elapsed)

	if res.VerifyErrors > 0 {
		return res, &VerifyError{Count: res.VerifyErrors}
	}
	return res, nil
}

// runMakeManifest enumerates the source and streams a manifest.
func runMakeManifest(ctx context.Context, opts *Options, h *hasher.Hasher, res *Result) error {
	if opts.Src == "" {
		return &UsageError{"SRC required for make-manifest"}
	}

	outPath := opts.Manifest
	if outPath == "" {
		outPath = filepath.Join(opts.Src, h.Algorithm().ManifestName())
	}
	res.ManifestPath = outPath

	// The manifest must never list itself: exclude its base name when
	// it lives inside the tree being hashed.
	exclude := opts.Exclude
	if outPath != manifest.Stdio {
		exclude = append(append([]string{}, exclude...), filepath.Base(outPath))
	}

	files, err := walker.Walk(ctx, walker.Options{
		Root:            opts.Src,
		Exclude:         exclude,
		ExcludePrefixes: opts.ExcludePrefixes,
	})
	if err != nil {
		return err
	}

	out, err := manifest.NewWriter(outPath, opts.Stdout)
	if err != nil {
		return err
	}
	defer out.Discard()

	eng := engine.New(engine.Options{
		Jobs:       opts.Jobs,
		Stage:      "hash",
		OnProgress: opts.OnProgress,
	})
	if err := eng.WriteManifest(ctx, opts.Src, files, h, out); err != nil {
		return err
	}
	if err := out.Commit(); err != nil {
		return err
	}

	res.FilesHashed = eng.Completed()
	res.BytesHashed = eng.BytesHashed()
	return nil
}

// runCopy invokes rsync, preceded by a best-effort free-space check
// when the manifest stage already measured the source.
func runCopy(ctx context.Context, opts *Options, res *Result) error {
	if opts.Src == "" || opts.Dst == "" {
		return &UsageError{"SRC and DST required for copy"}
	}

	if res.BytesHashed > 0 && !opts.DryRun {
		if avail, err := rsync.AvailableBytes(filepath.Dir(opts.Dst)); err == nil && avail >= 0 && avail < res.BytesHashed {
			return fmt.Errorf("insufficient space at %s: need %s, have %s",
				opts.Dst, types.FormatSize(res.BytesHashed), types.FormatSize(avail))
		}
	}

	return rsync.Copy(ctx, opts.Runner, opts.Src, opts.Dst, opts.DryRun)
}

// runVerify loads the manifest and re-hashes the target tree.
func runVerify(ctx context.Context, opts *Options, h *hasher.Hasher, res *Result) error {
	target := opts.Dst
	if target == "" {
		target = opts.Src
	}
	if target == "" {
		return &UsageError{"DST or SRC required for verify"}
	}

	mfPath, err := resolveManifest(opts, h.Algorithm())
	if err != nil {
		return err
	}

	entries, err := manifest.Load(mfPath, opts.Stdin)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Options{
		Jobs:       opts.Jobs,
		Stage:      "verify",
		OnProgress: opts.OnProgress,
	})
	count, err := eng.Verify(ctx, target, entries, h, func(r types.VerifyResult) {
		fmt.Fprintln(opts.Stderr, r.String())
	})
	if err != nil {
		return err
	}

	res.VerifyErrors = count
	if res.FilesHashed == 0 {
		res.FilesHashed = eng.Completed()
		res.BytesHashed = eng.BytesHashed()
	}
	return nil
}

// resolveManifest finds the manifest for verification: the explicit
// path, else the default name at the destination, else at the source.
func resolveManifest(opts *Options, algo hasher.Algorithm) (string, error) {
	if opts.Manifest != "" {
		return opts.Manifest, nil
	}

	name := algo.ManifestName()
	if opts.Dst != "" {
		candidate := filepath.Join(opts.Dst, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if opts.Src == "" {
		return "", &UsageError{"SRC or --manifest required for verify"}
	}
	return filepath.Join(opts.Src, name), nil
}
