// Package engine runs per-file hash jobs across a bounded worker pool.
// It produces a manifest in write mode and a list of verification
// problems in verify mode. Jobs are independent: the only state shared
// between workers is a set of atomic counters, and manifest output is
// drained by a single consumer so lines are never interleaved.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/mirror/pkg/mirror/hasher"
	"github.com/jamesainslie/mirror/pkg/mirror/manifest"
	"github.com/jamesainslie/mirror/pkg/mirror/types"
)

// Options configures an Engine.
type Options struct {
	// Jobs is the hard upper bound on in-flight hash computations.
	// Defaults to the host CPU count. When the external hasher is
	// selected it also bounds concurrent subprocesses.
	Jobs int

	// Stage names the pass for progress reporting ("hash" or "verify").
	Stage string

	// OnProgress is called with progress snapshots. It must be safe to
	// call from the consumer goroutine; calls are throttled.
	OnProgress func(types.Progress)
}

// Validate applies defaults for invalid values.
func (o *Options) Validate() error {
	if o.Jobs < 1 {
		o.Jobs = runtime.NumCPU()
	}
	return nil
}

// Engine executes one hashing pass. Create a fresh Engine per pass;
// counters are not reset between runs.
type Engine struct {
	opts Options

	completed atomic.Int64
	errCount  atomic.Int64
	bytes     atomic.Int64
	total     int64

	// lastProgress throttles OnProgress callbacks.
	lastProgress atomic.Int64
}

// New creates an Engine with the given options.
func New(opts Options) *Engine {
	_ = opts.Validate()
	return &Engine{opts: opts}
}

// BytesHashed returns the total size of files hashed so far.
func (e *Engine) BytesHashed() int64 {
	return e.bytes.Load()
}

// Completed returns the number of finished jobs.
func (e *Engine) Completed() int64 {
	return e.completed.Load()
}

// writeResult carries one completed write-mode job to the consumer.
type writeResult struct {
	entry manifest.Entry
	err   error
}

// WriteManifest hashes every file in files (relative to root) and
// appends one manifest line per completed job, in completion order, so
// large trees stream without holding all digests in memory. Any hash
// error is fatal: there is no sensible entry to emit, so the pass is
// cancelled and the error propagates.
func (e *Engine) WriteManifest(ctx context.Context, root string, files []string, h *hasher.Hasher, out *manifest.Writer) error {
	e.total = int64(len(files))
	e.reportProgressForce()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	results := make(chan writeResult)

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range jobs {
				digest, size, err := e.hashOne(ctx, root, rel, h)
				res := writeResult{entry: manifest.Entry{Digest: digest, Path: rel}}
				if err != nil {
					res.err = fmt.Errorf("hashing %s: %w", rel, err)
				} else {
					e.bytes.Add(size)
				}
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rel := range files {
			select {
			case jobs <- rel:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Single consumer: workers never touch the output stream.
	var firstErr error
	for res := range results {
		if firstErr != nil {
			continue
		}
		if res.err != nil {
			firstErr = res.err
			cancel()
			continue
		}
		if err := out.Add(res.entry); err != nil {
			firstErr = err
			cancel()
			continue
		}
		e.completed.Add(1)
		e.reportProgress()
	}

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.reportProgressForce()
	return nil
}

// Verify checks every manifest entry against the tree under root,
// invoking onResult for each MISSING or MISMATCH as it is discovered.
// Problems are non-fatal; the pass visits every entry and returns the
// total problem count. A per-file I/O error while hashing is reported
// as a mismatch with the underlying error rather than aborting.
func (e *Engine) Verify(ctx context.Context, root string, entries []manifest.Entry, h *hasher.Hasher, onResult func(types.VerifyResult)) (int64, error) {
	e.total = int64(len(entries))
	e.reportProgressForce()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan manifest.Entry)
	results := make(chan types.VerifyResult)

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				res := e.checkOne(ctx, root, entry, h)
				select {
				case results <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, entry := range entries {
			select {
			case jobs <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		if res.Status != types.StatusOK {
			e.errCount.Add(1)
			if onResult != nil {
				onResult(res)
			}
		}
		e.completed.Add(1)
		e.reportProgress()
	}

	if err := ctx.Err(); err != nil {
		return e.errCount.Load(), err
	}

	e.reportProgressForce()
	return e.errCount.Load(), nil
}

// hashOne stats and hashes a single file.
func (e *Engine) hashOne(ctx context.Context, root, rel string, h *hasher.Hasher) (digest string, size int64, err error) {
	path := filepath.Join(root, filepath.FromSlash(rel))

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}

	digest, err = h.HashFile(ctx, path)
	if err != nil {
		return "", 0, err
	}
	return digest, info.Size(), nil
}

// checkOne verifies a single manifest entry.
func (e *Engine) checkOne(ctx context.Context, root string, entry manifest.Entry, h *hasher.Hasher) types.VerifyResult {
	path := filepath.Join(root, filepath.FromSlash(entry.Path))

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.VerifyResult{
				Path:     entry.Path,
				Status:   types.StatusMissing,
				Expected: entry.Digest,
			}
		}
		return types.VerifyResult{
			Path:     entry.Path,
			Status:   types.StatusMismatch,
			Expected: entry.Digest,
			Err:      err,
		}
	}

	got, err := h.HashFile(ctx, path)
	if err != nil {
		return types.VerifyResult{
			Path:     entry.Path,
			Status:   types.StatusMismatch,
			Expected: entry.Digest,
			Err:      err,
		}
	}

	e.bytes.Add(info.Size())

	if got != entry.Digest {
		return types.VerifyResult{
			Path:     entry.Path,
			Status:   types.StatusMismatch,
			Expected: entry.Digest,
			Actual:   got,
		}
	}
	return types.VerifyResult{Path: entry.Path, Status: types.StatusOK}
}

// reportProgress calls the progress callback, throttled to avoid
// excessive overhead on fast small-file workloads.
func (e *Engine) reportProgress() {
	if e.opts.OnProgress == nil {
		return
	}

	now := time.Now().UnixMilli()
	last := e.lastProgress.Load()
	if now-last < 50 {
		return
	}
	if !e.lastProgress.CompareAndSwap(last, now) {
		return // Another snapshot is in flight.
	}

	e.sendProgress()
}

// reportProgressForce bypasses the throttle for pass start and end.
func (e *Engine) reportProgressForce() {
	if e.opts.OnProgress == nil {
		return
	}
	e.lastProgress.Store(time.Now().UnixMilli())
	e.sendProgress()
}

func (e *Engine) sendProgress() {
	e.opts.OnProgress(types.Progress{
		Stage:     e.opts.Stage,
		Completed: e.completed.Load(),
		Total:     e.total,
		Errors:    e.errCount.Load(),
		Bytes:     e.bytes.Load(),
	})
}
