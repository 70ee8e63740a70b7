// Package walker enumerates the regular files under a mirror root.
// It uses fastwalk for parallel directory traversal and yields
// forward-slash relative paths suitable for manifest entries.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// Options configures an enumeration pass.
type Options struct {
	// Root is the directory to enumerate.
	Root string

	// Exclude contains base names to skip exactly, such as metadata
	// sentinel files.
	Exclude []string

	// ExcludePrefixes contains base-name prefixes to skip, such as
	// resource-fork shadow files.
	ExcludePrefixes []string
}

// Walk returns the relative path of every regular file reachable under
// the root. Symlinks and directories are never yielded. The result
// order is filesystem-dependent; callers must not rely on it.
//
// The enumeration is atomic from the caller's perspective: any
// traversal error discards partial results and returns the error.
func Walk(ctx context.Context, opts Options) ([]string, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", opts.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("enumerating %s: not a directory", opts.Root)
	}

	conf := fastwalk.Config{
		Follow: false, // Symlinks are not mirrored content.
	}

	var (
		mu    sync.Mutex
		files []string
	)

	walkErr := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		if excluded(filepath.Base(path), opts) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		mu.Lock()
		files = append(files, filepath.ToSlash(rel))
		mu.Unlock()
		return nil
	})

	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) {
			return nil, walkErr
		}
		return nil, fmt.Errorf("enumerating %s: %w", opts.Root, walkErr)
	}

	return files, nil
}

// excluded reports whether a base name matches the exclusion rules.
func excluded(name string, opts Options) bool {
	for _, e := range opts.Exclude {
		if name == e {
			return true
		}
	}
	for _, p := range opts.ExcludePrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
