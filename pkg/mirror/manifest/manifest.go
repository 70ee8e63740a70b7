// Package manifest reads and writes content-hash manifests.
//
// A manifest is plain text with one entry per line in the conventional
// checksum-file format:
//
//	<lowercase-hex-digest>  <relative-posix-path>
//
// with exactly two spaces between the fields. Line order reflects hash
// completion order at write time and carries no meaning.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// Stdio is the sentinel path selecting standard output (write) or
// standard input (read) instead of a file.
const Stdio = "-"

// ErrParse indicates a malformed manifest line. A corrupt manifest is
// not trustworthy, so parsing is fatal rather than line-skipping.
var ErrParse = errors.New("malformed manifest line")

// Entry pairs a content digest with a root-relative file path.
// Path always uses forward-slash separators and has no leading slash.
type Entry struct {
	Digest string
	Path   string
}

// FormatLine renders an entry as a single manifest line.
func FormatLine(e Entry) string {
	return e.Digest + "  " + e.Path + "\n"
}

// ParseLine splits a line on the first run of whitespace into digest
// and path. The path is right-trimmed but may contain internal spaces.
func ParseLine(line string) (Entry, error) {
	cut := strings.IndexFunc(line, unicode.IsSpace)
	if cut < 0 {
		return Entry{}, fmt.Errorf("%w: %q", ErrParse, line)
	}

	digest := line[:cut]
	path := strings.TrimRightFunc(strings.TrimLeftFunc(line[cut:], unicode.IsSpace), unicode.IsSpace)
	if path == "" {
		return Entry{}, fmt.Errorf("%w: %q", ErrParse, line)
	}

	return Entry{Digest: digest, Path: path}, nil
}

// Read parses all entries from r. Blank lines are skipped; a malformed
// line aborts with ErrParse.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	return entries, nil
}

// Load reads a manifest from path, or from stdin when path is Stdio.
func Load(path string, stdin io.Reader) ([]Entry, error) {
	if path == Stdio {
		return Read(stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	entries, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return entries, nil
}

// Writer streams manifest lines to a file or stdout. File targets are
// written to a temporary sibling and renamed on Commit so readers never
// observe a half-written manifest. Writer is used by a single consumer
// goroutine; it is not safe for concurrent use.
type Writer struct {
	bw        *bufio.Writer
	file      *os.File
	tmpPath   string
	finalPath string
	committed bool
}

// NewWriter opens a manifest for writing. When path is Stdio the lines
// go to stdout and Commit is a flush only.
func NewWriter(path string, stdout io.Writer) (*Writer, error) {
	if path == Stdio {
		return &Writer{bw: bufio.NewWriter(stdout)}, nil
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating manifest: %w", err)
	}

	return &Writer{
		bw:        bufio.NewWriter(f),
		file:      f,
		tmpPath:   tmpPath,
		finalPath: path,
	}, nil
}

// Add appends one entry line.
func (w *Writer) Add(e Entry) error {
	if _, err := w.bw.WriteString(FormatLine(e)); err != nil {
		return fmt.Errorf("writing manifest entry: %w", err)
	}
	return nil
}

// Commit flushes buffered lines and moves the manifest into place.
func (w *Writer) Commit() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flushing manifest: %w", err)
	}

	if w.file == nil {
		w.committed = true
		return nil
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing manifest: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("renaming manifest: %w", err)
	}

	w.committed = true
	return nil
}

// Discard closes the writer and removes the temporary file. Calling it
// after a successful Commit is a no-op, so it is safe to defer.
func (w *Writer) Discard() {
	if w.committed || w.file == nil {
		return
	}
	_ = w.file.Close()
	_ = os.Remove(w.tmpPath)
}
