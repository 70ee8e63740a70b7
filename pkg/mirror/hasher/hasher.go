// Package hasher computes per-file content digests for manifest
// creation and verification. The algorithm is selected once per run
// from the requested mode and the probed environment capabilities;
// every file in both phases of a run uses the same algorithm.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/jamesainslie/mirror/pkg/mirror/executor"
	"github.com/jamesainslie/mirror/pkg/mirror/types"
)

// Mode is the algorithm selection requested by the operator.
type Mode string

// Selection modes. Auto prefers BLAKE3 and falls back to SHA-256.
const (
	ModeAuto   Mode = "auto"
	ModeSHA256 Mode = "sha256"
	ModeBLAKE3 Mode = "blake3"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeAuto:
		return ModeAuto, nil
	case ModeSHA256:
		return ModeSHA256, nil
	case ModeBLAKE3:
		return ModeBLAKE3, nil
	default:
		return "", fmt.Errorf("invalid hash algorithm %q (want auto, blake3, or sha256)", s)
	}
}

// Algorithm is the concrete hashing strategy chosen for a run.
type Algorithm int

// Available strategies.
const (
	SHA256 Algorithm = iota
	BLAKE3Native
	BLAKE3External
)

// String returns a human-readable algorithm name.
func (a Algorithm) String() string {
	switch a {
	case SHA256:
		return "sha256"
	case BLAKE3Native:
		return "blake3"
	case BLAKE3External:
		return "blake3 (b3sum)"
	default:
		return "unknown"
	}
}

// ManifestName returns the conventional manifest filename for the
// algorithm family. SHA-256 and BLAKE3 both produce 256-bit digests,
// so the filename is the only on-disk hint of which was used.
func (a Algorithm) ManifestName() string {
	if a == SHA256 {
		return "SHA256SUMS"
	}
	return "BLAKE3SUMS"
}

// ExternalTool is the command-line BLAKE3 hasher probed for on PATH.
const ExternalTool = "b3sum"

// Capabilities reports which optional hashing paths are available.
// Probe it once at startup; never re-probe per file.
type Capabilities struct {
	// NativeBLAKE3 is true when the in-process BLAKE3 implementation is
	// linked. Always true for this binary; kept as a field so the
	// selection chain and its fallback are testable.
	NativeBLAKE3 bool

	// ExternalB3Sum is true when the b3sum tool is on PATH.
	ExternalB3Sum bool
}

// Probe evaluates environment capabilities using the given runner.
func Probe(r executor.Runner) Capabilities {
	return Capabilities{
		NativeBLAKE3:  true,
		ExternalB3Sum: r.LookPath(ExternalTool),
	}
}

// Select picks the algorithm for an entire run. The mode sha256 always
// wins; blake3 and auto both request BLAKE3, preferring the external
// tool only when asked, then the native implementation, then the
// external tool, and finally SHA-256 as the universal fallback.
func Select(mode Mode, preferExternal bool, caps Capabilities) Algorithm {
	if mode == ModeSHA256 {
		return SHA256
	}
	if preferExternal && caps.ExternalB3Sum {
		return BLAKE3External
	}
	if caps.NativeBLAKE3 {
		return BLAKE3Native
	}
	if caps.ExternalB3Sum {
		return BLAKE3External
	}
	return SHA256
}

// Hasher computes lowercase hex digests of file contents. Safe for
// concurrent use by the worker pool.
type Hasher struct {
	algo    Algorithm
	threads int
	runner  executor.Runner
}

// New creates a Hasher for the selected algorithm. threads is the
// per-file internal BLAKE3 thread count; it is forwarded to the
// external tool, while the native implementation manages its own
// parallelism. runner is only consulted for the external algorithm.
func New(algo Algorithm, threads int, runner executor.Runner) *Hasher {
	return &Hasher{algo: algo, threads: threads, runner: runner}
}

// Algorithm returns the strategy this hasher was built with.
func (h *Hasher) Algorithm() Algorithm {
	return h.algo
}

// HashFile returns the digest of the file's contents, reading in
// bounded chunks so memory use is independent of file size.
func (h *Hasher) HashFile(ctx context.Context, path string) (string, error) {
	switch h.algo {
	case BLAKE3External:
		return h.hashExternal(ctx, path)
	case BLAKE3Native:
		return hashChunked(blake3.New(), path)
	default:
		return hashChunked(sha256.New(), path)
	}
}

// hashChunked streams the file through an in-process hash.
func hashChunked(hh hash.Hash, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, types.ChunkSize)
	if _, err := io.CopyBuffer(hh, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hh.Sum(nil)), nil
}

// hashExternal shells out to b3sum and parses the first whitespace
// delimited token of its output. One subprocess per file, so the
// worker pool bound also bounds concurrent subprocesses.
func (h *Hasher) hashExternal(ctx context.Context, path string) (string, error) {
	args := make([]string, 0, 3)
	if h.threads > 0 {
		args = append(args, "--num-threads", strconv.Itoa(h.threads))
	}
	args = append(args, path)

	out, err := h.runner.Output(ctx, ExternalTool, args...)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", fmt.Errorf("%s produced no digest for %s", ExternalTool, path)
	}
	return fields[0], nil
}
