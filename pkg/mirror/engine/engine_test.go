package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/mirror/pkg/mirror/hasher"
	"github.com/jamesainslie/mirror/pkg/mirror/manifest"
	"github.com/jamesainslie/mirror/pkg/mirror/types"
)

func sha256hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// createTree builds a directory structure and returns its root with
// the sorted relative paths.
func createTree(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	root := t.TempDir()
	var rels []string
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	return root, rels
}

// writeTo runs a write pass into a buffer and returns the parsed entries.
func writeTo(t *testing.T, e *Engine, root string, files []string, h *hasher.Hasher) []manifest.Entry {
	t.Helper()

	var buf bytes.Buffer
	out, err := manifest.NewWriter(manifest.Stdio, &buf)
	require.NoError(t, err)

	require.NoError(t, e.WriteManifest(context.Background(), root, files, h, out))
	require.NoError(t, out.Commit())

	entries, err := manifest.Read(&buf)
	require.NoError(t, err)
	return entries
}

func sortEntries(entries []manifest.Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

func TestOptionsValidate(t *testing.T) {
	opts := Options{Jobs: -1}
	require.NoError(t, opts.Validate())
	assert.Greater(t, opts.Jobs, 0)

	opts = Options{Jobs: 3}
	require.NoError(t, opts.Validate())
	assert.Equal(t, 3, opts.Jobs)
}

func TestWriteManifest(t *testing.T) {
	root, files := createTree(t, map[string]string{
		"a.txt":   "hello",
		"b/c.txt": "world",
	})

	h := hasher.New(hasher.SHA256, 0, nil)
	e := New(Options{Jobs: 4})

	entries := writeTo(t, e, root, files, h)
	sortEntries(entries)

	require.Len(t, entries, 2)
	assert.Equal(t, manifest.Entry{
		Digest: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Path:   "a.txt",
	}, entries[0])
	assert.Equal(t, manifest.Entry{
		Digest: "486ea46224d1bb4fb680f34f7c9ad96a8f24ec88be73ea8e5a6c65260e9cb8a7",
		Path:   "b/c.txt",
	}, entries[1])

	assert.Equal(t, int64(2), e.Completed())
	assert.Equal(t, int64(len("hello")+len("world")), e.BytesHashed())
}

func TestWriteManifest_Idempotent(t *testing.T) {
	root, files := createTree(t, map[string]string{
		"a.txt":   "one",
		"b.txt":   "two",
		"c/d.txt": "three",
	})

	h := hasher.New(hasher.SHA256, 0, nil)

	first := writeTo(t, New(Options{Jobs: 2}), root, files, h)
	second := writeTo(t, New(Options{Jobs: 8}), root, files, h)

	// Line order may differ between runs; sorted pairs must not.
	sortEntries(first)
	sortEntries(second)
	assert.Equal(t, first, second)
}

func TestWriteManifest_HashErrorIsFatal(t *testing.T) {
	root, files := createTree(t, map[string]string{"a.txt": "hello"})
	files = append(files, "ghost.txt") // enumerated but deleted before hashing

	h := hasher.New(hasher.SHA256, 0, nil)
	e := New(Options{Jobs: 2})

	var buf bytes.Buffer
	out, err := manifest.NewWriter(manifest.Stdio, &buf)
	require.NoError(t, err)

	err = e.WriteManifest(context.Background(), root, files, h, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost.txt")
}

func TestWriteManifest_Progress(t *testing.T) {
	root, files := createTree(t, map[string]string{
		"a.txt": "1",
		"b.txt": "2",
		"c.txt": "3",
	})

	var (
		mu   sync.Mutex
		last types.Progress
	)
	e := New(Options{Jobs: 2, Stage: "hash", OnProgress: func(p types.Progress) {
		mu.Lock()
		last = p
		mu.Unlock()
	}})

	h := hasher.New(hasher.SHA256, 0, nil)
	writeTo(t, e, root, files, h)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hash", last.Stage)
	assert.Equal(t, int64(3), last.Completed)
	assert.Equal(t, int64(3), last.Total)
}

func TestVerify_CleanTree(t *testing.T) {
	root, files := createTree(t, map[string]string{
		"a.txt":   "hello",
		"b/c.txt": "world",
	})

	h := hasher.New(hasher.SHA256, 0, nil)
	entries := writeTo(t, New(Options{Jobs: 2}), root, files, h)

	var results []types.VerifyResult
	count, err := New(Options{Jobs: 2}).Verify(context.Background(), root, entries, h, func(r types.VerifyResult) {
		results = append(results, r)
	})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, results)
}

func TestVerify_Mismatch(t *testing.T) {
	root, files := createTree(t, map[string]string{
		"a.txt":   "hello",
		"b/c.txt": "world",
	})

	h := hasher.New(hasher.SHA256, 0, nil)
	entries := writeTo(t, New(Options{Jobs: 2}), root, files, h)

	// Mutate one file after manifest creation.
	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "c.txt"), []byte("WORLD"), 0o644))

	var results []types.VerifyResult
	count, err := New(Options{Jobs: 2}).Verify(context.Background(), root, entries, h, func(r types.VerifyResult) {
		results = append(results, r)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), count)
	require.Len(t, results, 1)
	assert.Equal(t, types.StatusMismatch, results[0].Status)
	assert.Equal(t, "b/c.txt", results[0].Path)
	assert.Equal(t, sha256hex("world"), results[0].Expected)
	assert.Equal(t, sha256hex("WORLD"), results[0].Actual)
	assert.Equal(t, "[MISMATCH] b/c.txt", results[0].String())
}

func TestVerify_Missing(t *testing.T) {
	root, files := createTree(t, map[string]string{
		"a.txt": "hello",
		"b.txt": "world",
	})

	h := hasher.New(hasher.SHA256, 0, nil)
	entries := writeTo(t, New(Options{Jobs: 2}), root, files, h)

	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))

	var results []types.VerifyResult
	count, err := New(Options{Jobs: 2}).Verify(context.Background(), root, entries, h, func(r types.VerifyResult) {
		results = append(results, r)
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), count)
	require.Len(t, results, 1)
	assert.Equal(t, types.StatusMissing, results[0].Status)
	assert.Equal(t, "b.txt", results[0].Path)
	assert.Equal(t, "[MISSING] b.txt", results[0].String())
}

func TestVerify_EveryEntryVisited(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 50; i++ {
		files[fmt.Sprintf("d/f%02d.txt", i)] = fmt.Sprintf("content-%d", i)
	}
	root, rels := createTree(t, files)

	h := hasher.New(hasher.SHA256, 0, nil)
	entries := writeTo(t, New(Options{Jobs: 4}), root, rels, h)

	e := New(Options{Jobs: 4})
	count, err := e.Verify(context.Background(), root, entries, h, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, int64(len(entries)), e.Completed())
}

func TestVerify_AlgorithmMismatchReportsEverything(t *testing.T) {
	root, files := createTree(t, map[string]string{
		"a.txt": "hello",
		"b.txt": "world",
	})

	sha := hasher.New(hasher.SHA256, 0, nil)
	entries := writeTo(t, New(Options{Jobs: 2}), root, files, sha)

	// Verifying with a different algorithm systematically mismatches;
	// this is operator error, not a crash.
	b3 := hasher.New(hasher.BLAKE3Native, 0, nil)
	count, err := New(Options{Jobs: 2}).Verify(context.Background(), root, entries, b3, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(entries)), count)
}

func TestVerify_CancelledContext(t *testing.T) {
	root, files := createTree(t, map[string]string{"a.txt": "hello"})

	h := hasher.New(hasher.SHA256, 0, nil)
	entries := writeTo(t, New(Options{Jobs: 2}), root, files, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{Jobs: 2}).Verify(ctx, root, entries, h, nil)
	require.ErrorIs(t, err, context.Canceled)
}
