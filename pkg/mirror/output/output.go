// Package output renders progress lines and the run summary on the
// error stream. Rendering is a collaborator of the hashing engine, not
// part of it: the engine only sees the OnProgress callback.
package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jamesainslie/mirror/pkg/mirror/pipeline"
	"github.com/jamesainslie/mirror/pkg/mirror/types"
)

// Progress prints periodic plain-text progress lines, one per stage,
// e.g. "Hashing: 300/1200 files". It prints every interval completions
// and always at stage start and end, so a pipe full of manifest lines
// on stdout stays clean while stderr shows liveness.
type Progress struct {
	mu       sync.Mutex
	w        io.Writer
	interval int64
	lastSeen int64
	stage    string
}

// NewProgress creates a progress printer writing to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w, interval: 100}
}

// Update implements the engine's OnProgress contract. Safe for
// concurrent use.
func (p *Progress) Update(pr types.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pr.Stage != p.stage {
		p.stage = pr.Stage
		p.lastSeen = -1
	}

	// Print on stage boundaries and every interval completions.
	if pr.Completed != pr.Total && pr.Completed-p.lastSeen < p.interval && p.lastSeen >= 0 {
		return
	}
	p.lastSeen = pr.Completed

	fmt.Fprintf(p.w, "%s: %d/%d files (%s)\n",
		stageLabel(pr.Stage), pr.Completed, pr.Total, types.FormatSize(pr.Bytes))
}

func stageLabel(stage string) string {
	switch stage {
	case "verify":
		return "Verifying"
	default:
		return "Hashing"
	}
}

// Banner renders the run header printed before the first stage.
func Banner(step string, dryRun bool, algo string) string {
	var b strings.Builder
	b.WriteString("=== Mirror ===\n")
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Time:"), time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Step:"), step)
	fmt.Fprintf(&b, "%s %v\n", LabelStyle.Render("Dry:"), dryRun)
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Algo:"), algo)
	return b.String()
}

// Summary renders the final run report.
func Summary(res *pipeline.Result, err error) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Run:"), res.RunID)
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Algo:"), res.Algorithm.String())
	fmt.Fprintf(&b, "%s %d (%s)\n", LabelStyle.Render("Files:"),
		res.FilesHashed, types.FormatSize(res.BytesHashed))
	if res.Elapsed > 0 {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Elapsed:"),
			res.Elapsed.Round(time.Millisecond))
	}

	switch {
	case err == nil:
		b.WriteString(SuccessStyle.Render("[OK] Mirror complete."))
		b.WriteString("\n")
	case res.VerifyErrors > 0:
		b.WriteString(ErrorStyle.Render(
			fmt.Sprintf("[ERROR] Verification failed: %d problem(s).", res.VerifyErrors)))
		b.WriteString("\n")
	}
	// Other failures are reported once by the command wrapper.

	return b.String()
}
