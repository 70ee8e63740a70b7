package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	runVersion(versionCmd, nil)

	out := buf.String()
	if !strings.HasPrefix(out, "mirror dev (") {
		t.Errorf("version output = %q, want 'mirror dev (...' prefix", out)
	}
	if !strings.Contains(out, "commit none, built unknown") {
		t.Errorf("version output = %q, missing commit/build line", out)
	}
}
