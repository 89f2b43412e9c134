package app

import (
	"os"
	"testing"
)

func TestReadManifestFromPipedStdin(t *testing.T) {
	oldStdin, oldReader, oldTerminal := os.Stdin, stdinReader, isTerminal
	t.Cleanup(func() {
		os.Stdin = oldStdin
		stdinReader = oldReader
		isTerminal = oldTerminal
	})

	f, err := os.CreateTemp(t.TempDir(), "stdin-*")
	if err != nil {
		t.Fatalf("os.CreateTemp() error = %v", err)
	}
	if _, err := f.WriteString("---JOB---\nname: smoke\n---COMMAND---\ntrue\n"); err != nil {
		t.Fatalf("write stdin: %v", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}

	os.Stdin = f
	stdinReader = f
	isTerminal = defaultIsTerminal
	if defaultIsTerminal() {
		t.Fatalf("defaultIsTerminal() = true, want false for a regular file")
	}
	m, err := readManifest("")
	if err != nil {
		t.Fatalf("readManifest() error = %v", err)
	}
	if len(m.Jobs) != 1 || m.Jobs[0].Name != "smoke" {
		t.Fatalf("unexpected manifest %+v", m.Jobs)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !defaultIsTerminal() {
		t.Fatalf("defaultIsTerminal() = false, want true when Stat fails")
	}
	if _, err := readManifest(""); err == nil {
		t.Fatalf("readManifest() should refuse to read a terminal")
	}
}
