package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chronicle/internal/wait"
)

// runCLI executes the root command against a private home directory with
// small segments.
func runCLI(t *testing.T, homeDir, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{
		"--home", homeDir,
		"--log-level", "error",
		"--data-segment-size", "64K",
		"--index-segment-size", "64K",
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestWriteThenTail(t *testing.T) {
	homeDir := t.TempDir()
	if _, err := runCLI(t, homeDir, "alpha\nbeta\ngamma\n", "write", "feed"); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := runCLI(t, homeDir, "", "tail", "feed")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out)
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		fields := strings.Split(lines[i], "\t")
		if len(fields) != 3 || fields[0] != []string{"0", "1", "2"}[i] || fields[2] != want {
			t.Fatalf("line %d: %q", i, lines[i])
		}
	}

	out, err = runCLI(t, homeDir, "", "tail", "feed", "--from", "2", "--hex")
	if err != nil {
		t.Fatalf("tail --hex: %v", err)
	}
	if !strings.HasPrefix(out, "2\t") || strings.Count(out, "\n") != 1 {
		t.Fatalf("unexpected hex output %q", out)
	}
}

func TestStatsJSON(t *testing.T) {
	homeDir := t.TempDir()
	if _, err := runCLI(t, homeDir, "one\ntwo\n", "write", "feed"); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := runCLI(t, homeDir, "", "stats", "feed", "-o", "json")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var doc struct {
		Path    string `json:"path"`
		Entries uint64 `json:"entries"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if doc.Entries != 2 || filepath.Base(doc.Path) != "feed" {
		t.Fatalf("unexpected stats %+v", doc)
	}

	out, err = runCLI(t, homeDir, "", "stats", "feed")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Entries:") || !strings.Contains(out, "64K") {
		t.Fatalf("unexpected table %q", out)
	}
}

func TestExportImportClear(t *testing.T) {
	homeDir := t.TempDir()
	if _, err := runCLI(t, homeDir, "a\nb\nc\nd\n", "write", "src"); err != nil {
		t.Fatalf("write: %v", err)
	}
	archivePath := filepath.Join(t.TempDir(), "src.chra")
	if _, err := runCLI(t, homeDir, "", "export", "src", "--codec", "brotli", "--from", "1", "--file", archivePath); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if _, err := runCLI(t, homeDir, "", "import", "dst", "--file", archivePath); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := runCLI(t, homeDir, "", "tail", "dst")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if got := strings.Count(out, "\n"); got != 3 || !strings.HasSuffix(out, "\td\n") {
		t.Fatalf("unexpected imported records %q", out)
	}

	if _, err := runCLI(t, homeDir, "", "clear", "dst"); err == nil {
		t.Fatal("clear without --force should fail")
	}
	if _, err := runCLI(t, homeDir, "", "clear", "dst", "--force"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	out, err = runCLI(t, homeDir, "", "tail", "dst")
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if out != "" {
		t.Fatalf("expected no records after clear, got %q", out)
	}
}

func TestConfigFileDefaultsPath(t *testing.T) {
	homeDir := t.TempDir()
	cfg := "path: configured\nwriter_lock: true\n"
	if err := os.WriteFile(filepath.Join(homeDir, "chronicle.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, homeDir, "x\n", "write"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(homeDir, "chronicles", "configured.data")); err != nil {
		t.Fatalf("expected configured chronicle: %v", err)
	}
	if _, err := os.Stat(filepath.Join(homeDir, "chronicles", "configured.lock")); err != nil {
		t.Fatalf("expected lock file: %v", err)
	}
}

func TestInvalidFlags(t *testing.T) {
	homeDir := t.TempDir()
	if _, err := runCLI(t, homeDir, "", "tail", "feed", "--wait", "nap"); err == nil {
		t.Fatal("expected unknown wait strategy error")
	}
	if _, err := runCLI(t, homeDir, "", "export", "feed", "--codec", "lz4"); err == nil {
		t.Fatal("expected unknown codec error")
	}
	if _, err := runCLI(t, homeDir, "", "stats", "feed", "-o", "yaml"); err == nil {
		t.Fatal("expected unknown output format error")
	}
	if _, err := runCLI(t, homeDir, "", "stats", "absent"); err == nil {
		t.Fatal("expected error for missing chronicle")
	}
}

func TestRunBench(t *testing.T) {
	res, err := runBench(context.Background(), benchOptions{
		Dir:         t.TempDir(),
		Runs:        5000,
		SegmentSize: 1 << 16,
		IndexSize:   1 << 16,
		Wait:        func() wait.Strategy { return wait.Yield{} },
	})
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
	if res.Entries != 10000 || res.Rate <= 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}
