package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func isolateCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("ARCHIVIST_LOGGING_PATH", filepath.Join(home, "archivist.log"))
	return home
}

func TestCLIRoundTrip(t *testing.T) {
	home := isolateCLI(t)
	src := filepath.Join(home, "project")
	if err := os.MkdirAll(filepath.Join(src, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"README.md":     "# project\n",
		"docs/guide.md": "guide\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	archive := filepath.Join(home, "project.7z")

	if out, err := runCLI(t, "create", "-n", "-q", "-p", "pw", archive, src); err != nil {
		t.Fatalf("create failed: %v\n%s", err, out)
	}

	out, err := runCLI(t, "list", "-o", "jsonl", "--files-only", "--sort", "path", archive)
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("list printed %d lines, want 2:\n%s", len(lines), out)
	}
	var first struct {
		Path      string `json:"path"`
		Encrypted bool   `json:"encrypted"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Path != "project/README.md" || !first.Encrypted {
		t.Errorf("first entry = %+v", first)
	}

	dest := filepath.Join(home, "out")
	if out, err := runCLI(t, "extract", "-n", "-q", "-p", "pw", "-m", "project/docs/", archive, dest); err != nil {
		t.Fatalf("extract failed: %v\n%s", err, out)
	}
	data, err := os.ReadFile(filepath.Join(dest, "project", "docs", "guide.md"))
	if err != nil || string(data) != "guide\n" {
		t.Errorf("guide.md = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(dest, "project", "README.md")); !os.IsNotExist(err) {
		t.Error("README.md was extracted although it was not selected")
	}
}

func TestCLIFormats(t *testing.T) {
	isolateCLI(t)
	out, err := runCLI(t, "formats")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"FORMAT", "tar.zst", ".tzst", "rar"} {
		if !strings.Contains(out, want) {
			t.Errorf("formats output lacks %q:\n%s", want, out)
		}
	}
}

func TestCLIVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "archivist dev") {
		t.Errorf("version output = %q", out)
	}
}
