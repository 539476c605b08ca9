package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/runner"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// scriptedPrompt answers prompts from a fixed list and records the calls.
type scriptedPrompt struct {
	answers []string
	retries []bool
}

func (s *scriptedPrompt) prompt(_ string, _ int, retry bool) (types.Password, bool, error) {
	s.retries = append(s.retries, retry)
	if len(s.answers) == 0 {
		return "", false, nil
	}
	next := s.answers[0]
	s.answers = s.answers[1:]
	return types.Password(next), next != "", nil
}

func newTestDriver(t *testing.T, prompt passwordPrompter, maxAttempts int) *driver {
	t.Helper()
	d := &driver{
		run:         runner.New(engine.New()),
		quiet:       true,
		maxAttempts: maxAttempts,
		prompt:      prompt,
		out:         io.Discard,
		log:         logging.Get("cli"),
	}
	t.Cleanup(d.Close)
	return d
}

// encryptedZip creates dir/secret.zip holding a.txt = "hello world".
func encryptedZip(t *testing.T) (archive, dir string) {
	t.Helper()
	dir = t.TempDir()
	src := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(src, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	archive = filepath.Join(dir, "secret.zip")
	res := engine.New().Execute(context.Background(), engine.NewCreate(archive, src).WithPassword("secret"), nil)
	if res.Err != nil {
		t.Fatalf("create: %v", res.Err)
	}
	return archive, dir
}

func TestDrivePromptsUntilPasswordIsRight(t *testing.T) {
	archive, dir := encryptedZip(t)
	dest := filepath.Join(dir, "out")
	sp := &scriptedPrompt{answers: []string{"wrong", "secret"}}
	d := newTestDriver(t, sp.prompt, 0)

	res, err := d.drive(engine.NewExtract(archive, dest), "Extracting")
	if err != nil {
		t.Fatalf("drive() error = %v", err)
	}
	if res.State != engine.StateCompleted {
		t.Errorf("State = %s, want completed", res.State)
	}
	if len(sp.retries) != 2 || sp.retries[0] || !sp.retries[1] {
		t.Errorf("prompt retries = %v, want [false true]", sp.retries)
	}
	data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	if err != nil || string(data) != "hello world" {
		t.Errorf("a.txt = %q, %v", data, err)
	}
}

func TestDriveStopsAtMaxAttempts(t *testing.T) {
	archive, dir := encryptedZip(t)
	sp := &scriptedPrompt{answers: []string{"wrong", "wrong", "wrong"}}
	d := newTestDriver(t, sp.prompt, 2)

	res, err := d.drive(engine.NewExtract(archive, filepath.Join(dir, "out")), "Extracting")
	if !errors.Is(err, types.ErrIncorrectPassword) {
		t.Fatalf("drive() error = %v, want ErrIncorrectPassword", err)
	}
	if res.State != engine.StatePasswordRequired {
		t.Errorf("State = %s, want password required", res.State)
	}
	if len(sp.retries) != 2 {
		t.Errorf("prompted %d times, want 2", len(sp.retries))
	}
}

func TestDriveAbortedPrompt(t *testing.T) {
	archive, dir := encryptedZip(t)
	sp := &scriptedPrompt{}
	d := newTestDriver(t, sp.prompt, 0)

	_, err := d.drive(engine.NewExtract(archive, filepath.Join(dir, "out")), "Extracting")
	if !errors.Is(err, errPasswordAborted) || !errors.Is(err, types.ErrPasswordRequired) {
		t.Errorf("drive() error = %v, want aborted prompt wrapping ErrPasswordRequired", err)
	}
}

func TestDriveRejectsInvalidRequest(t *testing.T) {
	d := newTestDriver(t, (&scriptedPrompt{}).prompt, 0)

	res, err := d.drive(engine.NewCreate(filepath.Join(t.TempDir(), "out.zip")), "Creating")
	if !errors.Is(err, types.ErrInvalidRequest) {
		t.Errorf("drive() error = %v, want ErrInvalidRequest", err)
	}
	if res.State != engine.StateFailed {
		t.Errorf("State = %s, want failed", res.State)
	}
}

func TestDrivePrintsPlainProgress(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var out bytes.Buffer
	d := newTestDriver(t, (&scriptedPrompt{}).prompt, 0)
	d.quiet = false
	d.out = &out

	req := engine.NewCreate(filepath.Join(dir, "out.tar"), filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt"))
	if _, err := d.drive(req, "Creating"); err != nil {
		t.Fatalf("drive() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "[1/2]") || !strings.HasPrefix(lines[1], "[2/2]") {
		t.Errorf("progress output = %q", out.String())
	}
}

func TestRetryPasswordPassesOtherErrorsThrough(t *testing.T) {
	sp := &scriptedPrompt{answers: []string{"x"}}
	boom := errors.New("boom")
	err := retryPassword(sp.prompt, 0, "a.7z", "", func(types.Password) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if len(sp.retries) != 0 {
		t.Error("non-password errors must not prompt")
	}
}

func TestPlainPrompt(t *testing.T) {
	var out bytes.Buffer
	prompt := plainPrompt(strings.NewReader("s3cret\n\n"), &out)

	pw, ok, err := prompt("data.7z", 1, false)
	if err != nil || !ok || pw.Reveal() != "s3cret" {
		t.Errorf("first prompt = (%v, %v, %v)", pw, ok, err)
	}
	if !strings.Contains(out.String(), "Password for data.7z: ") {
		t.Errorf("prompt output = %q", out.String())
	}

	_, ok, err = prompt("data.7z", 2, true)
	if err != nil || ok {
		t.Errorf("empty line should abort, got ok=%v err=%v", ok, err)
	}
	if !strings.Contains(out.String(), "Incorrect password (attempt 2)") {
		t.Errorf("retry output = %q", out.String())
	}

	_, ok, err = prompt("data.7z", 3, true)
	if err != nil || ok {
		t.Errorf("EOF should abort, got ok=%v err=%v", ok, err)
	}
}
