package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/archivist/pkg/archivist/container"
	"github.com/jamesainslie/archivist/pkg/archivist/fsguard"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// State is the lifecycle state of an operation.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed

	// StatePasswordRequired covers both a missing and a wrong password;
	// the request may be resubmitted with a password.
	StatePasswordRequired
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StatePasswordRequired:
		return "password required"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends an operation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StatePasswordRequired
}

// Result is the outcome of an operation.
type Result struct {
	State State

	// Output is the extraction directory or the created archive.
	Output string

	// Err is nil on completion and otherwise wraps one error kind.
	Err error

	// Progress is the last progress reported.
	Progress types.Progress
}

// StateFor maps an operation error onto its terminal state.
func StateFor(err error) State {
	switch {
	case err == nil:
		return StateCompleted
	case types.IsPasswordError(err):
		return StatePasswordRequired
	}
	return StateFailed
}

// Execute validates and runs req, calling progress once per finished item.
// It blocks until the operation ends.
func (e *Engine) Execute(ctx context.Context, req Request, progress func(types.Progress)) Result {
	start := time.Now()
	var last types.Progress
	report := func(p types.Progress) {
		last = p
		if progress != nil {
			progress(p)
		}
	}

	var (
		output string
		err    error
	)
	if err = e.Validate(req); err == nil {
		e.log.Info("operation started", "kind", req.Kind, "target", req.Target(), "encrypted", req.Password().IsSet())
		switch req.Kind {
		case KindExtract:
			output, err = e.extract(ctx, req.Extract, report)
		case KindCreate:
			output, err = e.create(ctx, req.Create, report)
		}
	}

	if err != nil && errors.Is(err, context.Canceled) && !errors.Is(err, types.ErrCancelled) {
		err = fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}
	res := Result{State: StateFor(err), Output: output, Err: err, Progress: last}
	if err != nil {
		e.log.Warn("operation ended", "kind", req.Kind, "target", req.Target(), "state", res.State,
			"error", err, "elapsed", time.Since(start).Round(time.Millisecond))
	} else {
		e.log.Info("operation completed", "kind", req.Kind, "output", output,
			"items", last.Completed, "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return res
}

func (e *Engine) extract(ctx context.Context, r *ExtractRequest, report func(types.Progress)) (string, error) {
	a, format, err := e.open(r.Archive, r.Password)
	if err != nil {
		return "", err
	}
	defer a.Close()

	// The listing pass fixes the total before anything is written.
	sel := container.NewSelector(r.Members)
	var total int
	var size uint64
	for entry, err := range a.Entries(ctx) {
		if err != nil {
			return "", err
		}
		if clean, cerr := fsguard.CleanEntryPath(entry.Path); cerr == nil && (clean == "" || !sel.Match(clean)) {
			continue
		}
		total++
		size += entry.Size
	}
	if missing := sel.Missing(); len(missing) > 0 {
		return "", invalid("members not in archive: %v", missing)
	}

	dest, err := filepath.Abs(r.Dest)
	if err != nil {
		return "", fmt.Errorf("%w: resolve destination: %w", types.ErrIO, err)
	}
	if total == 0 {
		report(types.Progress{})
		return dest, nil
	}
	if err := e.checkSpace(dest, size); err != nil {
		return "", err
	}

	e.log.Debug("extracting", "archive", r.Archive, "format", format, "entries", total, "bytes", size)
	_, err = container.Extract(ctx, a, container.ExtractOptions{
		Dest:     dest,
		Members:  r.Members,
		Total:    total,
		Progress: report,
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

// checkSpace fails when the filesystem holding dest cannot fit need bytes.
func (e *Engine) checkSpace(dest string, need uint64) error {
	if e.freeSpace == nil || need == 0 {
		return nil
	}
	probe := dest
	for {
		if _, err := os.Stat(probe); err == nil {
			break
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return nil
		}
		probe = parent
	}
	free, ok, err := e.freeSpace(probe)
	if err != nil {
		e.log.Debug("free space probe failed", "path", probe, "error", err)
		return nil
	}
	if ok && free < need {
		return fmt.Errorf("%w: extraction needs %s but only %s is free on %s",
			types.ErrIO, humanize.IBytes(need), humanize.IBytes(free), probe)
	}
	return nil
}

func (e *Engine) create(ctx context.Context, r *CreateRequest, report func(types.Progress)) (string, error) {
	format, compression, err := e.validateCreate(r)
	if err != nil {
		return "", err
	}
	w, err := e.writer(format)
	if err != nil {
		return "", err
	}
	dest, err := filepath.Abs(r.Dest)
	if err != nil {
		return "", fmt.Errorf("%w: resolve destination: %w", types.ErrIO, err)
	}

	groups, err := container.Expand(ctx, r.Sources, dest)
	if err != nil {
		return "", err
	}
	level := r.Level
	if level == DefaultLevel {
		level = e.level
	}
	method := r.Method
	if method == "" {
		method = e.zipMethod
	}
	opts := container.WriteOptions{
		Password:    r.Password,
		Level:       level,
		Compression: compression,
		Method:      method,
	}

	e.log.Debug("creating", "dest", dest, "format", format, "compression", compression,
		"sources", len(groups), "items", container.CountItems(groups), "level", level)
	if err := w.Write(ctx, dest, groups, opts, report); err != nil {
		return "", err
	}
	return dest, nil
}
