package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jamesainslie/archivist/cmd/archivist/tui"
	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/runner"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// errPasswordAborted is returned when the user declines to enter a password.
var errPasswordAborted = errors.New("password prompt aborted")

// passwordPrompter asks for the password of target. ok is false when the
// user aborts or enters nothing. retry reports a previous wrong password.
type passwordPrompter func(target string, attempt int, retry bool) (pw types.Password, ok bool, err error)

// driver submits requests to a runner and follows them to a terminal
// state, prompting for a password and resubmitting as needed.
type driver struct {
	run         *runner.Runner
	interactive bool
	quiet       bool
	maxAttempts int
	prompt      passwordPrompter
	out         io.Writer
	log         *logging.Logger
}

// newDriver returns a driver for the current terminal settings. The runner
// stops when ctx is cancelled.
func newDriver(ctx context.Context, exec runner.Executor, maxAttempts int) *driver {
	d := &driver{
		run:         runner.New(exec, runner.WithContext(ctx)),
		interactive: isInteractive(),
		quiet:       getQuiet(),
		maxAttempts: maxAttempts,
		out:         os.Stdout,
		log:         logging.Get("cli"),
	}
	d.prompt = plainPrompt(os.Stdin, os.Stderr)
	if d.interactive {
		d.prompt = tui.PromptPassword
	}
	return d
}

// Close stops the runner.
func (d *driver) Close() {
	d.run.Close()
}

// drive runs req until it completes or fails. A PasswordRequired outcome
// leads to a prompt and a resubmission with the entered password, bounded
// by maxAttempts when it is positive.
func (d *driver) drive(req engine.Request, title string) (engine.Result, error) {
	var res engine.Result
	err := retryPassword(d.prompt, d.maxAttempts, req.Target(), req.Password(), func(pw types.Password) error {
		h, err := d.run.Submit(req.WithPassword(pw))
		if err != nil {
			res = engine.Result{State: engine.StateFailed, Err: err}
			return err
		}
		d.log.Debug("operation submitted", "id", h.ID(), "request", h.Request())

		r, err := d.wait(h, title)
		if err != nil {
			return err
		}
		res = r
		return r.Err
	})
	return res, err
}

// wait follows h to its result, with the progress TUI when interactive
// and plain lines otherwise.
func (d *driver) wait(h *runner.Handle, title string) (engine.Result, error) {
	if d.interactive {
		if err := initTUILogging(); err != nil {
			return engine.Result{}, fmt.Errorf("failed to initialize TUI logging: %w", err)
		}
		return tui.RunOperation(title, h, func() { d.run.Cancel(h) })
	}

	done := make(chan engine.Result, 1)
	d.run.Subscribe(h,
		func(p types.Progress) {
			if !d.quiet {
				fmt.Fprintf(d.out, "[%d/%d] %s\n", p.Completed, p.Total, p.Current)
			}
		},
		func(res engine.Result) { done <- res },
	)
	return <-done, nil
}

// retryPassword calls fn until it succeeds or fails for a reason other
// than the password, prompting for a new password in between. It serves
// listing, which does not go through the runner.
func retryPassword(prompt passwordPrompter, maxAttempts int, target string, pw types.Password, fn func(types.Password) error) error {
	attempts := 0
	for {
		err := fn(pw)
		if err == nil || !types.IsPasswordError(err) {
			return err
		}
		if maxAttempts > 0 && attempts >= maxAttempts {
			return fmt.Errorf("giving up after %d password attempts: %w", attempts, err)
		}
		attempts++
		next, ok, perr := prompt(target, attempts, errors.Is(err, types.ErrIncorrectPassword))
		if perr != nil {
			return fmt.Errorf("failed to read password: %w", perr)
		}
		if !ok {
			return fmt.Errorf("%w: %w", errPasswordAborted, err)
		}
		pw = next
	}
}

// plainPrompt reads a password without echo when in is a terminal and a
// plain line otherwise.
func plainPrompt(in io.Reader, out io.Writer) passwordPrompter {
	reader := bufio.NewReader(in)
	return func(target string, attempt int, retry bool) (types.Password, bool, error) {
		if retry {
			fmt.Fprintf(out, "Incorrect password (attempt %d)\n", attempt)
		}
		fmt.Fprintf(out, "Password for %s: ", target)

		var line string
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", false, err
			}
			line = string(b)
		} else {
			s, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return "", false, err
			}
			line = strings.TrimRight(s, "\r\n")
		}
		if line == "" {
			return "", false, nil
		}
		return types.Password(line), true, nil
	}
}
