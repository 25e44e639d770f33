package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// stderrTailLimit bounds how much encoder diagnostic output is carried
// on errors, so a chatty ffmpeg run can't blow up error messages or the
// job registry.
const stderrTailLimit = 2000

// Runner executes one encoder invocation. The pipeline depends on this
// interface so stage failures can be simulated in tests without a real
// ffmpeg binary.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) error
}

// RunError is the failure signal of a subprocess: exit code or timeout,
// plus the tail of its stderr. The exit code and diagnostic stream are
// the only error protocol ffmpeg has.
type RunError struct {
	Name       string
	TimedOut   bool
	ExitCode   int
	StderrTail string
	Err        error
}

func (e *RunError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out: %s", e.Name, e.StderrTail)
	}
	return fmt.Sprintf("%s failed (rc=%d): %s", e.Name, e.ExitCode, e.StderrTail)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// tailWriter keeps only the last max bytes written through it.
type tailWriter struct {
	max int
	buf []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.max {
		w.buf = w.buf[len(w.buf)-w.max:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return strings.TrimSpace(string(w.buf))
}

// ExecRunner runs real subprocesses with a wall-clock timeout and
// bounded stderr capture.
type ExecRunner struct {
	log *zap.SugaredLogger
}

func NewExecRunner(log *zap.SugaredLogger) *ExecRunner {
	return &ExecRunner{log: log}
}

func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stderr := &tailWriter{max: stderrTailLimit}

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stderr = stderr

	r.log.Debugf("exec: %s %s", name, strings.Join(args, " "))

	err := cmd.Run()
	if err == nil {
		return nil
	}

	runErr := &RunError{
		Name:       name,
		ExitCode:   -1,
		StderrTail: stderr.String(),
		Err:        err,
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		runErr.TimedOut = true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		runErr.ExitCode = exitErr.ExitCode()
	}
	return runErr
}
