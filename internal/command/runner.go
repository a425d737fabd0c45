package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Result is the cross-process signal of a finished subprocess. A non-zero
// exit code is a Result, not an error; errors are reserved for failures to
// start or capture the command at all.
type Result struct {
	ExitCode int
	Elapsed  time.Duration
}

// Failed reports whether the subprocess exited non-zero.
func (r Result) Failed() bool { return r.ExitCode != 0 }

// Runner abstracts subprocess execution so the destructive flows can be
// exercised in tests without touching the host.
type Runner interface {
	// Run executes a command, discarding stdout.
	Run(ctx context.Context, name string, args ...string) (Result, error)
	// RunToFile executes a command with stdout and stderr appended to
	// the log file at logPath, creating it if needed.
	RunToFile(ctx context.Context, logPath, name string, args ...string) (Result, error)
	// Output executes a command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env entries are appended to the current environment.
	Env []string
}

var _ Runner = (*ExecRunner)(nil)

func (e *ExecRunner) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	return cmd
}

// Run executes the command, discarding stdout and passing stderr through.
func (e *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := e.command(ctx, name, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr

	start := time.Now()
	err := cmd.Run()
	return resolve(err, time.Since(start))
}

// RunToFile executes the command with combined output appended to logPath.
func (e *ExecRunner) RunToFile(ctx context.Context, logPath, name string, args ...string) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("create log directory for %q: %w", logPath, err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("open log file %q: %w", logPath, err)
	}
	defer logFile.Close()

	cmd := e.command(ctx, name, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	start := time.Now()
	runErr := cmd.Run()
	return resolve(runErr, time.Since(start))
}

// Output executes the command and captures stdout; stderr passes through.
func (e *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, Result, error) {
	cmd := e.command(ctx, name, args...)
	cmd.Stderr = os.Stderr

	start := time.Now()
	out, err := cmd.Output()
	res, err := resolve(err, time.Since(start))
	return out, res, err
}

// resolve maps an exec error into an exit-code Result. Only failures to
// launch surface as errors.
func resolve(err error, elapsed time.Duration) (Result, error) {
	res := Result{Elapsed: elapsed}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, err
}
