package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Runner executes external commands. ExecRunner is the real implementation;
// tests substitute a recorder.
type Runner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Stream runs the command with its output forwarded to the operator.
	Stream(ctx context.Context, name string, args ...string) error
}

// CommandError describes a command that could not start or exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// maxStderr bounds how much stderr is kept on a CommandError.
const maxStderr = 2048

// ExecRunner runs commands with os/exec in Dir.
type ExecRunner struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	slog.DebugContext(ctx, "running command", "cmd", commandLine(name, args))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, newCommandError(name, args, stderr.String(), err)
	}
	return out, nil
}

// Stream implements Runner. Stdout and stderr are forwarded as they are
// produced; the tail of stderr is kept for the error.
func (r *ExecRunner) Stream(ctx context.Context, name string, args ...string) error {
	slog.InfoContext(ctx, "running command", "cmd", commandLine(name, args))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir

	stdout, stderrOut := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderrOut == nil {
		stderrOut = os.Stderr
	}

	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderrOut, &stderr)

	if err := cmd.Run(); err != nil {
		return newCommandError(name, args, stderr.String(), err)
	}
	return nil
}

func newCommandError(name string, args []string, stderr string, err error) *CommandError {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderr {
		stderr = "…" + stderr[len(stderr)-maxStderr:]
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}

	return &CommandError{
		Command:  commandLine(name, args),
		ExitCode: code,
		Stderr:   stderr,
		Err:      err,
	}
}

// commandLine renders a command the way a shell would accept it back.
func commandLine(name string, args []string) string {
	return shellquote.Join(append([]string{name}, args...)...)
}
