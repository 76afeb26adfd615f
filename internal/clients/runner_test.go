package clients

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Output(t *testing.T) {
	t.Parallel()

	r := &ExecRunner{Dir: t.TempDir()}
	out, err := r.Output(context.Background(), "sh", "-c", "echo ready")
	require.NoError(t, err)
	assert.Equal(t, "ready\n", string(out))
}

func TestExecRunner_OutputFailure(t *testing.T) {
	t.Parallel()

	r := &ExecRunner{}
	_, err := r.Output(context.Background(), "sh", "-c", "echo boom >&2; exit 3")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "boom", cmdErr.Stderr)
	assert.Equal(t, `sh -c 'echo boom >&2; exit 3'`, cmdErr.Command)
}

func TestExecRunner_StreamForwardsOutput(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	r := &ExecRunner{Stdout: &stdout, Stderr: &stderr}
	err := r.Stream(context.Background(), "sh", "-c", "echo pulling; echo warn >&2; exit 1")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, "pulling\n", stdout.String())
	assert.Equal(t, "warn\n", stderr.String())
	assert.Equal(t, "warn", cmdErr.Stderr)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	t.Parallel()

	r := &ExecRunner{}
	_, err := r.Output(context.Background(), "definitely-not-installed-binary")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, -1, cmdErr.ExitCode)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
}

func TestNewCommandError_TruncatesStderr(t *testing.T) {
	t.Parallel()

	long := bytes.Repeat([]byte("x"), maxStderr+100)
	err := newCommandError("pip", []string{"install"}, string(long), errors.New("exit status 1"))
	assert.Len(t, []rune(err.Stderr), maxStderr+1)
	assert.Contains(t, err.Error(), "pip install: exit status 1")
}
