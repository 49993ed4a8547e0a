package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		command  string
		exitCode int
		stdout   string
		stderr   string
	}{
		{"stdout", "printf hello", 0, "hello", ""},
		{"stderr kept separate", "printf out; printf err >&2", 0, "out", "err"},
		{"non-zero exit is data", "printf partial; exit 3", 3, "partial", ""},
		{"pipeline", "printf 'a\\nb\\n' | wc -l | tr -d ' '", 0, "2\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := NewLocal().Execute(context.Background(), tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.exitCode, res.ExitCode)
			assert.Equal(t, tt.stdout, res.Stdout)
			assert.Equal(t, tt.stderr, res.Stderr)
			assert.Equal(t, tt.command, res.Command)
		})
	}
}

func TestLocal_MissingShellIsLaunchError(t *testing.T) {
	t.Parallel()
	_, err := NewLocal(WithShell("/nonexistent/shell")).Execute(context.Background(), "true")

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "true", launchErr.Command)
}

func TestLocal_Env(t *testing.T) {
	t.Parallel()
	res, err := NewLocal(WithEnv("INFRA_TEST_VALUE=42")).Execute(context.Background(), "printf $INFRA_TEST_VALUE")
	require.NoError(t, err)
	assert.Equal(t, "42", res.Stdout)
}

func TestLocal_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal().Execute(ctx, "sleep 5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResult_Err(t *testing.T) {
	t.Parallel()

	ok := &Result{Command: "true"}
	assert.NoError(t, ok.Err())
	assert.True(t, ok.Success())

	failed := &Result{Command: "ufw reload", ExitCode: 1, Stderr: "  permission denied\n"}
	err := failed.Err()
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, "permission denied", cmdErr.Stderr)
	assert.Equal(t, `command "ufw reload" exited with status 1: permission denied`, err.Error())
}

func TestRunAndSucceeds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	local := NewLocal()

	out, err := Run(ctx, local, "printf ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = Run(ctx, local, "exit 2")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 2, cmdErr.ExitCode)

	ok, err := Succeeds(ctx, local, "exit 1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Succeeds(ctx, local, "true")
	require.NoError(t, err)
	assert.True(t, ok)
}
