package transport

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

const defaultShell = "sh"

// Local runs commands on this host through a POSIX shell.
type Local struct {
	shell string
	env   []string
}

// LocalOption configures a Local transport.
type LocalOption func(*Local)

// WithShell overrides the shell binary (default "sh").
func WithShell(shell string) LocalOption {
	return func(l *Local) {
		l.shell = shell
	}
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) LocalOption {
	return func(l *Local) {
		l.env = append(l.env, env...)
	}
}

// NewLocal creates a local transport.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{shell: defaultShell}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute runs command via "<shell> -c".
func (l *Local) Execute(ctx context.Context, command string) (*Result, error) {
	cmd := exec.CommandContext(ctx, l.shell, "-c", command) //nolint:gosec // commands are built by this program
	if len(l.env) > 0 {
		cmd.Env = append(cmd.Environ(), l.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{
		Command: command,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, &LaunchError{Command: command, Err: ctx.Err()}
	}
	return nil, &LaunchError{Command: command, Err: err}
}

// Close is a no-op for the local transport.
func (l *Local) Close() error {
	return nil
}
