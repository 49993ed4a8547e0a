package transport

import (
	"context"
	"fmt"
	"strings"
)

// Transport executes commands on one machine.
type Transport interface {
	// Execute runs command to completion and returns its result.
	Execute(ctx context.Context, command string) (*Result, error)
	// Close releases the session. Execute must not be called afterwards.
	Close() error
}

// Result is the outcome of one command invocation.
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with status zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Err returns a *CommandError for a non-zero exit, nil otherwise.
func (r *Result) Err() error {
	if r.Success() {
		return nil
	}
	return &CommandError{
		Command:  r.Command,
		ExitCode: r.ExitCode,
		Stderr:   strings.TrimSpace(r.Stderr),
	}
}

// LaunchError reports that a command could not be started or its session
// could not be established.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// CommandError reports a command that ran and exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q exited with status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// Run executes command and treats a non-zero exit as an error. It returns
// stdout on success.
func Run(ctx context.Context, t Transport, command string) (string, error) {
	res, err := t.Execute(ctx, command)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return res.Stdout, err
	}
	return res.Stdout, nil
}

// Succeeds executes command and reports whether it exited zero. Only launch
// failures are returned as errors.
func Succeeds(ctx context.Context, t Transport, command string) (bool, error) {
	res, err := t.Execute(ctx, command)
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}
