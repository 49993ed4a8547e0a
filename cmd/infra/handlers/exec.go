package handlers

import (
	"context"
	"fmt"
	"strings"
)

// Exec runs command on the selected machine through the same transport the
// steps use and relays its output. A non-zero exit is returned as an error.
func Exec(ctx context.Context, opts Options, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given")
	}
	command := strings.Join(args, " ")

	s, err := openSession(ctx, opts, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	s.log.V(1).Info("executing", "command", command)
	res, err := s.exec.Execute(ctx, command)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprint(stdout, res.Stdout)
	_, _ = fmt.Fprint(stderr, res.Stderr)
	return res.Err()
}
