// Package transporttest provides a scripted transport for tests.
package transporttest

import (
	"context"
	"strings"
	"sync"

	"github.com/8inary/infra/internal/transport"
)

// Reply is a canned response. A non-nil Err is returned as a launch error.
type Reply struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

type rule struct {
	match   string
	replies []Reply
}

// Scripted answers commands by substring match. Rules are tried in
// registration order; a rule with several replies hands them out in turn and
// repeats the last one. Unmatched commands succeed with empty output.
type Scripted struct {
	mu      sync.Mutex
	rules   []*rule
	handler func(command string) (Reply, bool)
	calls   []string
	closed  bool
}

// New creates an empty scripted transport.
func New() *Scripted {
	return &Scripted{}
}

// On registers replies for commands containing match.
func (s *Scripted) On(match string, replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(replies) == 0 {
		replies = []Reply{{}}
	}
	s.rules = append(s.rules, &rule{match: match, replies: replies})
	return s
}

// Handle installs a dynamic handler consulted before the rules.
func (s *Scripted) Handle(fn func(command string) (Reply, bool)) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
	return s
}

// Execute records command and returns the matching reply.
func (s *Scripted) Execute(_ context.Context, command string) (*transport.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, command)
	handler := s.handler
	reply := s.lookup(command)
	s.mu.Unlock()

	if handler != nil {
		if r, ok := handler(command); ok {
			reply = r
		}
	}

	if reply.Err != nil {
		return nil, &transport.LaunchError{Command: command, Err: reply.Err}
	}
	return &transport.Result{
		Command:  command,
		ExitCode: reply.ExitCode,
		Stdout:   reply.Stdout,
		Stderr:   reply.Stderr,
	}, nil
}

func (s *Scripted) lookup(command string) Reply {
	for _, r := range s.rules {
		if !strings.Contains(command, r.match) {
			continue
		}
		reply := r.replies[0]
		if len(r.replies) > 1 {
			r.replies = r.replies[1:]
		}
		return reply
	}
	return Reply{}
}

// Close marks the transport closed.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns every command executed so far.
func (s *Scripted) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how many executed commands contain match.
func (s *Scripted) Count(match string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c, match) {
			n++
		}
	}
	return n
}

// Ran reports whether any executed command contains match.
func (s *Scripted) Ran(match string) bool {
	return s.Count(match) > 0
}

// Index returns the position of the first command containing match, or -1.
func (s *Scripted) Index(match string) int {
	for i, c := range s.Calls() {
		if strings.Contains(c, match) {
			return i
		}
	}
	return -1
}
