package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotReady is returned by Poll when every attempt observed a not-ready probe.
var ErrNotReady = errors.New("readiness condition not reached")

const (
	defaultPollAttempts  = 6
	defaultPollBaseDelay = 4 * time.Second
)

// Probe reports whether the awaited condition holds. A non-nil error aborts polling.
type Probe func(ctx context.Context) (bool, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// PollConfig controls the Poll schedule. Before attempt i (0-based) Poll sleeps
// BaseDelay * 2^i, so with the defaults the waits are 4s, 8s, ... 128s.
type PollConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       Sleeper
}

// PollOption is a functional option for Poll.
type PollOption func(*PollConfig)

// WithAttempts sets the exact number of probe invocations before giving up.
func WithAttempts(n int) PollOption {
	return func(c *PollConfig) {
		c.MaxAttempts = n
	}
}

// WithBaseDelay sets the wait before the first probe; it doubles afterwards.
func WithBaseDelay(d time.Duration) PollOption {
	return func(c *PollConfig) {
		c.BaseDelay = d
	}
}

// WithSleeper replaces the wall-clock sleep. Used by tests.
func WithSleeper(s Sleeper) PollOption {
	return func(c *PollConfig) {
		c.Sleep = s
	}
}

// Poll sleeps and probes until the probe reports true, an attempt budget of
// MaxAttempts probes is spent, the probe fails, or ctx is cancelled.
func Poll(ctx context.Context, probe Probe, opts ...PollOption) error {
	cfg := &PollConfig{
		MaxAttempts: defaultPollAttempts,
		BaseDelay:   defaultPollBaseDelay,
		Sleep:       sleep,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("poll attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseDelay <= 0 {
		return fmt.Errorf("poll base delay must be positive, got %s", cfg.BaseDelay)
	}

	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := cfg.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("polling interrupted before attempt %d: %w", attempt, err)
		}
		ready, err := probe(ctx)
		if err != nil {
			return fmt.Errorf("readiness probe failed on attempt %d: %w", attempt, err)
		}
		if ready {
			return nil
		}
		delay *= 2
	}

	return fmt.Errorf("%w after %d attempts", ErrNotReady, cfg.MaxAttempts)
}
