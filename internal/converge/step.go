package converge

import (
	"context"
	"time"
)

// Step is one unit of desired state.
type Step interface {
	// Name identifies the step in logs, metrics and errors.
	Name() string

	// Check reports whether the machine already satisfies the step.
	// It must not change the machine.
	Check(ctx context.Context) (bool, error)

	// Apply moves the machine toward the state Check looks for.
	Apply(ctx context.Context) error
}

// OneShot marks steps whose Check cannot observe the result of Apply.
// A successful Apply of a one-shot step is accepted without
// re-verification.
type OneShot interface {
	OneShot() bool
}

func isOneShot(s Step) bool {
	o, ok := s.(OneShot)
	return ok && o.OneShot()
}

// State is the lifecycle position of a step within a run.
type State string

const (
	StatePending   State = "pending"
	StateChecking  State = "checking"
	StateSatisfied State = "satisfied"
	StateApplying  State = "applying"
	StateVerifying State = "verifying"
	// StateApplied is terminal for one-shot steps after a successful Apply.
	StateApplied State = "applied"
	StateFailed  State = "failed"
	// StateUnsatisfied is reported by Plan for steps that would be applied.
	StateUnsatisfied State = "unsatisfied"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateSatisfied, StateApplied, StateFailed, StateUnsatisfied:
		return true
	default:
		return false
	}
}

// StepReport is the outcome of one step.
type StepReport struct {
	Name     string
	State    State
	Duration time.Duration
	Err      error
}

// Report is the outcome of a run, one entry per step in order.
type Report struct {
	Steps    []StepReport
	Duration time.Duration
}

// Converged reports whether every step ended satisfied or applied.
func (r *Report) Converged() bool {
	for _, s := range r.Steps {
		if s.State != StateSatisfied && s.State != StateApplied {
			return false
		}
	}
	return true
}

// Count returns how many steps ended in state.
func (r *Report) Count(state State) int {
	n := 0
	for _, s := range r.Steps {
		if s.State == state {
			n++
		}
	}
	return n
}

// Func adapts plain functions to a Step.
type Func struct {
	StepName  string
	CheckFunc func(ctx context.Context) (bool, error)
	ApplyFunc func(ctx context.Context) error
}

// Name implements Step.
func (f Func) Name() string { return f.StepName }

// Check implements Step.
func (f Func) Check(ctx context.Context) (bool, error) { return f.CheckFunc(ctx) }

// Apply implements Step.
func (f Func) Apply(ctx context.Context) error { return f.ApplyFunc(ctx) }
