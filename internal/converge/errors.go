package converge

import (
	"fmt"
)

// Phase names the step operation an error came from.
type Phase string

const (
	PhaseCheck  Phase = "check"
	PhaseApply  Phase = "apply"
	PhaseVerify Phase = "verify"
)

// StepFailedError reports a step that Apply did not bring to its desired state.
type StepFailedError struct {
	Step string
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %s failed: still unsatisfied after apply", e.Step)
}

// StepError wraps an error returned by a step operation.
type StepError struct {
	Step  string
	Phase Phase
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s %s failed: %v", e.Step, e.Phase, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
