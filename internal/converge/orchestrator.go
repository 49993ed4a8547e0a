package converge

import (
	"context"
	"fmt"
	"time"
)

// Metrics records per-step outcomes.
type Metrics interface {
	ObserveStep(step string, state State, duration time.Duration)
}

// Orchestrator runs steps in their fixed order.
type Orchestrator struct {
	steps    []Step
	observer Observer
	metrics  Metrics
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(orc *Orchestrator) { orc.observer = o }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(orc *Orchestrator) { orc.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(orc *Orchestrator) { orc.now = now }
}

// New creates an Orchestrator over steps.
func New(steps []Step, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		steps:    append([]Step(nil), steps...),
		observer: Multi(nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Steps returns the step names in run order.
func (o *Orchestrator) Steps() []string {
	names := make([]string, 0, len(o.steps))
	for _, s := range o.steps {
		names = append(names, s.Name())
	}
	return names
}

func (o *Orchestrator) emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = o.now()
	}
	o.observer.Event(e)
}

func (o *Orchestrator) record(r StepReport) {
	if o.metrics != nil {
		o.metrics.ObserveStep(r.Name, r.State, r.Duration)
	}
}

// Run converges every step. It stops at the first step that errors or
// stays unsatisfied after Apply and returns that error together with the
// report collected so far. Steps after the failing one stay pending.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := o.now()
	report := o.pendingReport()
	total := len(o.steps)

	o.emit(Event{Type: EventRunStarted, Total: total, Message: fmt.Sprintf("converging %d steps", total)})

	for i, step := range o.steps {
		stepStart := o.now()
		state, err := o.runStep(ctx, step, i+1, total)

		r := &report.Steps[i]
		r.State = state
		r.Duration = o.now().Sub(stepStart)
		r.Err = err
		o.record(*r)

		if err != nil {
			report.Duration = o.now().Sub(start)
			o.emit(Event{Type: EventRunFailed, Step: step.Name(), Index: i + 1, Total: total, Duration: report.Duration, Err: err})
			return report, err
		}
	}

	report.Duration = o.now().Sub(start)
	o.emit(Event{Type: EventRunCompleted, Total: total, Duration: report.Duration, Message: "converged"})
	return report, nil
}

func (o *Orchestrator) runStep(ctx context.Context, step Step, index, total int) (State, error) {
	name := step.Name()
	ev := func(t EventType) Event { return Event{Type: t, Step: name, Index: index, Total: total} }

	if err := ctx.Err(); err != nil {
		return StatePending, &StepError{Step: name, Phase: PhaseCheck, Err: err}
	}

	o.emit(ev(EventStepChecking))
	ok, err := step.Check(ctx)
	if err != nil {
		return o.fail(ev(EventStepFailed), &StepError{Step: name, Phase: PhaseCheck, Err: err})
	}
	if ok {
		o.emit(ev(EventStepSatisfied))
		return StateSatisfied, nil
	}

	o.emit(ev(EventStepApplying))
	if err := step.Apply(ctx); err != nil {
		return o.fail(ev(EventStepFailed), &StepError{Step: name, Phase: PhaseApply, Err: err})
	}

	if isOneShot(step) {
		o.emit(ev(EventStepApplied))
		return StateApplied, nil
	}

	o.emit(ev(EventStepVerifying))
	ok, err = step.Check(ctx)
	if err != nil {
		return o.fail(ev(EventStepFailed), &StepError{Step: name, Phase: PhaseVerify, Err: err})
	}
	if !ok {
		return o.fail(ev(EventStepFailed), &StepFailedError{Step: name})
	}

	o.emit(ev(EventStepSatisfied))
	return StateSatisfied, nil
}

func (o *Orchestrator) fail(e Event, err error) (State, error) {
	e.Err = err
	o.emit(e)
	return StateFailed, err
}

// Plan checks every step without applying anything. A check error stops
// the pass; the remaining steps stay pending.
func (o *Orchestrator) Plan(ctx context.Context) (*Report, error) {
	start := o.now()
	report := o.pendingReport()
	total := len(o.steps)

	for i, step := range o.steps {
		stepStart := o.now()
		r := &report.Steps[i]

		o.emit(Event{Type: EventStepChecking, Step: step.Name(), Index: i + 1, Total: total})
		ok, err := step.Check(ctx)
		r.Duration = o.now().Sub(stepStart)
		if err != nil {
			r.State = StateFailed
			r.Err = &StepError{Step: step.Name(), Phase: PhaseCheck, Err: err}
			report.Duration = o.now().Sub(start)
			return report, r.Err
		}

		if ok {
			r.State = StateSatisfied
			o.emit(Event{Type: EventStepSatisfied, Step: step.Name(), Index: i + 1, Total: total})
		} else {
			r.State = StateUnsatisfied
			o.emit(Event{Type: EventStepUnsatisfied, Step: step.Name(), Index: i + 1, Total: total})
		}
	}

	report.Duration = o.now().Sub(start)
	return report, nil
}

func (o *Orchestrator) pendingReport() *Report {
	report := &Report{Steps: make([]StepReport, len(o.steps))}
	for i, s := range o.steps {
		report.Steps[i] = StepReport{Name: s.Name(), State: StatePending}
	}
	return report
}
