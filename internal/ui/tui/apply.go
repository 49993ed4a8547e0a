package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/8inary/infra/internal/converge"
)

// RunFunc executes a convergence run, reporting events to obs.
type RunFunc func(ctx context.Context, obs converge.Observer) (*converge.Report, error)

// programObserver forwards orchestrator events to a running program.
type programObserver struct {
	p *tea.Program
}

// Event implements converge.Observer.
func (o programObserver) Event(e converge.Event) {
	o.p.Send(StepMsg{Event: e})
}

// RunApplyTUI wraps a convergence run with a Bubble Tea view. The run
// continues in the background; quitting the view cancels it.
func RunApplyTUI(ctx context.Context, machine, role string, steps []string, run RunFunc) (*converge.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewApplyModel(machine, role, steps)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	type result struct {
		report *converge.Report
		err    error
	}
	done := make(chan result, 1)

	go func() {
		report, err := run(ctx, programObserver{p: p})
		done <- result{report: report, err: err}
		if err != nil {
			p.Send(ErrMsg{Err: err})
			return
		}
		p.Send(DoneMsg{Report: report})
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}

	// Quitting early cancels the run; wait for it to unwind.
	cancel()
	res := <-done
	return res.report, res.err
}
