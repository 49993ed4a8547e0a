// Package tui renders convergence runs: a Bubble Tea view while apply is in
// progress and a plain report for check output and non-interactive terminals.
package tui

import "github.com/8inary/infra/internal/converge"

// StepMsg carries one orchestrator event into the program.
type StepMsg struct {
	Event converge.Event
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg carries an error.
type ErrMsg struct{ Err error }

// DoneMsg signals that the run finished.
type DoneMsg struct {
	Report *converge.Report
}
