package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/8inary/infra/internal/converge"
)

// StepRow is the displayed state of one step.
type StepRow struct {
	Name     string
	State    converge.State
	Duration time.Duration
	Err      error

	started time.Time
}

// Model is the Bubble Tea model for a convergence run.
type Model struct {
	// Machine info
	Machine string
	Role    string

	Steps  []StepRow
	Report *converge.Report

	StartTime time.Time
	Elapsed   time.Duration

	// Animation
	SpinnerFrame int

	// UI state
	Width  int
	Height int
	Err    error
	Done   bool
}

// NewApplyModel creates a model for the given steps, all pending.
func NewApplyModel(machine, role string, steps []string) Model {
	rows := make([]StepRow, 0, len(steps))
	for _, name := range steps {
		rows = append(rows, StepRow{Name: name, State: converge.StatePending})
	}
	return Model{
		Machine:   machine,
		Role:      role,
		Steps:     rows,
		StartTime: time.Now(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case StepMsg:
		m.updateStep(msg.Event)

	case TickMsg:
		m.SpinnerFrame++
		m.Elapsed = time.Since(m.StartTime)
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		m.Report = msg.Report
		if msg.Report != nil {
			m.Elapsed = msg.Report.Duration
		}
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) updateStep(e converge.Event) {
	idx := -1
	for i, row := range m.Steps {
		if row.Name == e.Step {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	row := &m.Steps[idx]
	switch e.Type {
	case converge.EventStepChecking:
		row.State = converge.StateChecking
		row.started = e.Timestamp
	case converge.EventStepApplying:
		row.State = converge.StateApplying
	case converge.EventStepVerifying:
		row.State = converge.StateVerifying
	case converge.EventStepSatisfied:
		row.State = converge.StateSatisfied
	case converge.EventStepApplied:
		row.State = converge.StateApplied
	case converge.EventStepUnsatisfied:
		row.State = converge.StateUnsatisfied
	case converge.EventStepFailed:
		row.State = converge.StateFailed
		row.Err = e.Err
	}

	if row.State.Terminal() {
		row.Duration = e.Duration
		if row.Duration == 0 && !row.started.IsZero() && !e.Timestamp.IsZero() {
			row.Duration = e.Timestamp.Sub(row.started)
		}
	}
}

// finished returns how many steps reached a terminal state.
func (m Model) finished() int {
	n := 0
	for _, row := range m.Steps {
		if row.State.Terminal() {
			n++
		}
	}
	return n
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
