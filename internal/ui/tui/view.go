package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/8inary/infra/internal/converge"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func plain(s string) string { return s }

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderSteps(&b, m)
	renderErrors(&b, m)
	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("infra: %s", m.Machine)
	if m.Role != "" {
		title += fmt.Sprintf(" (%s)", m.Role)
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	switch {
	case m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.Done && m.Report != nil && m.Report.Converged():
		status += readyStyle.Render("Converged")
	case m.Done:
		status += failedStyle.Render("Failed")
	default:
		status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + warningStyle.Render("Converging")
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = m.Width - 30
		if barWidth < 10 {
			barWidth = 10
		}
	}
	filled := int(float64(barWidth) * progress)
	if filled > barWidth {
		filled = barWidth
	}

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	fmt.Fprintf(b, "  %s %d%%  %d/%d steps\n", bar, int(progress*100), m.finished(), len(m.Steps))
}

func renderSteps(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Steps"))
	b.WriteString("\n")

	for _, row := range m.Steps {
		icon, style := stateIcon(row.State, m.SpinnerFrame, sf)
		dur := ""
		if row.Duration > 0 {
			dur = formatDuration(row.Duration)
		}
		fmt.Fprintf(b, "    %s %-22s %-12s %s\n",
			style(icon), style(row.Name), style(string(row.State)), dimStyle.Render(dur))
	}
}

func renderErrors(b *strings.Builder, m Model) {
	var failed []StepRow
	for _, row := range m.Steps {
		if row.Err != nil {
			failed = append(failed, row)
		}
	}
	if len(failed) == 0 {
		return
	}

	b.WriteString(sectionStyle.Render("  Errors"))
	b.WriteString("\n")
	for _, row := range failed {
		fmt.Fprintf(b, "    %s [%s] %s\n",
			failedStyle.Render(crossMark), row.Name, dimStyle.Render(row.Err.Error()))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	elapsed := m.Elapsed
	if elapsed == 0 && !m.StartTime.IsZero() {
		elapsed = time.Since(m.StartTime)
	}
	pulse := ""
	if !m.Done && m.Err == nil {
		pulse = "  |  " + currentSpinner(m.SpinnerFrame) + " converging"
	}
	b.WriteString(footerStyle.Render(fmt.Sprintf("  elapsed: %s%s  |  q: quit", formatDuration(elapsed), pulse)))
	b.WriteString("\n")
}

// stateIcon maps a step state to its mark and style. wrap turns a lipgloss
// style into a styleFunc, or drops styling for plain output.
func stateIcon(state converge.State, frame int, wrap func(lipgloss.Style) styleFunc) (string, styleFunc) {
	switch state {
	case converge.StateSatisfied, converge.StateApplied:
		return checkMark, wrap(readyStyle)
	case converge.StateFailed:
		return crossMark, wrap(failedStyle)
	case converge.StateUnsatisfied:
		return warnMark, wrap(warningStyle)
	case converge.StateChecking, converge.StateApplying, converge.StateVerifying:
		return currentSpinner(frame), wrap(activeStyle)
	default:
		return pending, wrap(dimStyle)
	}
}

func currentSpinner(frame int) string {
	if len(spinnerFrames) == 0 {
		return spinner
	}
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

func calculateProgress(m Model) float64 {
	if m.Done && m.Report != nil && m.Report.Converged() {
		return 1.0
	}
	if len(m.Steps) == 0 {
		return 0
	}
	return float64(m.finished()) / float64(len(m.Steps))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
