package tui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/8inary/infra/internal/converge"
	"github.com/8inary/infra/internal/util/prerequisites"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// RenderReport writes a one-line-per-step summary of r. Styling is applied
// only when color is set.
func RenderReport(w io.Writer, title string, r *converge.Report, color bool) error {
	wrap := sf
	head := sf(titleStyle)
	section := sf(sectionStyle)
	if !color {
		wrap = func(lipgloss.Style) styleFunc { return plain }
		head, section = plain, plain
	}

	var b strings.Builder
	b.WriteString(head(title))
	b.WriteString("\n")

	for _, s := range r.Steps {
		icon, style := stateIcon(s.State, 0, wrap)
		line := fmt.Sprintf("  %s %-22s %s", style(icon), s.Name, style(string(s.State)))
		if s.Duration > 0 {
			line += " " + formatDuration(s.Duration)
		}
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteString("\n")
		if s.Err != nil {
			fmt.Fprintf(&b, "       %s\n", s.Err)
		}
	}

	if !color {
		b.WriteString("\n")
	}
	b.WriteString(section(summary(r)))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func summary(r *converge.Report) string {
	parts := []string{}
	for _, st := range []converge.State{
		converge.StateSatisfied,
		converge.StateApplied,
		converge.StateUnsatisfied,
		converge.StateFailed,
		converge.StatePending,
	} {
		if n := r.Count(st); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, st))
		}
	}
	verdict := "not converged"
	if r.Converged() {
		verdict = "converged"
	}
	return fmt.Sprintf("%s: %s (%s)", verdict, strings.Join(parts, ", "), formatDuration(r.Duration))
}

// RenderTools writes one line per looked-up tool. A missing required tool is
// marked failed, a missing optional one as a warning.
func RenderTools(w io.Writer, title string, r *prerequisites.CheckResults, color bool) error {
	wrap := sf
	head := sf(titleStyle)
	if !color {
		wrap = func(lipgloss.Style) styleFunc { return plain }
		head = plain
	}

	var b strings.Builder
	b.WriteString(head(title))
	b.WriteString("\n")

	for _, res := range r.Results {
		icon, style, detail := checkMark, wrap(readyStyle), res.Path
		switch {
		case !res.Found && res.Tool.Required:
			icon, style, detail = crossMark, wrap(failedStyle), "missing"
			if res.Tool.Package != "" {
				detail += " (apt package " + res.Tool.Package + ")"
			}
		case !res.Found:
			icon, style, detail = warnMark, wrap(warningStyle), "not yet installed"
		}
		line := fmt.Sprintf("  %s %-12s %s", style(icon), res.Tool.Name, style(detail))
		b.WriteString(strings.TrimRight(line, " "))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
