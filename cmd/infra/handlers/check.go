package handlers

import (
	"context"
	"fmt"

	"github.com/8inary/infra/internal/converge"
	"github.com/8inary/infra/internal/ui/tui"
	"github.com/8inary/infra/internal/util/prerequisites"
)

// checkTools looks up the required and step-installed tools.
var checkTools = prerequisites.CheckAll

// Check reports the machine's tools and which steps are converged on it,
// without changing anything. A missing required tool stops before the
// steps are checked.
func Check(ctx context.Context, opts Options) error {
	s, err := openSession(ctx, opts, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	tools, err := checkTools(ctx, s.exec)
	if err != nil {
		return fmt.Errorf("failed to check prerequisites: %w", err)
	}
	if err := tui.RenderTools(stdout, fmt.Sprintf("tools on %s", s.machine), tools, interactive()); err != nil {
		return err
	}
	if err := tools.Error(); err != nil {
		return err
	}

	env := s.env()
	if err := env.Validate(); err != nil {
		return err
	}

	orc := converge.New(catalog(env), converge.WithObserver(converge.NewLogObserver(s.log)))
	report, err := orc.Plan(ctx)
	if report != nil {
		if rerr := renderReport(fmt.Sprintf("check %s", s.machine), report); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return err
	}
	if !report.Converged() {
		return ErrNotConverged
	}
	return nil
}
