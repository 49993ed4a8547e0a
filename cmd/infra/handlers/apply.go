package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/8inary/infra/internal/converge"
	"github.com/8inary/infra/internal/metrics"
	"github.com/8inary/infra/internal/steps"
	"github.com/8inary/infra/internal/ui/tui"
	"github.com/8inary/infra/internal/util/prerequisites"
)

// ErrNotConverged is returned when a run or check leaves steps unconverged.
var ErrNotConverged = errors.New("machine is not converged")

var (
	// catalog builds the ordered step list.
	catalog = steps.Catalog

	// checkPrereqs verifies the tools the steps shell out to.
	checkPrereqs = prerequisites.CheckDefault

	// interactive reports whether stdout can host the progress view.
	interactive = func() bool { return tui.IsTerminal(os.Stdout) }

	// runTUI drives a run behind the progress view.
	runTUI = tui.RunApplyTUI

	// now is the clock for run metrics.
	now = time.Now
)

// ApplyOptions are the flags of the apply command.
type ApplyOptions struct {
	// Plain disables the interactive progress view.
	Plain bool
}

// Apply converges the selected machine.
//
// The workflow:
//  1. Loads configuration and resolves the machine (this host or --machine)
//  2. Opens the local or SSH transport and discovers the host context
//  3. Verifies required tools are present on the machine
//  4. Runs every step through the orchestrator, failing fast
//  5. Prints the report and writes run metrics when configured
func Apply(ctx context.Context, opts Options, applyOpts ApplyOptions) error {
	live := !applyOpts.Plain && interactive()

	// The progress view owns the terminal; logs are held until it exits.
	var held bytes.Buffer
	logOut := stderr
	if live {
		logOut = &held
		defer func() { _, _ = io.Copy(stderr, &held) }()
	}

	s, err := openSession(ctx, opts, logOut)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	if err := s.prerequisites(ctx); err != nil {
		return err
	}

	env := s.env()
	if err := env.Validate(); err != nil {
		return err
	}

	rec := metrics.New(s.machine.ID)
	list := catalog(env)
	run := func(ctx context.Context, obs converge.Observer) (*converge.Report, error) {
		orc := converge.New(list,
			converge.WithObserver(converge.Multi{converge.NewLogObserver(s.log), obs}),
			converge.WithMetrics(rec),
		)
		return orc.Run(ctx)
	}

	s.log.Info("converging", "steps", len(list))

	var report *converge.Report
	if live {
		names := make([]string, 0, len(list))
		for _, st := range list {
			names = append(names, st.Name())
		}
		report, err = runTUI(ctx, s.machine.ID, string(s.machine.Role), names, run)
	} else {
		report, err = run(ctx, nil)
	}

	if report != nil {
		rec.ObserveRun(report, now())
		s.writeMetrics(rec)
		if rerr := renderReport(fmt.Sprintf("apply %s", s.machine), report); rerr != nil {
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

// renderReport prints report, styled when stdout is a terminal.
func renderReport(title string, report *converge.Report) error {
	return tui.RenderReport(stdout, title, report, interactive())
}

// prerequisites fails when a required tool is missing on the machine.
func (s *session) prerequisites(ctx context.Context) error {
	results, err := checkPrereqs(ctx, s.exec)
	if err != nil {
		return fmt.Errorf("failed to check prerequisites: %w", err)
	}
	return results.Error()
}

// writeMetrics exports the run when a textfile path is configured. Failures
// are logged and do not fail the run.
func (s *session) writeMetrics(rec *metrics.Recorder) {
	path := s.cfg.Metrics.TextfilePath
	if path == "" {
		return
	}
	if err := rec.WriteTextfile(path); err != nil {
		s.log.Error(err, "failed to export metrics", "path", path)
		return
	}
	s.log.V(1).Info("exported metrics", "path", path)
}
