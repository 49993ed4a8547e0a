package steps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

const (
	procSwapsPath = "/proc/swaps"
	fstabPath     = "/etc/fstab"
)

// DisableSwap turns swap off now and across reboots.
type DisableSwap struct {
	env *Env
}

// NewDisableSwap creates the swap step.
func NewDisableSwap(env *Env) *DisableSwap {
	return &DisableSwap{env: env}
}

// Name implements converge.Step.
func (s *DisableSwap) Name() string { return "disable-swap" }

// Check implements converge.Step. Swap is off when /proc/swaps lists
// nothing but its header and fstab has no active swap entry. An unreadable
// fstab counts as unconverged.
func (s *DisableSwap) Check(ctx context.Context) (bool, error) {
	swaps, err := s.env.FS.ReadFile(ctx, procSwapsPath)
	if err != nil {
		return false, nil
	}
	if len(lines(string(swaps))) > 1 {
		return false, nil
	}

	fstab, err := s.env.FS.ReadFile(ctx, fstabPath)
	if err != nil {
		return false, nil
	}
	for _, line := range strings.Split(string(fstab), "\n") {
		if isActiveSwapEntry(line) {
			return false, nil
		}
	}
	return true, nil
}

// Apply implements converge.Step.
func (s *DisableSwap) Apply(ctx context.Context) error {
	if _, err := s.env.run(ctx, "swapoff -a"); err != nil {
		return fmt.Errorf("failed to disable swap: %w", err)
	}

	fstab, err := s.env.FS.ReadFile(ctx, fstabPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	stripped := StripSwapEntries(string(fstab))
	if stripped == string(fstab) {
		return nil
	}
	if err := s.env.FS.WriteFile(ctx, fstabPath, []byte(stripped), 0o644); err != nil {
		return fmt.Errorf("failed to update fstab: %w", err)
	}
	return nil
}

// StripSwapEntries removes active swap entries from fstab content. Every
// other line, comments included, is kept byte for byte, so is the
// presence or absence of a trailing newline.
func StripSwapEntries(fstab string) string {
	if fstab == "" {
		return ""
	}
	trailing := strings.HasSuffix(fstab, "\n")

	var kept []string
	for _, line := range strings.Split(strings.TrimSuffix(fstab, "\n"), "\n") {
		if !isActiveSwapEntry(line) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	out := strings.Join(kept, "\n")
	if trailing {
		out += "\n"
	}
	return out
}

func isActiveSwapEntry(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return false
	}
	fields := strings.Fields(trimmed)
	return len(fields) >= 3 && fields[2] == "swap"
}
