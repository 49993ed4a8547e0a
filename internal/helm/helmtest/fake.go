// Package helmtest provides a recording helm.Installer.
package helmtest

import (
	"context"
	"sync"

	"github.com/8inary/infra/internal/helm"
)

// Fake records installed releases.
type Fake struct {
	mu       sync.Mutex
	Releases []helm.Release
	Err      error
}

// InstallOrUpgrade implements helm.Installer.
func (f *Fake) InstallOrUpgrade(_ context.Context, rel helm.Release) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Releases = append(f.Releases, rel)
	return nil
}

// Factory returns a helm.Factory handing out f.
func (f *Fake) Factory() helm.Factory {
	return func(context.Context, string) (helm.Installer, error) {
		return f, nil
	}
}
