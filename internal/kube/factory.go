package kube

import (
	"context"
	"fmt"
)

// AdminKubeconfigPath is where kubeadm writes the cluster admin credentials.
const AdminKubeconfigPath = "/etc/kubernetes/admin.conf"

// FileReader reads a file from the converged machine.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Factory opens a cluster client on demand. Steps call it every time they
// need the cluster so credentials written mid-run are picked up.
type Factory func(ctx context.Context) (Client, error)

// AdminFactory builds clients from the admin kubeconfig on the machine.
func AdminFactory(files FileReader) Factory {
	return func(ctx context.Context) (Client, error) {
		kubeconfig, err := files.ReadFile(ctx, AdminKubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read admin kubeconfig: %w", err)
		}
		return NewFromKubeconfig(kubeconfig)
	}
}

// StaticFactory always returns c. Used by tests.
func StaticFactory(c Client) Factory {
	return func(context.Context) (Client, error) {
		return c, nil
	}
}
