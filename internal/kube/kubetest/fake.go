// Package kubetest provides an in-memory kube.Client for step tests.
package kubetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/8inary/infra/internal/kube"
)

// Fake records cluster calls and answers from configurable state.
type Fake struct {
	mu sync.Mutex

	NodeLabels  map[string]map[string]string
	Deployments map[string]bool
	ReadyPods   map[string][]int
	Namespaces  map[string]map[string]string

	Applied       [][]byte
	RemovedTaints []string
	Refreshes     int
	readyPodCalls map[string]int

	// Err, when set, is returned by every call.
	Err error
}

var _ kube.Client = (*Fake)(nil)

// New creates an empty fake cluster.
func New() *Fake {
	return &Fake{
		NodeLabels:    map[string]map[string]string{},
		Deployments:   map[string]bool{},
		ReadyPods:     map[string][]int{},
		Namespaces:    map[string]map[string]string{},
		readyPodCalls: map[string]int{},
	}
}

// ApplyManifests implements kube.Client.
func (f *Fake) ApplyManifests(_ context.Context, manifests []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Applied = append(f.Applied, append([]byte(nil), manifests...))
	return nil
}

// RefreshDiscovery implements kube.Client.
func (f *Fake) RefreshDiscovery(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Refreshes++
	return f.Err
}

// NodeHasLabel implements kube.Client.
func (f *Fake) NodeHasLabel(_ context.Context, node, label string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	_, ok := f.NodeLabels[node][label]
	return ok, nil
}

// NodeExists implements kube.Client.
func (f *Fake) NodeExists(_ context.Context, node string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	_, ok := f.NodeLabels[node]
	return ok, nil
}

// RemoveTaint implements kube.Client.
func (f *Fake) RemoveTaint(_ context.Context, node, key, effect string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.RemovedTaints = append(f.RemovedTaints, fmt.Sprintf("%s/%s:%s", node, key, effect))
	return nil
}

// DeploymentExists implements kube.Client.
func (f *Fake) DeploymentExists(_ context.Context, namespace, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	return f.Deployments[namespace+"/"+name], nil
}

// CountReadyPods implements kube.Client. Successive calls for the same
// namespace walk through ReadyPods[namespace] and repeat the last value.
func (f *Fake) CountReadyPods(_ context.Context, namespace, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	counts := f.ReadyPods[namespace]
	if len(counts) == 0 {
		return 0, nil
	}
	i := f.readyPodCalls[namespace]
	f.readyPodCalls[namespace]++
	if i >= len(counts) {
		i = len(counts) - 1
	}
	return counts[i], nil
}

// ReadyPodCalls returns how often CountReadyPods ran for namespace.
func (f *Fake) ReadyPodCalls(namespace string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readyPodCalls[namespace]
}

// EnsureNamespace implements kube.Client.
func (f *Fake) EnsureNamespace(_ context.Context, namespace string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if f.Namespaces[namespace] == nil {
		f.Namespaces[namespace] = map[string]string{}
	}
	for k, v := range labels {
		f.Namespaces[namespace][k] = v
	}
	return nil
}

// AppliedDocuments returns every applied manifest as text.
func (f *Fake) AppliedDocuments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Applied))
	for _, a := range f.Applied {
		out = append(out, string(a))
	}
	return out
}
