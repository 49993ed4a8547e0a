package kube

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// FieldManager identifies this program in server-side apply.
const FieldManager = "infra"

// Client provides the cluster operations used during convergence.
type Client interface {
	// ApplyManifests applies multi-document YAML using Server-Side Apply.
	ApplyManifests(ctx context.Context, manifests []byte, fieldManager string) error

	// RefreshDiscovery reloads the REST mapping to pick up newly installed CRDs.
	RefreshDiscovery(ctx context.Context) error

	// NodeHasLabel reports whether node carries label. A missing node is false.
	NodeHasLabel(ctx context.Context, node, label string) (bool, error)

	// NodeExists reports whether node is registered.
	NodeExists(ctx context.Context, node string) (bool, error)

	// RemoveTaint drops every taint with key and effect from node.
	RemoveTaint(ctx context.Context, node, key, effect string) error

	// DeploymentExists reports whether the deployment is present.
	DeploymentExists(ctx context.Context, namespace, name string) (bool, error)

	// CountReadyPods counts pods matching selector whose Ready condition is true.
	CountReadyPods(ctx context.Context, namespace, selector string) (int, error)

	// EnsureNamespace creates namespace if missing and merges labels into it.
	EnsureNamespace(ctx context.Context, namespace string, labels map[string]string) error
}

type client struct {
	clientset     kubernetes.Interface
	dynamicClient dynamic.Interface
	mapper        meta.RESTMapper
	restConfig    *rest.Config
}

// NewFromKubeconfig creates a Client from kubeconfig bytes.
func NewFromKubeconfig(kubeconfig []byte) (Client, error) {
	restConfig, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create REST config from kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	mapper, err := discoverMapper(restConfig)
	if err != nil {
		return nil, err
	}

	return &client{
		clientset:     clientset,
		dynamicClient: dynamicClient,
		mapper:        mapper,
		restConfig:    restConfig,
	}, nil
}

// NewFromClients creates a Client from pre-configured clients, typically fakes.
func NewFromClients(clientset kubernetes.Interface, dynamicClient dynamic.Interface, mapper meta.RESTMapper) Client {
	return &client{
		clientset:     clientset,
		dynamicClient: dynamicClient,
		mapper:        mapper,
	}
}

// RefreshDiscovery implements Client.
func (c *client) RefreshDiscovery(_ context.Context) error {
	if c.restConfig == nil {
		return nil
	}
	mapper, err := discoverMapper(c.restConfig)
	if err != nil {
		return err
	}
	c.mapper = mapper
	return nil
}

func discoverMapper(restConfig *rest.Config) (meta.RESTMapper, error) {
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}
	groupResources, err := restmapper.GetAPIGroupResources(discoveryClient)
	if err != nil {
		return nil, fmt.Errorf("failed to get API group resources: %w", err)
	}
	return restmapper.NewDiscoveryRESTMapper(groupResources), nil
}
