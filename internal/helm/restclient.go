package helm

import (
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// InMemoryRESTClientGetter implements genericclioptions.RESTClientGetter
// over kubeconfig bytes.
type InMemoryRESTClientGetter struct {
	kubeconfig []byte
	namespace  string

	loadOnce sync.Once
	raw      *clientcmdapi.Config
	loadErr  error

	once       sync.Once
	restConfig *rest.Config
	configErr  error
}

// NewInMemoryRESTClientGetter creates a getter for kubeconfig scoped to namespace.
func NewInMemoryRESTClientGetter(kubeconfig []byte, namespace string) *InMemoryRESTClientGetter {
	return &InMemoryRESTClientGetter{kubeconfig: kubeconfig, namespace: namespace}
}

func (g *InMemoryRESTClientGetter) load() (*clientcmdapi.Config, error) {
	g.loadOnce.Do(func() {
		g.raw, g.loadErr = clientcmd.Load(g.kubeconfig)
		if g.loadErr != nil {
			g.loadErr = fmt.Errorf("failed to parse kubeconfig: %w", g.loadErr)
		}
	})
	return g.raw, g.loadErr
}

// ToRESTConfig returns the REST config, parsing the kubeconfig once.
func (g *InMemoryRESTClientGetter) ToRESTConfig() (*rest.Config, error) {
	g.once.Do(func() {
		g.restConfig, g.configErr = g.ToRawKubeConfigLoader().ClientConfig()
	})
	return g.restConfig, g.configErr
}

// ToDiscoveryClient returns a memory-cached discovery client.
func (g *InMemoryRESTClientGetter) ToDiscoveryClient() (discovery.CachedDiscoveryInterface, error) {
	restConfig, err := g.ToRESTConfig()
	if err != nil {
		return nil, err
	}
	dc, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	return memory.NewMemCacheClient(dc), nil
}

// ToRESTMapper returns a deferred discovery REST mapper.
func (g *InMemoryRESTClientGetter) ToRESTMapper() (meta.RESTMapper, error) {
	dc, err := g.ToDiscoveryClient()
	if err != nil {
		return nil, err
	}
	return restmapper.NewDeferredDiscoveryRESTMapper(dc), nil
}

// ToRawKubeConfigLoader returns a client config bound to the getter's namespace.
// A kubeconfig that does not parse yields a config whose methods return the parse error.
func (g *InMemoryRESTClientGetter) ToRawKubeConfigLoader() clientcmd.ClientConfig {
	overrides := &clientcmd.ConfigOverrides{}
	overrides.Context.Namespace = g.namespace

	raw, err := g.load()
	if err != nil {
		return brokenClientConfig{
			access: clientcmd.NewDefaultClientConfig(*clientcmdapi.NewConfig(), overrides).ConfigAccess(),
			err:    err,
		}
	}
	return clientcmd.NewDefaultClientConfig(*raw, overrides)
}

type brokenClientConfig struct {
	access clientcmd.ConfigAccess
	err    error
}

func (c brokenClientConfig) RawConfig() (clientcmdapi.Config, error) {
	return clientcmdapi.Config{}, c.err
}

func (c brokenClientConfig) ClientConfig() (*rest.Config, error) {
	return nil, c.err
}

func (c brokenClientConfig) Namespace() (string, bool, error) {
	return "", false, c.err
}

func (c brokenClientConfig) ConfigAccess() clientcmd.ConfigAccess {
	return c.access
}
