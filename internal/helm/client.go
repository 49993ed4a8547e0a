package helm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/storage/driver"
)

const defaultTimeout = 10 * time.Minute

// Release describes a chart installation.
type Release struct {
	Name      string
	Namespace string
	RepoURL   string
	Chart     string
	Version   string
	Values    map[string]any
	// Wait blocks until the release's resources are ready.
	Wait    bool
	Timeout time.Duration
}

// Validate checks the fields required to locate and install the chart.
func (r Release) Validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("release name is required")
	case r.Namespace == "":
		return fmt.Errorf("release namespace is required")
	case r.RepoURL == "":
		return fmt.Errorf("chart repository URL is required")
	case r.Chart == "":
		return fmt.Errorf("chart name is required")
	}
	return nil
}

// Installer installs or upgrades releases.
type Installer interface {
	InstallOrUpgrade(ctx context.Context, rel Release) error
}

// Factory opens an Installer for a namespace.
type Factory func(ctx context.Context, namespace string) (Installer, error)

// Client provides Helm operations using in-memory kubeconfig.
type Client struct {
	namespace    string
	actionConfig *action.Configuration
	log          logr.Logger
}

// NewClient creates a Helm client from kubeconfig bytes.
func NewClient(kubeconfig []byte, namespace string, log logr.Logger) (*Client, error) {
	actionConfig := new(action.Configuration)
	restGetter := NewInMemoryRESTClientGetter(kubeconfig, namespace)

	debug := func(format string, v ...any) {
		log.V(1).Info(fmt.Sprintf(format, v...))
	}
	if err := actionConfig.Init(restGetter, namespace, "secret", debug); err != nil {
		return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
	}

	return &Client{namespace: namespace, actionConfig: actionConfig, log: log}, nil
}

// InstallOrUpgrade installs rel, or upgrades it when a release of that name exists.
func (c *Client) InstallOrUpgrade(ctx context.Context, rel Release) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	if rel.Timeout == 0 {
		rel.Timeout = defaultTimeout
	}

	ch, err := loadChart(rel)
	if err != nil {
		return fmt.Errorf("failed to load chart: %w", err)
	}

	exists, err := c.releaseExists(rel.Name)
	if err != nil {
		return err
	}

	if exists {
		c.log.Info("upgrading helm release", "release", rel.Name, "chart", rel.Chart, "version", rel.Version)
		upgrade := action.NewUpgrade(c.actionConfig)
		upgrade.Namespace = rel.Namespace
		upgrade.Version = rel.Version
		upgrade.Wait = rel.Wait
		upgrade.Timeout = rel.Timeout
		if _, err := upgrade.RunWithContext(ctx, rel.Name, ch, rel.Values); err != nil {
			return fmt.Errorf("failed to upgrade release %s: %w", rel.Name, err)
		}
		return nil
	}

	c.log.Info("installing helm release", "release", rel.Name, "chart", rel.Chart, "version", rel.Version)
	install := action.NewInstall(c.actionConfig)
	install.ReleaseName = rel.Name
	install.Namespace = rel.Namespace
	install.CreateNamespace = true
	install.Version = rel.Version
	install.Wait = rel.Wait
	install.Timeout = rel.Timeout
	if _, err := install.RunWithContext(ctx, ch, rel.Values); err != nil {
		return fmt.Errorf("failed to install release %s: %w", rel.Name, err)
	}
	return nil
}

func (c *Client) releaseExists(name string) (bool, error) {
	history := action.NewHistory(c.actionConfig)
	history.Max = 1
	_, err := history.Run(name)
	if errors.Is(err, driver.ErrReleaseNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read history of release %s: %w", name, err)
	}
	return true, nil
}

// loadChart downloads the chart archive into a scratch repository cache and loads it.
func loadChart(rel Release) (*chart.Chart, error) {
	cache, err := os.MkdirTemp("", "infra-helm-")
	if err != nil {
		return nil, fmt.Errorf("failed to create chart cache: %w", err)
	}
	defer func() { _ = os.RemoveAll(cache) }()

	settings := cli.New()
	settings.RepositoryCache = cache
	settings.RepositoryConfig = filepath.Join(cache, "repositories.yaml")

	cp := &action.ChartPathOptions{RepoURL: rel.RepoURL, Version: rel.Version}
	chartPath, err := cp.LocateChart(rel.Chart, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to locate chart %s in repo %s: %w", rel.Chart, rel.RepoURL, err)
	}

	return loader.Load(chartPath)
}

// KubeconfigReader supplies the admin kubeconfig.
type KubeconfigReader func(ctx context.Context) ([]byte, error)

// NewFactory returns a Factory building Clients from the kubeconfig read by readKubeconfig.
func NewFactory(readKubeconfig KubeconfigReader, log logr.Logger) Factory {
	return func(ctx context.Context, namespace string) (Installer, error) {
		kubeconfig, err := readKubeconfig(ctx)
		if err != nil {
			return nil, err
		}
		return NewClient(kubeconfig, namespace, log.WithValues("namespace", namespace))
	}
}
