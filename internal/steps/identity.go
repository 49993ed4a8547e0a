package steps

import (
	"context"
	"fmt"

	"al.essio.dev/pkg/shellescape"

	"github.com/8inary/infra/internal/helm"
	"github.com/8inary/infra/internal/kube"
	"github.com/8inary/infra/internal/manifests"
	"github.com/8inary/infra/internal/util/retry"
)

const (
	operatorRelease  = "tidb-operator"
	operatorSelector = "app.kubernetes.io/instance=tidb-operator"
)

// IdentityDatabase deploys the TiDB operator and the identity database
// cluster. Only the founder acts. Its check cannot observe a deployed
// database, so it always runs on the founder and is accepted once Apply
// succeeds.
type IdentityDatabase struct {
	env *Env
}

// NewIdentityDatabase creates the identity database step.
func NewIdentityDatabase(env *Env) *IdentityDatabase {
	return &IdentityDatabase{env: env}
}

// Name implements converge.Step.
func (s *IdentityDatabase) Name() string { return "identity-database" }

// OneShot implements converge.OneShot.
func (s *IdentityDatabase) OneShot() bool { return true }

// Check implements converge.Step.
func (s *IdentityDatabase) Check(context.Context) (bool, error) {
	return !s.env.isFounder(), nil
}

func (s *IdentityDatabase) identity() manifests.Identity {
	c := s.env.Config
	return manifests.Identity{
		Namespace:   c.Identity.Namespace,
		StorageRoot: c.Identity.StorageRoot,
		TiDBVersion: c.Versions.TiDB,
		Replicas:    c.Identity.Replicas,
		NodeName:    s.env.Host.NodeName(),
	}
}

// Apply implements converge.Step.
func (s *IdentityDatabase) Apply(ctx context.Context) error {
	if !s.env.isFounder() {
		return nil
	}
	c := s.env.Config
	id := s.identity()
	log := s.env.Log.WithValues("namespace", id.Namespace)

	for _, dir := range id.StoragePaths() {
		if err := s.env.FS.MkdirAll(ctx, dir); err != nil {
			return err
		}
	}

	client, err := s.env.Kube(ctx)
	if err != nil {
		return fmt.Errorf("failed to open cluster API: %w", err)
	}

	log.Info("applying operator CRDs", "version", c.Versions.TiDBOperator)
	crds, err := s.env.run(ctx, "curl -fsSL "+shellescape.Quote(c.CRDURL()))
	if err != nil {
		return fmt.Errorf("failed to download operator CRDs: %w", err)
	}
	if err := client.ApplyManifests(ctx, []byte(crds), kube.FieldManager); err != nil {
		return fmt.Errorf("failed to apply operator CRDs: %w", err)
	}
	if err := client.RefreshDiscovery(ctx); err != nil {
		return err
	}

	log.Info("installing operator chart")
	installer, err := s.env.Charts(ctx, id.Namespace)
	if err != nil {
		return err
	}
	rel := helm.Release{
		Name:      operatorRelease,
		Namespace: id.Namespace,
		RepoURL:   c.Identity.ChartRepo,
		Chart:     c.Identity.Chart,
		Version:   c.Versions.TiDBOperator,
		Timeout:   s.env.ChartTimeout,
	}
	if err := installer.InstallOrUpgrade(ctx, rel); err != nil {
		return fmt.Errorf("failed to install %s: %w", operatorRelease, err)
	}

	want := c.Identity.OperatorReadyPods
	err = retry.Poll(ctx, func(ctx context.Context) (bool, error) {
		n, err := client.CountReadyPods(ctx, id.Namespace, operatorSelector)
		if err != nil {
			return false, err
		}
		log.V(1).Info("waiting for operator", "ready", n, "want", want)
		return n >= want, nil
	}, s.env.Poll...)
	if err != nil {
		return fmt.Errorf("operator did not become ready: %w", err)
	}

	log.Info("applying identity database")
	objects, err := manifests.RenderIdentity(id)
	if err != nil {
		return err
	}
	if err := client.ApplyManifests(ctx, objects, kube.FieldManager); err != nil {
		return fmt.Errorf("failed to apply identity database: %w", err)
	}
	return client.EnsureNamespace(ctx, id.Namespace, manifests.MeshInjectionLabels())
}
