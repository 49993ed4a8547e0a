package manifests

import (
	"fmt"
	"path"
	"strings"

	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// LocalStorageClass is the storage class backing the identity volumes.
const LocalStorageClass = "local-storage"

const controlPlaneTaint = "node-role.kubernetes.io/control-plane"

// Identity parameterizes the identity database manifests.
type Identity struct {
	Namespace   string
	StorageRoot string
	TiDBVersion string
	Replicas    int
	// NodeName pins the local persistent volumes to the machine holding them.
	NodeName string
}

// Volume is one local persistent volume of the identity database.
type Volume struct {
	Component string
	Size      string
}

// IdentityVolumes lists the local volumes in creation order.
var IdentityVolumes = []Volume{
	{Component: "pd", Size: "10Gi"},
	{Component: "tikv", Size: "100Gi"},
	{Component: "monitor", Size: "20Gi"},
}

// StoragePaths returns the host directories backing IdentityVolumes.
func (id Identity) StoragePaths() []string {
	out := make([]string, 0, len(IdentityVolumes))
	for _, v := range IdentityVolumes {
		out = append(out, path.Join(id.StorageRoot, v.Component))
	}
	return out
}

func (id Identity) instance() string {
	return id.Namespace + "-db"
}

// StorageClass returns the default local storage class.
func StorageClass() *storagev1.StorageClass {
	bind := storagev1.VolumeBindingWaitForFirstConsumer
	reclaim := corev1.PersistentVolumeReclaimDelete
	return &storagev1.StorageClass{
		TypeMeta: metav1.TypeMeta{APIVersion: "storage.k8s.io/v1", Kind: "StorageClass"},
		ObjectMeta: metav1.ObjectMeta{
			Name: LocalStorageClass,
			Annotations: map[string]string{
				"storageclass.kubernetes.io/is-default-class": "true",
			},
		},
		Provisioner:       "kubernetes.io/no-provisioner",
		VolumeBindingMode: &bind,
		ReclaimPolicy:     &reclaim,
	}
}

// PersistentVolumes returns one local volume per IdentityVolumes entry.
func (id Identity) PersistentVolumes() []*corev1.PersistentVolume {
	out := make([]*corev1.PersistentVolume, 0, len(IdentityVolumes))
	for _, v := range IdentityVolumes {
		pv := &corev1.PersistentVolume{
			TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolume"},
			ObjectMeta: metav1.ObjectMeta{Name: "local-pv-" + v.Component},
			Spec: corev1.PersistentVolumeSpec{
				Capacity: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(v.Size),
				},
				AccessModes:                   []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
				PersistentVolumeReclaimPolicy: corev1.PersistentVolumeReclaimDelete,
				StorageClassName:              LocalStorageClass,
				PersistentVolumeSource: corev1.PersistentVolumeSource{
					Local: &corev1.LocalVolumeSource{Path: path.Join(id.StorageRoot, v.Component)},
				},
			},
		}
		if id.NodeName != "" {
			pv.Spec.NodeAffinity = &corev1.VolumeNodeAffinity{
				Required: &corev1.NodeSelector{
					NodeSelectorTerms: []corev1.NodeSelectorTerm{{
						MatchExpressions: []corev1.NodeSelectorRequirement{{
							Key:      "kubernetes.io/hostname",
							Operator: corev1.NodeSelectorOpIn,
							Values:   []string{id.NodeName},
						}},
					}},
				},
			}
		}
		out = append(out, pv)
	}
	return out
}

func controlPlaneTolerations() []any {
	return []any{map[string]any{
		"key":      controlPlaneTaint,
		"operator": "Exists",
		"effect":   "NoSchedule",
	}}
}

// TidbCluster returns the database cluster custom resource.
func (id Identity) TidbCluster() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "pingcap.com/v1alpha1",
		"kind":       "TidbCluster",
		"metadata": map[string]any{
			"name":      id.Namespace,
			"namespace": id.Namespace,
		},
		"spec": map[string]any{
			"version":         id.TiDBVersion,
			"timezone":        "UTC",
			"pvReclaimPolicy": "Retain",
			"pd": map[string]any{
				"baseImage":        "pingcap/pd",
				"replicas":         int64(id.Replicas),
				"storageClassName": LocalStorageClass,
				"requests":         map[string]any{"storage": "10Gi"},
				"tolerations":      controlPlaneTolerations(),
			},
			"tikv": map[string]any{
				"baseImage":        "pingcap/tikv",
				"replicas":         int64(id.Replicas),
				"storageClassName": LocalStorageClass,
				"requests":         map[string]any{"storage": "100Gi"},
				"tolerations":      controlPlaneTolerations(),
			},
			"tidb": map[string]any{
				"baseImage":   "pingcap/tidb",
				"replicas":    int64(id.Replicas),
				"service":     map[string]any{"type": "ClusterIP"},
				"tolerations": controlPlaneTolerations(),
			},
		},
	}}
}

// TidbMonitor returns the monitoring custom resource bound to the monitor volume.
func (id Identity) TidbMonitor() *unstructured.Unstructured {
	image := func(base, version string) map[string]any {
		return map[string]any{"baseImage": base, "version": version}
	}
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "pingcap.com/v1alpha1",
		"kind":       "TidbMonitor",
		"metadata": map[string]any{
			"name":      id.Namespace,
			"namespace": id.Namespace,
		},
		"spec": map[string]any{
			"clusters":           []any{map[string]any{"name": id.Namespace}},
			"persistent":         true,
			"storageClassName":   LocalStorageClass,
			"storage":            "20Gi",
			"prometheus":         image("prom/prometheus", "v2.27.1"),
			"grafana":            image("grafana/grafana", "7.5.11"),
			"initializer":        image("pingcap/tidb-monitor-initializer", id.TiDBVersion),
			"reloader":           image("pingcap/tidb-monitor-reloader", "v1.0.1"),
			"prometheusReloader": image("quay.io/prometheus-operator/prometheus-config-reloader", "v0.49.0"),
			"imagePullPolicy":    "IfNotPresent",
			"tolerations":        controlPlaneTolerations(),
		},
	}}
}

// ConfigMaps returns the per-component configuration and startup scripts.
func (id Identity) ConfigMaps() []*corev1.ConfigMap {
	ns := id.Namespace
	pdPeer := fmt.Sprintf("${HOSTNAME}.%s-pd-peer.%s.svc", ns, ns)
	pdClient := fmt.Sprintf("%s-pd.%s.svc:2379", ns, ns)

	components := []struct {
		name    string
		config  string
		startup []string
	}{
		{
			name:   "pd",
			config: "[replication]\nmax-replicas = 5\n",
			startup: []string{
				`ARGS="--name=${HOSTNAME} \`,
				`--data-dir=/var/lib/pd \`,
				`--peer-urls=http://0.0.0.0:2380 \`,
				fmt.Sprintf(`--advertise-peer-urls=http://%s:2380 \`, pdPeer),
				`--client-urls=http://0.0.0.0:2379 \`,
				fmt.Sprintf(`--advertise-client-urls=http://%s:2379"`, pdPeer),
				`if [ -f /etc/pd/config-file ]; then`,
				`  ARGS="${ARGS} --config=/etc/pd/config-file"`,
				`fi`,
				fmt.Sprintf(`ARGS="${ARGS} --initial-cluster=${HOSTNAME}=http://%s:2380"`, pdPeer),
				`exec /pd-server ${ARGS}`,
			},
		},
		{
			name: "tikv",
			config: "[storage]\nreserve-space = \"10GB\"\n" +
				"[raftstore]\ncapacity = \"0\"\nsync-log = true\n" +
				"[rocksdb.wal-cf]\ndisable-wal = true\n",
			startup: []string{
				`ARGS="--addr=0.0.0.0:20160 \`,
				fmt.Sprintf(`--advertise-addr=${HOSTNAME}.%s-tikv-peer.%s.svc:20160 \`, ns, ns),
				`--data-dir=/var/lib/tikv \`,
				fmt.Sprintf(`--pd=%s"`, pdClient),
				`if [ -f /etc/tikv/config-file ]; then`,
				`  ARGS="${ARGS} --config=/etc/tikv/config-file"`,
				`fi`,
				`exec /tikv-server ${ARGS}`,
			},
		},
		{
			name:   "tidb",
			config: "[performance]\ntcp-keep-alive = true\nmax-txn-ttl = 10000\n",
			startup: []string{
				`ARGS="--store=tikv \`,
				fmt.Sprintf(`--advertise-address=${HOSTNAME}.%s-tidb-peer.%s.svc \`, ns, ns),
				`--host=0.0.0.0 \`,
				`-P=4000 \`,
				`--status=10080 \`,
				fmt.Sprintf(`--path=%s"`, pdClient),
				`if [ -f /etc/tidb/config-file ]; then`,
				`  ARGS="${ARGS} --config=/etc/tidb/config-file"`,
				`fi`,
				`exec /tidb-server ${ARGS}`,
			},
		},
	}

	out := make([]*corev1.ConfigMap, 0, len(components))
	for _, c := range components {
		script := "#!/bin/sh\nset -uo pipefail\n" + strings.Join(c.startup, "\n") + "\n"
		out = append(out, &corev1.ConfigMap{
			TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
			ObjectMeta: metav1.ObjectMeta{
				Name:      ns + "-" + c.name,
				Namespace: ns,
				Labels: map[string]string{
					"app.kubernetes.io/name":      ns,
					"app.kubernetes.io/instance":  id.instance(),
					"app.kubernetes.io/component": c.name,
					"app.kubernetes.io/part-of":   ns,
				},
			},
			Data: map[string]string{
				"config-file":    c.config,
				"startup-script": script,
			},
		})
	}
	return out
}

// PeerAuthentication enforces mutual TLS for every workload in the namespace.
func (id Identity) PeerAuthentication() *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "security.istio.io/v1",
		"kind":       "PeerAuthentication",
		"metadata": map[string]any{
			"name":      "default-" + id.Namespace + "-mtls",
			"namespace": id.Namespace,
		},
		"spec": map[string]any{
			"mtls": map[string]any{"mode": "STRICT"},
		},
	}}
}

// MeshInjectionLabels turns on sidecar injection for a namespace.
func MeshInjectionLabels() map[string]string {
	return map[string]string{"istio-injection": "enabled"}
}
