package manifests

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

type port struct {
	number   string
	protocol string
}

func tcp(n string) port { return port{number: n, protocol: "TCP"} }
func udp(n string) port { return port{number: n, protocol: "UDP"} }

func toPorts(ports ...port) []any {
	list := make([]any, 0, len(ports))
	for _, p := range ports {
		list = append(list, map[string]any{"port": p.number, "protocol": p.protocol})
	}
	return []any{map[string]any{"ports": list}}
}

func selector(labels map[string]string) map[string]any {
	m := make(map[string]any, len(labels))
	for k, v := range labels {
		m[k] = v
	}
	return map[string]any{"matchLabels": m}
}

func (id Identity) component(name string) map[string]any {
	return selector(map[string]string{
		"app.kubernetes.io/component":     name,
		"k8s:io.kubernetes.pod.namespace": id.Namespace,
	})
}

func (id Identity) namespaceSelector(extra map[string]string) map[string]any {
	labels := map[string]string{"k8s:io.kubernetes.pod.namespace": id.Namespace}
	for k, v := range extra {
		labels[k] = v
	}
	return selector(labels)
}

func dnsEgress(protocols ...port) map[string]any {
	return map[string]any{
		"toEndpoints": []any{selector(map[string]string{
			"k8s:io.kubernetes.pod.namespace": "kube-system",
			"k8s-app":                         "kube-dns",
		})},
		"toPorts": toPorts(protocols...),
	}
}

func from(endpoints []any, ports ...port) map[string]any {
	return map[string]any{"fromEndpoints": endpoints, "toPorts": toPorts(ports...)}
}

func to(endpoints []any, ports ...port) map[string]any {
	return map[string]any{"toEndpoints": endpoints, "toPorts": toPorts(ports...)}
}

func (id Identity) policy(name string, endpoint map[string]any, ingress, egress []any) *unstructured.Unstructured {
	spec := map[string]any{"endpointSelector": endpoint}
	if len(ingress) > 0 {
		spec["ingress"] = ingress
	}
	if len(egress) > 0 {
		spec["egress"] = egress
	}
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "cilium.io/v2",
		"kind":       "CiliumNetworkPolicy",
		"metadata": map[string]any{
			"name":      name,
			"namespace": id.Namespace,
		},
		"spec": spec,
	}}
}

// NetworkPolicies returns the Cilium policies that confine database traffic.
func (id Identity) NetworkPolicies() []*unstructured.Unstructured {
	tidb := id.component("tidb")
	pd := id.component("pd")
	tikv := id.component("tikv")
	ns := id.namespaceSelector(nil)
	prometheus := id.component("prometheus")

	return []*unstructured.Unstructured{
		id.policy("tidb-component-communication", tidb,
			[]any{
				from([]any{ns}, tcp("4000")),
				from([]any{prometheus}, tcp("10080")),
			},
			[]any{
				to([]any{pd}, tcp("2379")),
				dnsEgress(udp("53"), tcp("53")),
			}),
		id.policy("pd-communication", pd,
			[]any{
				from([]any{tidb, tikv}, tcp("2379")),
				from([]any{pd}, tcp("2380")),
			},
			[]any{
				to([]any{pd}, tcp("2380")),
				dnsEgress(udp("53")),
			}),
		id.policy("tikv-communication", tikv,
			[]any{
				from([]any{tidb, tikv, pd}, tcp("20160")),
			},
			[]any{
				to([]any{pd}, tcp("2379")),
				to([]any{tikv}, tcp("20160")),
				dnsEgress(udp("53")),
			}),
		id.policy("tidb-operator",
			selector(map[string]string{"app.kubernetes.io/name": "tidb-operator"}),
			nil,
			[]any{
				map[string]any{
					"toEntities": []any{"kube-apiserver"},
					"toPorts":    toPorts(tcp("443"), tcp("6443")),
				},
				to([]any{ns}, tcp("4000"), tcp("2379"), tcp("20160"), tcp("10080")),
				dnsEgress(udp("53")),
			}),
		id.policy("tidb-external-clients", tidb,
			[]any{
				from([]any{id.namespaceSelector(map[string]string{"app": id.Namespace})}, tcp("4000")),
			},
			nil),
		id.policy("tidb-monitoring",
			selector(map[string]string{"app.kubernetes.io/instance": id.instance()}),
			[]any{
				from([]any{selector(map[string]string{
					"k8s:io.kubernetes.pod.namespace": "monitoring",
					"app":                             "prometheus",
				})}, tcp("10080"), tcp("2379"), tcp("20180")),
			},
			nil),
	}
}

// IdentityObjects returns every object of the identity database in apply order.
func (id Identity) IdentityObjects() []any {
	objs := []any{StorageClass()}
	for _, pv := range id.PersistentVolumes() {
		objs = append(objs, pv)
	}
	for _, cm := range id.ConfigMaps() {
		objs = append(objs, cm)
	}
	objs = append(objs, id.TidbCluster(), id.TidbMonitor())
	for _, p := range id.NetworkPolicies() {
		objs = append(objs, p)
	}
	return append(objs, id.PeerAuthentication())
}

// RenderIdentity renders IdentityObjects as one multi-document stream.
func RenderIdentity(id Identity) ([]byte, error) {
	return Render(id.IdentityObjects()...)
}
