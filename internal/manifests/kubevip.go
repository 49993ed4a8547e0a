package manifests

import (
	"fmt"
	"strconv"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// KubeVIPManifestPath is the static pod location watched by the kubelet.
const KubeVIPManifestPath = "/etc/kubernetes/manifests/kube-vip.yaml"

// KubeVIP parameterizes the virtual IP static pod.
type KubeVIP struct {
	Image     string
	Version   string
	Digest    string
	VIP       string
	Port      int
	Interface string
	// Kubeconfig is the host path mounted as the pod's admin credentials.
	// During the first kubeadm init only super-admin.conf has the rights
	// kube-vip needs for leader election.
	Kubeconfig string
}

// ImageRef returns the pinned image reference, image:version@sha256:digest.
func (k KubeVIP) ImageRef() string {
	ref := k.Image + ":" + k.Version
	if k.Digest != "" {
		ref += "@sha256:" + k.Digest
	}
	return ref
}

// KubeVIPPod returns the ARP-mode control-plane static pod.
func KubeVIPPod(k KubeVIP) *corev1.Pod {
	env := []corev1.EnvVar{
		{Name: "vip_arp", Value: "true"},
		{Name: "port", Value: strconv.Itoa(k.Port)},
		{Name: "vip_nodename", ValueFrom: &corev1.EnvVarSource{
			FieldRef: &corev1.ObjectFieldSelector{FieldPath: "spec.nodeName"},
		}},
		{Name: "vip_interface", Value: k.Interface},
		{Name: "vip_subnet", Value: "32"},
		{Name: "dns_mode", Value: "first"},
		{Name: "cp_enable", Value: "true"},
		{Name: "cp_namespace", Value: "kube-system"},
		{Name: "vip_leaderelection", Value: "true"},
		{Name: "vip_leasename", Value: "plndr-cp-lock"},
		{Name: "vip_leaseduration", Value: "5"},
		{Name: "vip_renewdeadline", Value: "3"},
		{Name: "vip_retryperiod", Value: "1"},
		{Name: "address", Value: k.VIP},
		{Name: "prometheus_server", Value: ":2112"},
	}

	hostPathFile := corev1.HostPathFile
	return &corev1.Pod{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "kube-vip",
			Namespace: "kube-system",
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{
				Name:            "kube-vip",
				Image:           k.ImageRef(),
				ImagePullPolicy: corev1.PullIfNotPresent,
				Args:            []string{"manager"},
				Env:             env,
				SecurityContext: &corev1.SecurityContext{
					Capabilities: &corev1.Capabilities{
						Add:  []corev1.Capability{"NET_ADMIN", "NET_RAW"},
						Drop: []corev1.Capability{"ALL"},
					},
				},
				VolumeMounts: []corev1.VolumeMount{{
					Name:      "kubeconfig",
					MountPath: "/etc/kubernetes/admin.conf",
				}},
			}},
			HostAliases: []corev1.HostAlias{{
				IP:        "127.0.0.1",
				Hostnames: []string{"kubernetes"},
			}},
			HostNetwork: true,
			Volumes: []corev1.Volume{{
				Name: "kubeconfig",
				VolumeSource: corev1.VolumeSource{
					HostPath: &corev1.HostPathVolumeSource{Path: k.Kubeconfig, Type: &hostPathFile},
				},
			}},
		},
	}
}

// RenderKubeVIP renders the static pod manifest.
func RenderKubeVIP(k KubeVIP) ([]byte, error) {
	if k.VIP == "" || k.Interface == "" || k.Image == "" {
		return nil, fmt.Errorf("kube-vip requires vip, interface and image")
	}
	return Render(KubeVIPPod(k))
}
