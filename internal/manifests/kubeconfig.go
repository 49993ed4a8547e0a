package manifests

import (
	"fmt"

	"k8s.io/client-go/tools/clientcmd"
)

// DefaultClusterName is the cluster entry kubeadm writes into admin.conf.
const DefaultClusterName = "kubernetes"

// RewriteClusterTrust points cluster at server and embeds caPEM as its
// certificate authority. Other entries are preserved.
func RewriteClusterTrust(kubeconfig []byte, cluster, server string, caPEM []byte) ([]byte, error) {
	cfg, err := clientcmd.Load(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kubeconfig: %w", err)
	}

	entry, ok := cfg.Clusters[cluster]
	if !ok {
		return nil, fmt.Errorf("kubeconfig has no cluster %q", cluster)
	}
	if len(caPEM) == 0 {
		return nil, fmt.Errorf("cluster CA is empty")
	}

	entry.Server = server
	entry.CertificateAuthority = ""
	entry.CertificateAuthorityData = caPEM
	entry.InsecureSkipTLSVerify = false

	out, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize kubeconfig: %w", err)
	}
	return out, nil
}
