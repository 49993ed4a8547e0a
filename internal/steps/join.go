package steps

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoControlPlaneJoin is returned when the founder did not hand out a
// control-plane join command.
var ErrNoControlPlaneJoin = errors.New("join command does not join the control plane")

// JoinCredential is everything kubeadm join needs to add a control-plane
// member. It is fetched right before use and never persisted.
type JoinCredential struct {
	Endpoint       string
	Token          string
	CACertHash     string
	CertificateKey string
}

// String redacts the secrets.
func (c JoinCredential) String() string {
	return fmt.Sprintf("JoinCredential{endpoint=%s token=<redacted> ca-cert-hash=%s certificate-key=<redacted>}",
		c.Endpoint, c.CACertHash)
}

// GoString redacts the secrets under %#v.
func (c JoinCredential) GoString() string {
	return c.String()
}

// Command renders the kubeadm join invocation.
func (c JoinCredential) Command() string {
	return fmt.Sprintf("kubeadm join %s --token %s --discovery-token-ca-cert-hash %s --control-plane --certificate-key %s",
		c.Endpoint, c.Token, c.CACertHash, c.CertificateKey)
}

// ParseJoinCredential extracts the credential from the output of
// kubeadm token create --print-join-command --certificate-key.
func ParseJoinCredential(output string) (JoinCredential, error) {
	var line string
	for _, l := range lines(strings.ReplaceAll(output, "\\\n", " ")) {
		if strings.HasPrefix(l, "kubeadm join ") {
			line = l
		}
	}
	if line == "" {
		return JoinCredential{}, fmt.Errorf("no kubeadm join command in founder output")
	}

	fields := strings.Fields(line)
	var c JoinCredential
	controlPlane := false
	for i := 2; i < len(fields); i++ {
		next := func() string {
			if i+1 < len(fields) {
				i++
				return fields[i]
			}
			return ""
		}
		switch f := fields[i]; {
		case f == "--control-plane":
			controlPlane = true
		case f == "--token":
			c.Token = next()
		case f == "--discovery-token-ca-cert-hash":
			c.CACertHash = next()
		case f == "--certificate-key":
			c.CertificateKey = next()
		case !strings.HasPrefix(f, "-") && c.Endpoint == "":
			c.Endpoint = f
		}
	}

	if !controlPlane {
		return JoinCredential{}, ErrNoControlPlaneJoin
	}
	switch {
	case c.Endpoint == "":
		return JoinCredential{}, fmt.Errorf("join command has no endpoint")
	case c.Token == "":
		return JoinCredential{}, fmt.Errorf("join command has no token")
	case c.CACertHash == "":
		return JoinCredential{}, fmt.Errorf("join command has no CA certificate hash")
	case c.CertificateKey == "":
		return JoinCredential{}, fmt.Errorf("join command has no certificate key")
	}
	return c, nil
}
