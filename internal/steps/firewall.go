package steps

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FirewallRule admits one port from the cluster network.
type FirewallRule struct {
	Port     int
	Protocol string
	Source   string
	Comment  string
}

// Command renders the ufw invocation adding r, tagged with tag.
func (r FirewallRule) Command(tag string) string {
	return fmt.Sprintf("ufw allow from %s to any port %d proto %s comment '%s: %s'",
		r.Source, r.Port, r.Protocol, tag, r.Comment)
}

// FirewallRules returns the ports control-plane members expose to each other.
func FirewallRules(source string) []FirewallRule {
	rule := func(port int, proto, comment string) FirewallRule {
		return FirewallRule{Port: port, Protocol: proto, Source: source, Comment: comment}
	}
	return []FirewallRule{
		rule(2379, "tcp", "etcd client"),
		rule(2380, "tcp", "etcd peer"),
		rule(6443, "tcp", "kube-apiserver"),
		rule(8472, "udp", "cilium vxlan"),
		rule(10250, "tcp", "kubelet"),
		rule(10257, "tcp", "controller-manager"),
		rule(10259, "tcp", "scheduler"),
	}
}

// Firewall opens the cluster ports with ufw.
type Firewall struct {
	env *Env
}

// NewFirewall creates the firewall step.
func NewFirewall(env *Env) *Firewall {
	return &Firewall{env: env}
}

// Name implements converge.Step.
func (s *Firewall) Name() string { return "firewall" }

func (s *Firewall) expected() []string {
	c := s.env.Config.Cluster
	rules := FirewallRules(c.FirewallSource)
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, normalizeRule(r.Command(c.FirewallTag)))
	}
	return sortRules(out)
}

// Check implements converge.Step. The tagged rules ufw reports must equal
// the expected set exactly; missing, extra or altered rules fail.
func (s *Firewall) Check(ctx context.Context) (bool, error) {
	res, err := s.env.Exec.Execute(ctx, "ufw show added")
	if err != nil {
		return false, err
	}
	if !res.Success() {
		return false, nil
	}

	tag := "'" + s.env.Config.Cluster.FirewallTag + ":"
	var added []string
	for _, line := range lines(res.Stdout) {
		if strings.Contains(line, tag) {
			added = append(added, normalizeRule(line))
		}
	}

	want := s.expected()
	got := sortRules(added)
	if len(got) != len(want) {
		return false, nil
	}
	for i := range want {
		if got[i] != want[i] {
			return false, nil
		}
	}
	return true, nil
}

// Apply implements converge.Step.
func (s *Firewall) Apply(ctx context.Context) error {
	return openPorts(ctx, s.env)
}

func openPorts(ctx context.Context, env *Env) error {
	c := env.Config.Cluster
	for _, r := range FirewallRules(c.FirewallSource) {
		if _, err := env.run(ctx, r.Command(c.FirewallTag)); err != nil {
			return fmt.Errorf("failed to open port %d/%s: %w", r.Port, r.Protocol, err)
		}
	}
	if _, err := env.run(ctx, "ufw reload"); err != nil {
		return fmt.Errorf("failed to reload firewall: %w", err)
	}
	return nil
}

// normalizeRule collapses runs of whitespace so rules compare by their fields.
func normalizeRule(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// sortRules orders ufw rule lines by port, then source. Lines too short to
// carry both sort after the rest in lexical order.
func sortRules(rules []string) []string {
	type keyed struct {
		line   string
		port   int
		source string
		ok     bool
	}
	ks := make([]keyed, 0, len(rules))
	for _, r := range rules {
		k := keyed{line: r}
		if f := strings.Fields(r); len(f) > 7 {
			if p, err := strconv.Atoi(f[7]); err == nil {
				k.port, k.source, k.ok = p, f[3], true
			}
		}
		ks = append(ks, k)
	}
	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.ok != b.ok {
			return a.ok
		}
		if !a.ok {
			return a.line < b.line
		}
		if a.port != b.port {
			return a.port < b.port
		}
		if a.source != b.source {
			return a.source < b.source
		}
		return a.line < b.line
	})
	out := make([]string, 0, len(ks))
	for _, k := range ks {
		out = append(out, k.line)
	}
	return out
}
