package inventory

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrUnknownMachine is returned when an identity has no inventory entry.
var ErrUnknownMachine = errors.New("machine is not in the inventory")

// ErrNoFounder is returned when the inventory lists no Founder.
var ErrNoFounder = errors.New("inventory has no founder")

// Role governs a machine's participation in the control plane.
type Role string

const (
	// RoleFounder initializes a new control plane from scratch.
	RoleFounder Role = "founder"
	// RoleJoiner joins an existing control plane with a credential fetched from the Founder.
	RoleJoiner Role = "joiner"
	// RoleWorker never runs control-plane bootstrap.
	RoleWorker Role = "worker"
)

// IsControlPlane reports whether the role hosts control-plane components.
func (r Role) IsControlPlane() bool {
	return r == RoleFounder || r == RoleJoiner
}

// Environment tags the deployment a machine belongs to.
type Environment string

// EnvironmentDev is the development cluster.
const EnvironmentDev Environment = "dev"

// Machine is a resolved inventory entry. Values are immutable copies.
type Machine struct {
	ID          string
	Address     string
	Port        int
	User        string
	Role        Role
	Environment Environment
}

// SSHAddress returns host:port for the machine.
func (m Machine) SSHAddress() string {
	return net.JoinHostPort(m.Address, fmt.Sprintf("%d", m.Port))
}

func (m Machine) String() string {
	return fmt.Sprintf("%s (%s, %s)", m.ID, m.Address, m.Role)
}

// Registry is a fixed machine table.
type Registry struct {
	machines []Machine
}

// NewRegistry builds a registry over a copy of machines.
func NewRegistry(machines []Machine) *Registry {
	return &Registry{machines: append([]Machine(nil), machines...)}
}

// Resolve returns the machine with the given identity.
func (r *Registry) Resolve(id string) (Machine, error) {
	id = strings.TrimSpace(id)
	for _, m := range r.machines {
		if m.ID == id {
			return m, nil
		}
	}
	return Machine{}, fmt.Errorf("%w: %q", ErrUnknownMachine, id)
}

// Founder returns the first machine with RoleFounder. Inventories are
// expected to carry exactly one; additional founders are not detected.
func (r *Registry) Founder() (Machine, error) {
	for _, m := range r.machines {
		if m.Role == RoleFounder {
			return m, nil
		}
	}
	return Machine{}, ErrNoFounder
}

// Machines returns a copy of the table in declaration order.
func (r *Registry) Machines() []Machine {
	return append([]Machine(nil), r.machines...)
}
