package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_KnownMachines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id      string
		address string
		role    Role
	}{
		{"a218e8c2c31942e3acdbae7f4f532c2d", "192.168.0.2", RoleFounder},
		{"e65407e7fcd24bc58a7a20ce0b4992dd", "192.168.0.3", RoleJoiner},
		{"4142f1ba2e8844d09cba6ea16e97dfa2", "192.168.0.6", RoleJoiner},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			m, err := Resolve(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.address, m.Address)
			assert.Equal(t, tt.role, m.Role)
			assert.Equal(t, 22, m.Port)
			assert.Equal(t, "mgmt", m.User)
		})
	}
}

func TestResolve_TrimsMachineIDNewline(t *testing.T) {
	t.Parallel()
	m, err := Resolve("a218e8c2c31942e3acdbae7f4f532c2d\n")
	require.NoError(t, err)
	assert.Equal(t, RoleFounder, m.Role)
}

func TestResolve_Unknown(t *testing.T) {
	t.Parallel()
	_, err := Resolve("deadbeef")
	require.ErrorIs(t, err, ErrUnknownMachine)
	assert.Contains(t, err.Error(), "deadbeef")
}

func TestFounder(t *testing.T) {
	t.Parallel()

	m, err := Founder()
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.2", m.Address)

	_, err = NewRegistry([]Machine{{ID: "w", Role: RoleWorker}}).Founder()
	require.ErrorIs(t, err, ErrNoFounder)
}

func TestRegistry_FirstFounderWins(t *testing.T) {
	t.Parallel()
	r := NewRegistry([]Machine{
		{ID: "w", Role: RoleWorker},
		{ID: "f1", Role: RoleFounder},
		{ID: "f2", Role: RoleFounder},
	})
	m, err := r.Founder()
	require.NoError(t, err)
	assert.Equal(t, "f1", m.ID)
}

func TestRegistry_MachinesIsCopy(t *testing.T) {
	t.Parallel()
	r := NewRegistry([]Machine{{ID: "a", Role: RoleWorker}})
	ms := r.Machines()
	ms[0].Role = RoleFounder

	m, err := r.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, RoleWorker, m.Role)
}

func TestRole_IsControlPlane(t *testing.T) {
	t.Parallel()
	assert.True(t, RoleFounder.IsControlPlane())
	assert.True(t, RoleJoiner.IsControlPlane())
	assert.False(t, RoleWorker.IsControlPlane())
}

func TestMachine_SSHAddress(t *testing.T) {
	t.Parallel()
	m := Machine{Address: "192.168.0.3", Port: 2222}
	assert.Equal(t, "192.168.0.3:2222", m.SSHAddress())
}

func TestDefault_ExactlyOneFounder(t *testing.T) {
	t.Parallel()
	founders := 0
	seen := map[string]bool{}
	for _, m := range Default().Machines() {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if m.Role == RoleFounder {
			founders++
		}
	}
	assert.Equal(t, 1, founders)
}
