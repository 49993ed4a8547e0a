package inventory

const (
	defaultSSHPort = 22
	defaultSSHUser = "mgmt"
)

var devMachines = []Machine{
	{
		ID:          "a218e8c2c31942e3acdbae7f4f532c2d",
		Address:     "192.168.0.2",
		Port:        defaultSSHPort,
		User:        defaultSSHUser,
		Role:        RoleFounder,
		Environment: EnvironmentDev,
	},
	{
		ID:          "e65407e7fcd24bc58a7a20ce0b4992dd",
		Address:     "192.168.0.3",
		Port:        defaultSSHPort,
		User:        defaultSSHUser,
		Role:        RoleJoiner,
		Environment: EnvironmentDev,
	},
	{
		ID:          "75719c8d8ad84e2a8959733440b18233",
		Address:     "192.168.0.4",
		Port:        defaultSSHPort,
		User:        defaultSSHUser,
		Role:        RoleJoiner,
		Environment: EnvironmentDev,
	},
	{
		ID:          "ca9e447c051b4c18b154810ea3a4dc8a",
		Address:     "192.168.0.5",
		Port:        defaultSSHPort,
		User:        defaultSSHUser,
		Role:        RoleJoiner,
		Environment: EnvironmentDev,
	},
	{
		ID:          "4142f1ba2e8844d09cba6ea16e97dfa2",
		Address:     "192.168.0.6",
		Port:        defaultSSHPort,
		User:        defaultSSHUser,
		Role:        RoleJoiner,
		Environment: EnvironmentDev,
	},
}

var defaultRegistry = NewRegistry(devMachines)

// Default returns the compiled-in registry.
func Default() *Registry {
	return defaultRegistry
}

// Resolve looks up id in the compiled-in registry.
func Resolve(id string) (Machine, error) {
	return defaultRegistry.Resolve(id)
}

// Founder returns the Founder of the compiled-in registry.
func Founder() (Machine, error) {
	return defaultRegistry.Founder()
}
