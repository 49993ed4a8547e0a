package steps

import (
	"github.com/8inary/infra/internal/converge"
)

// Catalog returns every step in run order.
func Catalog(env *Env) []converge.Step {
	return []converge.Step{
		NewDisableSwap(env),
		NewKernelModules(env),
		NewSysctl(env),
		NewContainerd(env),
		NewKubes(env),
		NewFirewall(env),
		NewControlPlane(env),
		NewIstio(env),
		NewIdentityDatabase(env),
	}
}
