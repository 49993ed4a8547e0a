// Package steps implements the convergence steps that turn a bare Ubuntu
// machine into a Kubernetes control-plane member.
//
// Every step shares one [Env]: the transport to the machine, file access
// on top of it, the package manager, the resolved inventory entry and
// host context, and factories for the cluster API and chart installer.
// [Catalog] returns the steps in the order they must run.
package steps
