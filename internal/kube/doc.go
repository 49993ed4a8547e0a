// Package kube is the cluster API collaborator used by convergence steps.
//
// It wraps client-go typed and dynamic clients behind a small interface:
// server-side apply of multi-document manifests, node label and taint
// queries, namespace labelling, and readiness counts used by the poller.
//
// Clients are built from kubeconfig bytes so the admin kubeconfig can be
// read from the converged machine over its transport without touching the
// controller's file system.
package kube
