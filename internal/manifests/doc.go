// Package manifests builds the Kubernetes objects and generated files the
// convergence steps place on a machine or apply to the cluster.
//
// Everything is constructed as structured data (k8s.io/api types or
// unstructured maps for custom resources) and rendered with sigs.k8s.io/yaml,
// so no manifest is assembled by string concatenation.
package manifests
