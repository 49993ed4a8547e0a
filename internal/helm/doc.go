// Package helm installs add-on charts through the Helm SDK using the admin
// kubeconfig held in memory, so no helm binary or kubeconfig file is needed
// on the controller.
package helm
