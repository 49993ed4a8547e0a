// Package config holds the cluster-wide settings every machine converges
// toward: the control-plane endpoint, pinned component versions, SSH access
// and the identity database layout.
//
// [Default] returns the settings of the development cluster. [LoadFile]
// overlays a YAML file on top of them and [LoadTimeouts] reads polling and
// dial durations from INFRA_* environment variables.
package config
