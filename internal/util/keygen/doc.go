// Package keygen generates the Ed25519 management key used to reach cluster
// machines over SSH.
//
// The private key is written in OpenSSH format, the public key in
// authorized_keys format, so both can be dropped into ~/.ssh unchanged.
package keygen
