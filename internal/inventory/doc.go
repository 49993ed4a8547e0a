// Package inventory holds the compiled-in machine table and resolves a
// machine identity to its network coordinates and cluster role.
//
// The table is fixed at build time. Resolution happens once per run; a
// machine that is not listed is a configuration error and nothing is
// provisioned.
package inventory
