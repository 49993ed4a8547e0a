// Package transport runs shell command lines against a machine, either on
// this host through a local shell or on a remote host over SSH.
//
// A Transport returns a Result for every command that ran to completion,
// whatever its exit status. Callers decide whether a non-zero exit means
// "not converged" or a hard failure; Result.Err converts it into a
// *CommandError for the latter. Failing to start the command at all
// (missing shell, refused connection, rejected key) is a *LaunchError and
// is never retried here.
//
// The Selector picks Local or Remote once per machine by comparing the
// machine's address with the addresses configured on this host, and keeps
// that choice for the rest of the run.
package transport
