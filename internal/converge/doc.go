// Package converge drives a fixed, ordered list of steps toward their
// desired state on one machine.
//
// Every step is checked first. A satisfied step is left alone. An
// unsatisfied step is applied and checked again; if it is still
// unsatisfied the run stops and no later step is touched.
package converge
