package handlers

import (
	"fmt"
	"text/tabwriter"
)

// Inventory prints the machine table.
func Inventory() error {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tROLE\tENVIRONMENT")
	for _, m := range registry().Machines() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.SSHAddress(), m.Role, m.Environment)
	}
	return w.Flush()
}
