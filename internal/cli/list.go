package cli

import (
	"fmt"
	"io"

	"github.com/marcelocantos/monch/internal/registry"
)

// RunTypes lists registered program signatures. With a non-empty origin
// filter only registrations from that origin are shown.
func RunTypes(reg *registry.Registry, w io.Writer, originFilter string) int {
	for _, e := range reg.All() {
		if originFilter != "" && string(e.Origin) != originFilter {
			continue
		}
		fmt.Fprintf(w, "%-12s %-24s %s\n", e.Name, e.Signature, e.Origin)
	}
	return 0
}
