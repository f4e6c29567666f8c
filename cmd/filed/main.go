// filed is the file service daemon: it serves a subtree of a local mount
// point to remote clients with crash-consistent uploads.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/filed/cmd/filed/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "filed: %v\n", err)
		os.Exit(1)
	}
}
