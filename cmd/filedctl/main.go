// filedctl is the line-mode client for a filed server, used for
// administration.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/filed/cmd/filedctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "filedctl: %v\n", err)
		os.Exit(1)
	}
}
