// Package commands implements the filedctl CLI: one subcommand per file
// service operation.
package commands

import (
	"fmt"
	"syscall"

	"github.com/marmos91/filed/pkg/client"
	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "filedctl",
	Short: "filedctl - client for the filed file service",
	Long: `filedctl talks to a running filed server: create and remove files and
directories, list directories, stat paths, and transfer file contents.

Paths are served paths, relative to the server's mount point.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"localhost:61512", "filed server address (host:port)")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmdirCmd)
	rootCmd.AddCommand(touchCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
}

// dial connects to the configured server.
func dial() (*client.Client, error) {
	return client.Dial(serverAddr)
}

// checkCode converts a wire error code into a CLI error.
func checkCode(op string, code int32) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("%s failed: %s (error code %d)", op, syscall.Errno(-code).Error(), code)
}
