// Package commands implements the filed CLI.
package commands

import (
	"github.com/marmos91/filed/pkg/config"
	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var cfgFile string

// rootCmd is the server itself: `filed [flags] <mount-point>` starts
// serving, mirroring the single-binary daemons this service descends from.
var rootCmd = &cobra.Command{
	Use:   "filed [flags] <mount-point>",
	Short: "filed - crash-consistent networked file service",
	Long: `filed serves a subtree of a local mount point to remote clients over a
compact TCP protocol: create and remove files and directories, list
directories, stat, download, and upload.

Uploads are crash-consistent. Bytes are staged in a persistent directory
under a write-ahead log and published with a single atomic rename; on
restart, recovery either finishes or discards every in-flight upload, so a
partially written file is never visible to clients.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the CLI. Called by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: none; flags and FILED_* env apply)")

	f := rootCmd.Flags()

	f.IntP("port", "p", config.DefaultPort, "listen port for client connections, in [0, 65535]")
	f.String("bind", "0.0.0.0", "address to bind the listener to")
	f.Int("max-connections", 0, "maximum concurrent client connections (0 = unlimited)")

	f.StringP("persist-dir", "D", "~/.filed", "persistent directory holding staged uploads")
	f.StringP("store", "P", "~/.filed-store", "path of the write-ahead store file")
	f.BoolP("crash-write", "c", false, "enable the crash-on-write test hook")

	f.IntP("verbosity", "V", config.DefaultVerbosity, "event log verbosity in [0, 4]: fatal, error, info, debug, trace")
	f.BoolP("dump-files", "d", false, "dump file contents to the event log")
	f.BoolP("quiet", "q", false, "set verbosity to fatal")
	f.BoolP("trace", "L", false, "set verbosity to trace")
	f.String("event-output", "stdout", "event log sink: stdout, stderr, or a file path")

	f.String("log-level", "INFO", "process log level: DEBUG, INFO, WARN, ERROR")
	f.String("log-format", "text", "process log format: text or json")

	f.Bool("metrics", false, "enable the admin HTTP endpoint (healthz, metrics, status)")
	f.Int("metrics-port", config.DefaultMetricsPort, "admin HTTP endpoint port")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}
