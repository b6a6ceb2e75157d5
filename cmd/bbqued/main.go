// Command bbqued is the resource-manager daemon: it loads the platform's
// resource tree, admits EXCs, runs the scheduling policy loop, and serves
// the admin API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bbqued",
		Short: "bbqued is the run-time resource manager daemon",
		Long: `bbqued manages heterogeneous platform resources for a set of
execution contexts (EXCs), scheduling each onto a working mode chosen by
a pluggable policy and reconciling admission through the two-phase
sync protocol.`,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a bbqued config file (default: search ./ , ./config, /etc/bbqued)")

	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
