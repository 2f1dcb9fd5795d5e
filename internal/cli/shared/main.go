// Package shared is the CLI bootstrap: the cobra root command and
// persistent flags every subcommand shares, mirroring relic's
// cmdline/shared split between a root command package and the leaf
// command packages that register themselves onto it via init().
package shared

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ArgConfig string

var RootCmd = &cobra.Command{
	Use:  "ncatool",
	RunE: bailUnlessSubcommand,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&ArgConfig, "config", "c", "", "Key-set configuration file")
}

func bailUnlessSubcommand(cmd *cobra.Command, args []string) error {
	return fmt.Errorf("expected a command")
}

// Main executes the root command, printing any returned error to stderr
// and exiting non-zero.
func Main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
