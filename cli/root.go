package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
}

// NewRootCommand creates the root command with one subcommand per server.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "autogramhandoff",
		Short: "Document Access and Autogram Gateway Proxy servers",
		Long: `Runs one side of the signing handoff.

The DA server owns documents and opens signing sessions on the AGP.
The AGP server hosts the signing iframe and relays results back to the DA.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a TOML config file (defaults to $CONFIG_FILE)")

	cmd.AddCommand(NewAGPCommand(opts))
	cmd.AddCommand(NewDACommand(opts))

	return cmd
}
