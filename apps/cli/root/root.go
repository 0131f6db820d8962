package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the control-plane admin CLI. Subcommands
// (bootstrap, tenant, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "rmsctl",
	Short:         "RMSphere control-plane admin CLI",
	Long:          "Administrative utilities for the RMSphere control plane (platform bootstrap, tenant provisioning).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
