// Package commands implements the shopclaw CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shopclaw",
		Short: "shopclaw - AI sales assistant for Shopify stores",
		Long: `shopclaw answers shoppers on the web, WhatsApp and Instagram,
searches the live Shopify catalog and records orders.

Examples:
  shopclaw serve
  shopclaw chat "elbise var mı?"
  shopclaw search ikra
  shopclaw orders list --limit 20
  shopclaw secrets set api-key`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSearchCmd(),
		newOrdersCmd(),
		newSetupCmd(),
		newSecretsCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
