package commands

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/catalog"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/shopify"
	"github.com/spf13/cobra"
)

// newSearchCmd creates `shopclaw search`, which prints the same listing the
// assistant's product tool returns.
func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the live Shopify catalog",
		Example: `  shopclaw search ikra
  shopclaw search "keten gömlek" --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(cmd)
			if err != nil {
				return err
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			if utf8.RuneCountInString(query) < 2 {
				return fmt.Errorf("query must be at least 2 characters")
			}

			logger := quietLogging(cmd, cfg.Logging)
			client, err := shopify.NewClient(cfg.Shopify, logger)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			svc := catalog.NewService(client, limit, logger)

			fmt.Fprintln(cmd.OutOrStdout(), svc.Search(cmd.Context(), query))
			return nil
		},
	}
	cmd.Flags().Int("limit", catalog.DefaultLimit, "maximum products to list")
	return cmd
}
