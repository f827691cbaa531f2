package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/database"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
	"github.com/spf13/cobra"
)

// newOrdersCmd creates the `shopclaw orders` command group.
func newOrdersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect and update recorded orders",
	}
	cmd.AddCommand(newOrdersListCmd(), newOrdersStatusCmd())
	return cmd
}

// openOrders opens the configured database for order administration.
func openOrders(cmd *cobra.Command) (*orders.SQLRepository, func(), error) {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cmd.Context(), cfg.Database, quietLogging(cmd, cfg.Logging))
	if err != nil {
		return nil, nil, err
	}
	return orders.NewSQLRepository(db), func() { _ = db.Close() }, nil
}

func newOrdersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			skip, _ := cmd.Flags().GetInt("skip")
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			if skip < 0 || limit <= 0 {
				return fmt.Errorf("--skip must be >= 0 and --limit > 0")
			}

			repo, closeDB, err := openOrders(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			list, err := repo.List(cmd.Context(), skip, min(limit, 500))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No orders.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tCUSTOMER\tSOURCE\tPAYMENT\tSTATUS\tPRODUCTS")
			for _, o := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					o.ID, o.CreatedAt.Format("2006-01-02 15:04"),
					strings.TrimSpace(o.FirstName+" "+o.LastName),
					o.Source.Label(), o.PaymentMethod.Label(), o.Status.Label(),
					o.ProductSummary)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("skip", 0, "orders to skip")
	cmd.Flags().Int("limit", 100, "maximum orders to show (max 500)")
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func newOrdersStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change an order's status",
		Long: `Change an order's status. The status may be a code (PENDING, SENT,
COMPLETED, CANCELLED) or its label (e.g. "Tamamlandı").`,
		Example: `  shopclaw orders status 12 SENT
  shopclaw orders status 12 "İptal Edildi"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("order id must be an integer: %q", args[0])
			}
			status, err := orders.ParseStatus(args[1])
			if err != nil {
				return err
			}

			repo, closeDB, err := openOrders(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			o, err := repo.UpdateStatus(cmd.Context(), id, status)
			if errors.Is(err, orders.ErrNotFound) {
				return fmt.Errorf("order %d not found", id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order %d is now %s.\n", o.ID, o.Status.Label())
			return nil
		},
	}
}
