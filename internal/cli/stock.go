package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

type movementResult struct {
	ProductID string `json:"productId"`
	Product   string `json:"product"`
	Stock     int    `json:"stock"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason,omitempty"`
}

func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Record stock movements and inspect the ledger",
	}
	cmd.AddCommand(newMoveCommand(rootOpts, orders.MovementIn, "Receive units into stock"))
	cmd.AddCommand(newMoveCommand(rootOpts, orders.MovementOut, "Remove units from stock"))
	cmd.AddCommand(newMoveCommand(rootOpts, orders.MovementAdjust, "Set the stock level after a count"))
	cmd.AddCommand(newMovementsCommand(rootOpts))
	return cmd
}

func newMoveCommand(rootOpts *RootOptions, kind orders.MovementType, short string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   string(kind) + " <product-id> <quantity>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q is not a number", args[1])
			}
			return withEnv(cmd, rootOpts, func(ctx context.Context, env *Env) error {
				move := env.Service.StockIn
				switch kind {
				case orders.MovementOut:
					move = env.Service.StockOut
				case orders.MovementAdjust:
					move = env.Service.StockAdjust
				}
				p, mv, err := move(ctx, rootOpts.actor(), args[0], qty, reason)
				if err != nil {
					return err
				}
				res := movementResult{ProductID: p.ID, Product: p.Name, Stock: p.Stock, Type: string(mv.Type), Quantity: mv.Quantity, Reason: mv.Reason}
				return emit(cmd.OutOrStdout(), rootOpts, res, func(w io.Writer) {
					line(w, "%s %s %d: %s now %d", res.Type, res.ProductID, res.Quantity, res.Product, res.Stock)
				})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the stock moved")
	return cmd
}

func newMovementsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		product     string
		kind        string
		page, limit int
	)
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "List stock movements, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, env *Env) error {
				p, err := env.Service.ListStockMovements(ctx, rootOpts.actor(), orders.MovementFilter{
					ProductID: product,
					Type:      orders.MovementType(kind),
				}, page, limit)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), rootOpts, p, func(w io.Writer) {
					for _, m := range p.Movements {
						line(w, "%s  %-6s %-36s %5d  %s  %s",
							m.CreatedAt.Format("2006-01-02 15:04:05"), m.Type, m.ProductID, m.Quantity, m.CreatedBy, m.Reason)
					}
					line(w, "page %d, %d of %d", p.Page, len(p.Movements), p.Total)
				})
			})
		},
	}
	cmd.Flags().StringVar(&product, "product", "", "only this product id")
	cmd.Flags().StringVar(&kind, "type", "", "only this movement type (in|out|adjust)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	return cmd
}
