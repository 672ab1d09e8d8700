package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

type pickupResult struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	FinalCode   string `json:"finalCode,omitempty"`
}

func NewPickupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pickup",
		Short: "Run the pickup counter checkpoints",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <order-id> <temporary-code>",
		Short: "Check the temporary code and issue the final code (preparateur)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, env *Env) error {
				o, err := env.Service.ValidatePickupCode(ctx, rootOpts.actor(), args[0], args[1])
				if err != nil {
					return err
				}
				res := pickupResult{OrderID: o.ID, OrderNumber: o.OrderNumber, Status: string(o.Status), FinalCode: o.FinalPickupCode}
				return emit(cmd.OutOrStdout(), rootOpts, res, func(w io.Writer) {
					line(w, "%s %s, final code %s", res.OrderNumber, res.Status, res.FinalCode)
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <order-id> <final-code>",
		Short: "Check the final code and hand the order over (caissier)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd, rootOpts, func(ctx context.Context, env *Env) error {
				o, err := env.Service.VerifyFinalPickupCode(ctx, rootOpts.actor(), args[0], args[1])
				if err != nil {
					return err
				}
				res := pickupResult{OrderID: o.ID, OrderNumber: o.OrderNumber, Status: string(o.Status)}
				return emit(cmd.OutOrStdout(), rootOpts, res, func(w io.Writer) {
					line(w, "%s %s", res.OrderNumber, res.Status)
				})
			})
		},
	})
	return cmd
}
