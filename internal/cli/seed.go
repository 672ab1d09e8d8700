package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

type seedResult struct {
	Products int    `json:"products"`
	Slots    int    `json:"slots"`
	From     string `json:"from"`
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		days int
		from string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the demo catalog and pickup slots",
		Long: `Upsert the demo catalog and one morning and one afternoon pickup slot per day.

Existing products keep their stock; re-running is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			if from != "" {
				t, err := time.Parse(time.DateOnly, from)
				if err != nil {
					return err
				}
				start = t
			}
			return withEnv(cmd, rootOpts, func(ctx context.Context, env *Env) error {
				products, slots, err := orders.Seed(ctx, env.Store, start, days)
				if err != nil {
					return err
				}
				res := seedResult{Products: len(products), Slots: len(slots), From: start.Format(time.DateOnly)}
				return emit(cmd.OutOrStdout(), rootOpts, res, func(w io.Writer) {
					line(w, "seeded %d products and %d pickup slots from %s", res.Products, res.Slots, res.From)
				})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "number of days of pickup slots")
	cmd.Flags().StringVar(&from, "from", "", "first slot day (YYYY-MM-DD), default today")
	return cmd
}
