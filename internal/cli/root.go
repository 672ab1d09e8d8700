// Package cli implements fulfillctl, the operator tool for seeding, stock
// corrections and counter checkpoints.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-pickup-fulfillment/internal/orders"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Actor  string
	Role   string
	Format string // "json" | "text"

	open Opener
}

var ValidFormats = []string{"text", "json"}

// Env is what a command runs against.
type Env struct {
	Store   orders.Store
	Service *fulfillment.Service
	Close   func()
}

// Opener builds an Env. The default opens Postgres from the environment.
type Opener func(ctx context.Context) (*Env, error)

func (o *RootOptions) actor() orders.Actor {
	return orders.Actor{ID: o.Actor, Role: orders.Role(o.Role)}
}

// NewRootCommand creates the fulfillctl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(OpenFromEnv)
}

func newRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "fulfillctl",
		Short: "Operate the pickup fulfillment store",
		Long:  "Seed the catalog, correct stock and run the pickup counter checkpoints from a terminal.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "fulfillctl", "staff id recorded on movements and transitions")
	cmd.PersistentFlags().StringVar(&opts.Role, "role", string(orders.RoleAdmin), "staff role (admin|preparateur|caissier)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewStockCommand(opts))
	cmd.AddCommand(NewPickupCommand(opts))
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withEnv opens the environment for the duration of fn.
func withEnv(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, env *Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := opts.open(ctx)
	if err != nil {
		return err
	}
	if env.Close != nil {
		defer env.Close()
	}
	return fn(ctx, env)
}
