package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tiplink/internal/ir"
)

// NewAdminCommand groups the owner-only operations.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Owner-only role and parameter changes",
	}
	cmd.AddCommand(newSetRoleCommand(rootOpts, "set-owner", "Transfer ownership",
		func(ctx context.Context, rt *runtime, caller, next ir.InternalAccount) error {
			return rt.engine.SetOwner(ctx, caller, next)
		}))
	cmd.AddCommand(newSetRoleCommand(rootOpts, "set-oracle", "Replace the oracle",
		func(ctx context.Context, rt *runtime, caller, next ir.InternalAccount) error {
			return rt.engine.SetOracle(ctx, caller, next)
		}))
	cmd.AddCommand(newSetMinStakeCommand(rootOpts))
	cmd.AddCommand(newUnlinkAllCommand(rootOpts))
	return cmd
}

type setRoleFunc func(ctx context.Context, rt *runtime, caller, next ir.InternalAccount) error

func newSetRoleCommand(rootOpts *RootOptions, name, short string, set setRoleFunc) *cobra.Command {
	var flags callFlags

	cmd := &cobra.Command{
		Use:           name + " <account>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			next := ir.InternalAccount(args[0])
			return execute(cmd, rootOpts, true, func(ctx context.Context, rt *runtime) (result, error) {
				if err := set(ctx, rt, ir.InternalAccount(flags.caller), next); err != nil {
					return result{}, err
				}
				return result{data: map[string]any{"account": next}, text: fmt.Sprintf("%s: %s", name, next)}, nil
			})
		},
	}

	flags.register(cmd, false)
	return cmd
}

func newSetMinStakeCommand(rootOpts *RootOptions) *cobra.Command {
	var flags callFlags

	cmd := &cobra.Command{
		Use:           "set-min-stake <amount>",
		Short:         "Change the minimum verification stake",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stake, err := ir.ParseAmount(args[0])
			if err != nil {
				return rootOpts.formatter(cmd).Fail("set-min-stake failed", err)
			}
			return execute(cmd, rootOpts, true, func(ctx context.Context, rt *runtime) (result, error) {
				if err := rt.engine.SetMinimumStake(ctx, ir.InternalAccount(flags.caller), stake); err != nil {
					return result{}, err
				}
				return result{data: map[string]any{"minimum_stake": stake}, text: "minimum stake: " + stake.String()}, nil
			})
		},
	}

	flags.register(cmd, false)
	return cmd
}

func newUnlinkAllCommand(rootOpts *RootOptions) *cobra.Command {
	var flags callFlags

	cmd := &cobra.Command{
		Use:           "unlink-all",
		Short:         "Remove every link from the registry",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, true, func(ctx context.Context, rt *runtime) (result, error) {
				if err := rt.engine.UnlinkAll(ctx, ir.InternalAccount(flags.caller)); err != nil {
					return result{}, err
				}
				return result{data: map[string]any{"unlinked": true}, text: "all links removed"}, nil
			})
		},
	}

	flags.register(cmd, false)
	return cmd
}
