package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tiplink/internal/access"
	"github.com/roach88/tiplink/internal/genesis"
	"github.com/roach88/tiplink/internal/ir"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Genesis string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Bootstrap roles from a genesis file",
		Long: `Write the owner, oracle and minimum stake from a CUE genesis file.
Fails with ALREADY_INITIALIZED if the store was bootstrapped before.

Example genesis.cue:
  owner:         "owner.near"
  oracle:        "oracle.near"
  minimum_stake: "1000"

Example:
  tiplink init --genesis genesis.cue --db ./tiplink.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.Genesis
			if path == "" {
				path = opts.Config.Genesis
			}
			if path == "" {
				return opts.formatter(cmd).Fail("init failed", errors.New("--genesis is required"))
			}
			params, err := genesis.Load(path)
			if err != nil {
				return opts.formatter(cmd).Fail("invalid genesis", err)
			}
			return execute(cmd, opts.RootOptions, true, func(ctx context.Context, rt *runtime) (result, error) {
				if err := rt.engine.Initialize(ctx, params); err != nil {
					return result{}, err
				}
				return result{
					data: initView(params),
					text: fmt.Sprintf("initialized: owner=%s oracle=%s minimum_stake=%s", params.Owner, params.Oracle, params.MinimumStake),
				}, nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Genesis, "genesis", "", "path to the CUE genesis file (defaults to config genesis)")
	return cmd
}

func initView(p access.Params) map[string]any {
	return map[string]any{"owner": p.Owner, "oracle": p.Oracle, "minimum_stake": p.MinimumStake}
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags    callFlags
		proofURL string
		unlink   bool
	)

	cmd := &cobra.Command{
		Use:   "submit <external-account>",
		Short: "Ask the oracle to link or unlink an external account",
		Long: `Record a verification request for the caller and forward the deposit
to the oracle as stake. The deposit must be at least the minimum stake and
the caller must be the signer.

Example:
  tiplink submit twitter/alice --caller alice.near --deposit 1000 --proof https://x.com/alice/status/1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			call, err := flags.call()
			if err != nil {
				return rootOpts.formatter(cmd).Fail("submit failed", err)
			}
			return execute(cmd, rootOpts, true, func(ctx context.Context, rt *runtime) (result, error) {
				sub, err := rt.engine.Submit(ctx, call, ir.ExternalAccount(args[0]), unlink, proofURL)
				if err != nil {
					return result{}, err
				}
				return result{
					data: sub,
					text: fmt.Sprintf("request %d submitted (stake %s forwarded to %s)", sub.ID, sub.Stake.Amount, sub.Stake.Recipient),
				}, nil
			})
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVar(&proofURL, "proof", "", "URL of the ownership proof")
	cmd.Flags().BoolVar(&unlink, "unlink", false, "request removal of an existing link")
	return cmd
}

// NewApproveCommand creates the approve command.
func NewApproveCommand(rootOpts *RootOptions) *cobra.Command {
	return newDecisionCommand(rootOpts, "approve", "Approve a pending request (oracle only)",
		func(ctx context.Context, rt *runtime, caller ir.InternalAccount, id ir.RequestID) (ir.VerificationRequest, error) {
			return rt.engine.Approve(ctx, caller, id)
		})
}

// NewRejectCommand creates the reject command.
func NewRejectCommand(rootOpts *RootOptions) *cobra.Command {
	return newDecisionCommand(rootOpts, "reject", "Reject a pending request (oracle only)",
		func(ctx context.Context, rt *runtime, caller ir.InternalAccount, id ir.RequestID) (ir.VerificationRequest, error) {
			return rt.engine.Reject(ctx, caller, id)
		})
}

type decideFunc func(ctx context.Context, rt *runtime, caller ir.InternalAccount, id ir.RequestID) (ir.VerificationRequest, error)

func newDecisionCommand(rootOpts *RootOptions, name, short string, decide decideFunc) *cobra.Command {
	var flags callFlags

	cmd := &cobra.Command{
		Use:           name + " <request-id>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return rootOpts.formatter(cmd).Fail(name+" failed", err)
			}
			return execute(cmd, rootOpts, true, func(ctx context.Context, rt *runtime) (result, error) {
				req, err := decide(ctx, rt, ir.InternalAccount(flags.caller), id)
				if err != nil {
					return result{}, err
				}
				st, err := rt.engine.GetStatus(ctx, id)
				if err != nil {
					return result{}, err
				}
				return result{
					data: map[string]any{"id": id, "status": st, "request": req},
					text: fmt.Sprintf("request %d %s: %s %s %s", id, st, req.InternalAccount, linkArrow(req.IsUnlink), req.ExternalAccount),
				}, nil
			})
		},
	}

	flags.register(cmd, false)
	return cmd
}

func linkArrow(unlink bool) string {
	if unlink {
		return "-/-"
	}
	return "<->"
}

// NewTipCommand creates the tip command.
func NewTipCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags callFlags
		item  string
	)

	cmd := &cobra.Command{
		Use:   "tip <external-account>",
		Short: "Tip an external account for an item",
		Long: `Send the deposit to the internal account linked to the handle, or hold
it in escrow until the handle is linked and claimed.

Example:
  tiplink tip twitter/alice --caller bob.near --deposit 500 --item https://x.com/alice/status/2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			call, err := flags.call()
			if err != nil {
				return rootOpts.formatter(cmd).Fail("tip failed", err)
			}
			return execute(cmd, rootOpts, true, func(ctx context.Context, rt *runtime) (result, error) {
				receipt, err := rt.engine.SendTip(ctx, call, ir.ExternalAccount(args[0]), item)
				if err != nil {
					return result{}, err
				}
				text := fmt.Sprintf("tip of %s to %s held in escrow", receipt.Amount, receipt.Recipient)
				if receipt.Transfer != nil {
					text = fmt.Sprintf("tip of %s to %s sent to %s", receipt.Amount, receipt.Recipient, receipt.Transfer.Recipient)
				}
				return result{data: receipt, text: text}, nil
			})
		},
	}

	flags.register(cmd, true)
	cmd.Flags().StringVar(&item, "item", "", "identifier of the tipped content")
	return cmd
}

// NewClaimCommand creates the claim command.
func NewClaimCommand(rootOpts *RootOptions) *cobra.Command {
	var flags callFlags

	cmd := &cobra.Command{
		Use:           "claim",
		Short:         "Pay out the escrow held for the caller's linked handle",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, true, func(ctx context.Context, rt *runtime) (result, error) {
				t, err := rt.engine.Claim(ctx, ir.InternalAccount(flags.caller))
				if err != nil {
					return result{}, err
				}
				return result{data: t, text: fmt.Sprintf("claimed %s to %s", t.Amount, t.Recipient)}, nil
			})
		},
	}

	flags.register(cmd, false)
	return cmd
}
