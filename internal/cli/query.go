package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tiplink/internal/ir"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status <request-id>",
		Short:         "Show the status of a request",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return rootOpts.formatter(cmd).Fail("status failed", err)
			}
			return execute(cmd, rootOpts, false, func(ctx context.Context, rt *runtime) (result, error) {
				st, err := rt.engine.GetStatus(ctx, id)
				if err != nil {
					return result{}, err
				}
				return result{data: map[string]any{"id": id, "status": st}, text: st.String()}, nil
			})
		},
	}
}

// NewRequestCommand creates the request command.
func NewRequestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "request <request-id>",
		Short:         "Show a request with its status and digest",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return rootOpts.formatter(cmd).Fail("request failed", err)
			}
			return execute(cmd, rootOpts, false, func(ctx context.Context, rt *runtime) (result, error) {
				rec, err := rt.engine.DescribeRequest(ctx, id)
				if err != nil {
					return result{}, err
				}
				var b strings.Builder
				fmt.Fprintf(&b, "request %d [%s]\n", rec.ID, rec.Status)
				fmt.Fprintf(&b, "  internal: %s\n", rec.Request.InternalAccount)
				fmt.Fprintf(&b, "  external: %s\n", rec.Request.ExternalAccount)
				fmt.Fprintf(&b, "  unlink:   %t\n", rec.Request.IsUnlink)
				fmt.Fprintf(&b, "  proof:    %s\n", rec.Request.ProofURL)
				fmt.Fprintf(&b, "  digest:   %s", rec.Digest)
				return result{data: rec, text: b.String()}, nil
			})
		},
	}
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "pending",
		Short:         "List pending request ids in ascending order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, false, func(ctx context.Context, rt *runtime) (result, error) {
				ids, err := rt.engine.ListPending(ctx)
				if err != nil {
					return result{}, err
				}
				if ids == nil {
					ids = []ir.RequestID{}
				}
				parts := make([]string, len(ids))
				for i, id := range ids {
					parts[i] = fmt.Sprint(id)
				}
				text := "no pending requests"
				if len(parts) > 0 {
					text = strings.Join(parts, "\n")
				}
				return result{data: ids, text: text}, nil
			})
		},
	}
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	var internal, external string

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Resolve a link in either direction, or list all links",
		Long: `Resolve the linked counterpart of --internal or --external. Without
either flag, list every link.

Examples:
  tiplink lookup --internal alice.near
  tiplink lookup --external twitter/alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if internal != "" && external != "" {
				return rootOpts.formatter(cmd).Fail("lookup failed", errors.New("--internal and --external are mutually exclusive"))
			}
			return execute(cmd, rootOpts, false, func(ctx context.Context, rt *runtime) (result, error) {
				switch {
				case internal != "":
					ext, ok, err := rt.engine.ExternalAccount(ctx, ir.InternalAccount(internal))
					if err != nil {
						return result{}, err
					}
					return lookupResult(internal, string(ext), ok), nil
				case external != "":
					in, ok, err := rt.engine.InternalAccount(ctx, ir.ExternalAccount(external))
					if err != nil {
						return result{}, err
					}
					return lookupResult(external, string(in), ok), nil
				}
				links, err := rt.engine.Links(ctx)
				if err != nil {
					return result{}, err
				}
				lines := make([]string, len(links))
				for i, l := range links {
					lines[i] = fmt.Sprintf("%s <-> %s", l.Internal, l.External)
				}
				text := "no links"
				if len(lines) > 0 {
					text = strings.Join(lines, "\n")
				}
				return result{data: links, text: text}, nil
			})
		},
	}

	cmd.Flags().StringVar(&internal, "internal", "", "internal account to resolve")
	cmd.Flags().StringVar(&external, "external", "", "external account to resolve")
	return cmd
}

func lookupResult(from, to string, ok bool) result {
	if !ok {
		return result{data: map[string]any{"account": from, "linked": false}, text: from + " is not linked"}
	}
	return result{data: map[string]any{"account": from, "linked": true, "counterpart": to}, text: to}
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	var item, external string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show tip totals for an item or an external account",
		Long: `Show the lifetime tip total for --item, or the lifetime total and the
claimable escrow for --external.

Examples:
  tiplink balance --item https://x.com/alice/status/2
  tiplink balance --external twitter/alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (item == "") == (external == "") {
				return rootOpts.formatter(cmd).Fail("balance failed", errors.New("exactly one of --item or --external is required"))
			}
			return execute(cmd, rootOpts, false, func(ctx context.Context, rt *runtime) (result, error) {
				if item != "" {
					total, err := rt.engine.ItemTotal(ctx, item)
					if err != nil {
						return result{}, err
					}
					return result{data: map[string]any{"item": item, "total": total}, text: total.String()}, nil
				}
				ext := ir.ExternalAccount(external)
				total, err := rt.engine.AccountTotal(ctx, ext)
				if err != nil {
					return result{}, err
				}
				available, err := rt.engine.Available(ctx, ext)
				if err != nil {
					return result{}, err
				}
				return result{
					data: map[string]any{"external": ext, "total": total, "available": available},
					text: fmt.Sprintf("total %s, available %s", total, available),
				}, nil
			})
		},
	}

	cmd.Flags().StringVar(&item, "item", "", "item identifier")
	cmd.Flags().StringVar(&external, "external", "", "external account")
	return cmd
}

// NewTransfersCommand creates the transfers command.
func NewTransfersCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		from  uint64
		limit int
	)

	cmd := &cobra.Command{
		Use:           "transfers",
		Short:         "List outbox entries with their delivery state",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, false, func(ctx context.Context, rt *runtime) (result, error) {
				recs, err := rt.engine.ListTransfers(ctx, from, limit)
				if err != nil {
					return result{}, err
				}
				if recs == nil {
					recs = []ir.TransferRecord{}
				}
				lines := make([]string, len(recs))
				for i, r := range recs {
					lines[i] = fmt.Sprintf("%d %s %-6s %s -> %s [%s]", r.Seq, r.ID, r.Kind, r.Amount, r.Recipient, r.State)
					if r.Detail != "" {
						lines[i] += " " + r.Detail
					}
				}
				text := "no transfers"
				if len(lines) > 0 {
					text = strings.Join(lines, "\n")
				}
				return result{data: recs, text: text}, nil
			})
		},
	}

	cmd.Flags().Uint64Var(&from, "from", 0, "first outbox sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to list")
	return cmd
}
