package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/tiplink/internal/ir"
)

// result is what a command prints: data for JSON, text otherwise.
type result struct {
	data any
	text string
}

type action func(ctx context.Context, rt *runtime) (result, error)

// execute opens the runtime, runs fn and prints its result. Mutating
// commands drain the outbox before printing so one-shot runs deliver what
// they scheduled.
func execute(cmd *cobra.Command, opts *RootOptions, mutating bool, fn action) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := openRuntime(ctx, opts)
	if err != nil {
		return f.Fail("open runtime", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			f.VerboseLog("close store: %v", closeErr)
		}
	}()

	res, err := fn(ctx, rt)
	if err != nil {
		return f.Fail(cmd.Name()+" failed", err)
	}

	if mutating {
		n, err := rt.settle(ctx)
		if err != nil {
			// The operation is committed; the entries stay on the outbox
			// for the next dispatch.
			rt.logger.Warn("dispatch after commit failed", zap.Error(err))
		}
		f.VerboseLog("delivered %d transfer(s)", n)
	}
	return f.Success(res.data, res.text)
}

// callFlags are the ambient call context of a mutating command.
type callFlags struct {
	caller  string
	signer  string
	deposit string
}

func (c *callFlags) register(cmd *cobra.Command, withDeposit bool) {
	cmd.Flags().StringVar(&c.caller, "caller", "", "account invoking the operation (required)")
	_ = cmd.MarkFlagRequired("caller")
	if withDeposit {
		cmd.Flags().StringVar(&c.signer, "signer", "", "transaction signer (defaults to --caller)")
		cmd.Flags().StringVar(&c.deposit, "deposit", "0", "attached value in base units")
	}
}

func (c *callFlags) call() (ir.Call, error) {
	deposit, err := ir.ParseAmount(c.deposit)
	if err != nil {
		return ir.Call{}, err
	}
	signer := c.signer
	if signer == "" {
		signer = c.caller
	}
	return ir.Call{
		Caller:  ir.InternalAccount(c.caller),
		Signer:  ir.InternalAccount(signer),
		Deposit: deposit,
	}, nil
}

func parseRequestID(raw string) (ir.RequestID, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid request id %q", raw)
	}
	return ir.RequestID(n), nil
}
