// Package access resolves the owner and oracle roles and the minimum stake
// from the store and guards privileged operations.
package access

import (
	"context"
	"fmt"

	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/store"
)

// Scalar keys holding the roles and parameters.
const (
	KeyOwner        = "owner"
	KeyOracle       = "oracle"
	KeyMinimumStake = "min_stake"
)

// Params are the bootstrap values written once by Initialize.
type Params struct {
	Owner        ir.InternalAccount
	Oracle       ir.InternalAccount
	MinimumStake ir.Amount
}

// Control reads and writes role state. It holds no state of its own.
type Control struct{}

// Initialize writes the roles and minimum stake.
// Fails with ALREADY_INITIALIZED if an owner is already stored.
func (Control) Initialize(ctx context.Context, tx store.Tx, p Params) error {
	if p.Owner == "" || p.Oracle == "" {
		return ir.Errorf(ir.CodeInvalidArgument, "owner and oracle are required")
	}
	_, ok, err := tx.Get(ctx, KeyOwner)
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	if ok {
		return ir.ErrAlreadyInitialized
	}
	if err := store.PutString(ctx, tx, KeyOwner, string(p.Owner)); err != nil {
		return err
	}
	if err := store.PutString(ctx, tx, KeyOracle, string(p.Oracle)); err != nil {
		return err
	}
	return store.PutString(ctx, tx, KeyMinimumStake, p.MinimumStake.String())
}

func (Control) role(ctx context.Context, tx store.Tx, key string) (ir.InternalAccount, error) {
	v, ok, err := store.GetString(ctx, tx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return "", ir.ErrNotInitialized
	}
	return ir.InternalAccount(v), nil
}

// Owner returns the stored owner account.
func (c Control) Owner(ctx context.Context, tx store.Tx) (ir.InternalAccount, error) {
	return c.role(ctx, tx, KeyOwner)
}

// Oracle returns the stored oracle account.
func (c Control) Oracle(ctx context.Context, tx store.Tx) (ir.InternalAccount, error) {
	return c.role(ctx, tx, KeyOracle)
}

// MinimumStake returns the stored minimum stake.
func (Control) MinimumStake(ctx context.Context, tx store.Tx) (ir.Amount, error) {
	v, ok, err := store.GetString(ctx, tx, KeyMinimumStake)
	if err != nil {
		return ir.Amount{}, fmt.Errorf("read %s: %w", KeyMinimumStake, err)
	}
	if !ok {
		return ir.Amount{}, ir.ErrNotInitialized
	}
	amount, err := ir.ParseAmount(v)
	if err != nil {
		return ir.Amount{}, fmt.Errorf("corrupt %s %q: %w", KeyMinimumStake, v, err)
	}
	return amount, nil
}

// require fails with UNAUTHORIZED unless caller equals the stored role.
// An unset role authorizes nobody.
func (c Control) require(ctx context.Context, tx store.Tx, key string, caller ir.InternalAccount) error {
	want, err := c.role(ctx, tx, key)
	if ir.CodeOf(err) == ir.CodeNotInitialized {
		return ir.ErrUnauthorized.With("role", key)
	}
	if err != nil {
		return err
	}
	if caller != want {
		return ir.Errorf(ir.CodeUnauthorized, "%s is not the %s", caller, key).With("role", key)
	}
	return nil
}

// RequireOracle fails with UNAUTHORIZED unless caller is the oracle.
func (c Control) RequireOracle(ctx context.Context, tx store.Tx, caller ir.InternalAccount) error {
	return c.require(ctx, tx, KeyOracle, caller)
}

// RequireOwner fails with UNAUTHORIZED unless caller is the owner.
func (c Control) RequireOwner(ctx context.Context, tx store.Tx, caller ir.InternalAccount) error {
	return c.require(ctx, tx, KeyOwner, caller)
}

// SetOwner hands ownership to next.
func (c Control) SetOwner(ctx context.Context, tx store.Tx, caller, next ir.InternalAccount) error {
	if err := c.RequireOwner(ctx, tx, caller); err != nil {
		return err
	}
	if next == "" {
		return ir.Errorf(ir.CodeInvalidArgument, "owner must not be empty")
	}
	return store.PutString(ctx, tx, KeyOwner, string(next))
}

// SetOracle replaces the oracle account.
func (c Control) SetOracle(ctx context.Context, tx store.Tx, caller, next ir.InternalAccount) error {
	if err := c.RequireOwner(ctx, tx, caller); err != nil {
		return err
	}
	if next == "" {
		return ir.Errorf(ir.CodeInvalidArgument, "oracle must not be empty")
	}
	return store.PutString(ctx, tx, KeyOracle, string(next))
}

// SetMinimumStake replaces the minimum stake.
func (c Control) SetMinimumStake(ctx context.Context, tx store.Tx, caller ir.InternalAccount, stake ir.Amount) error {
	if err := c.RequireOwner(ctx, tx, caller); err != nil {
		return err
	}
	return store.PutString(ctx, tx, KeyMinimumStake, stake.String())
}
