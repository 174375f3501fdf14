// Package tipping records value sent to external handles. A tip for a
// linked handle is forwarded to the linked account; a tip for an unlinked
// handle is escrowed until the handle's owner links and claims it.
package tipping

import (
	"context"
	"fmt"

	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/registry"
	"github.com/roach88/tiplink/internal/store"
	"github.com/roach88/tiplink/internal/transfer"
)

// Accumulator maps. Values are base-10 amounts; missing keys read as zero.
const (
	MapItemTotals    = "item_totals"
	MapAccountTotals = "account_totals"
	MapAvailable     = "available"
)

// Ledger is stateless; every method works on the given Tx.
type Ledger struct {
	Registry  registry.Registry
	Transfers transfer.Scheduler
}

// New returns a Ledger that schedules payouts through s.
func New(s transfer.Scheduler) *Ledger {
	return &Ledger{Transfers: s}
}

// Receipt describes where a tip went.
type Receipt struct {
	Recipient ir.ExternalAccount `json:"recipient"`
	Item      string             `json:"item"`
	Amount    ir.Amount          `json:"amount"`
	// Escrowed is true when the handle was unlinked.
	Escrowed bool `json:"escrowed"`
	// Transfer is set when the tip was forwarded live.
	Transfer *ir.Transfer `json:"transfer,omitempty"`
}

func read(ctx context.Context, tx store.Tx, m, key string) (ir.Amount, error) {
	v, ok, err := store.MapGetString(ctx, tx, m, key)
	if err != nil {
		return ir.Amount{}, fmt.Errorf("read %s[%q]: %w", m, key, err)
	}
	if !ok {
		return ir.ZeroAmount, nil
	}
	amount, err := ir.ParseAmount(v)
	if err != nil {
		return ir.Amount{}, fmt.Errorf("corrupt %s[%q]: %w", m, key, err)
	}
	return amount, nil
}

func write(ctx context.Context, tx store.Tx, m, key string, amount ir.Amount) error {
	return store.MapPutString(ctx, tx, m, key, amount.String())
}

func add(ctx context.Context, tx store.Tx, m, key string, amount ir.Amount) (ir.Amount, error) {
	current, err := read(ctx, tx, m, key)
	if err != nil {
		return ir.Amount{}, err
	}
	return current.Add(amount)
}

// SendTip credits the deposit to item and recipient.
//
// All sums are computed before anything is written, so an AMOUNT_OVERFLOW
// leaves no partial effect even on backends without rollback.
func (l *Ledger) SendTip(ctx context.Context, tx store.Tx, call ir.Call, recipient ir.ExternalAccount, item string) (Receipt, error) {
	linked, isLinked, err := l.Registry.LookupInternal(ctx, tx, recipient)
	if err != nil {
		return Receipt{}, err
	}

	itemTotal, err := add(ctx, tx, MapItemTotals, item, call.Deposit)
	if err != nil {
		return Receipt{}, err
	}
	accountTotal, err := add(ctx, tx, MapAccountTotals, string(recipient), call.Deposit)
	if err != nil {
		return Receipt{}, err
	}
	var available ir.Amount
	if !isLinked {
		available, err = add(ctx, tx, MapAvailable, string(recipient), call.Deposit)
		if err != nil {
			return Receipt{}, err
		}
	}

	receipt := Receipt{Recipient: recipient, Item: item, Amount: call.Deposit, Escrowed: !isLinked}
	if isLinked {
		t, err := l.Transfers.Schedule(ctx, tx, ir.Transfer{
			Kind:      ir.TransferTip,
			Recipient: linked,
			Amount:    call.Deposit,
			Origin:    call.Caller,
			Reference: "item/" + item,
		})
		if err != nil {
			return Receipt{}, err
		}
		receipt.Transfer = &t
	} else if err := write(ctx, tx, MapAvailable, string(recipient), available); err != nil {
		return Receipt{}, err
	}

	if err := write(ctx, tx, MapItemTotals, item, itemTotal); err != nil {
		return Receipt{}, err
	}
	if err := write(ctx, tx, MapAccountTotals, string(recipient), accountTotal); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Claim pays the caller's whole escrow balance and resets it to zero.
func (l *Ledger) Claim(ctx context.Context, tx store.Tx, caller ir.InternalAccount) (ir.Transfer, error) {
	external, ok, err := l.Registry.LookupExternal(ctx, tx, caller)
	if err != nil {
		return ir.Transfer{}, err
	}
	if !ok {
		return ir.Transfer{}, ir.ErrNoLinkedAccount.With("caller", string(caller))
	}
	balance, err := read(ctx, tx, MapAvailable, string(external))
	if err != nil {
		return ir.Transfer{}, err
	}
	if balance.IsZero() {
		return ir.Transfer{}, ir.ErrNothingToClaim.With("external", string(external))
	}

	t, err := l.Transfers.Schedule(ctx, tx, ir.Transfer{
		Kind:      ir.TransferClaim,
		Recipient: caller,
		Amount:    balance,
		Origin:    caller,
		Reference: "escrow/" + string(external),
	})
	if err != nil {
		return ir.Transfer{}, err
	}
	if err := write(ctx, tx, MapAvailable, string(external), ir.ZeroAmount); err != nil {
		return ir.Transfer{}, err
	}
	return t, nil
}

// ItemTotal is the lifetime total tipped to item.
func (l *Ledger) ItemTotal(ctx context.Context, tx store.Tx, item string) (ir.Amount, error) {
	return read(ctx, tx, MapItemTotals, item)
}

// AccountTotal is the lifetime total tipped to external.
func (l *Ledger) AccountTotal(ctx context.Context, tx store.Tx, external ir.ExternalAccount) (ir.Amount, error) {
	return read(ctx, tx, MapAccountTotals, string(external))
}

// Available is the escrowed balance of external.
func (l *Ledger) Available(ctx context.Context, tx store.Tx, external ir.ExternalAccount) (ir.Amount, error) {
	return read(ctx, tx, MapAvailable, string(external))
}
