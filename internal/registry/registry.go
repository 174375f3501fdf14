// Package registry keeps the bijection between internal accounts and
// external handles. Both directions are written inside the caller's store
// step, so a half-written link is never observable.
package registry

import (
	"context"
	"fmt"

	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/store"
)

// Map names in the store.
const (
	MapExternalByInternal = "external_by_internal"
	MapInternalByExternal = "internal_by_external"
)

// Registry is stateless; every method works on the given Tx.
type Registry struct{}

// LookupExternal returns the external account linked to internal.
func (Registry) LookupExternal(ctx context.Context, tx store.Tx, internal ir.InternalAccount) (ir.ExternalAccount, bool, error) {
	v, ok, err := store.MapGetString(ctx, tx, MapExternalByInternal, string(internal))
	if err != nil {
		return "", false, fmt.Errorf("lookup external for %s: %w", internal, err)
	}
	return ir.ExternalAccount(v), ok, nil
}

// LookupInternal returns the internal account linked to external.
func (Registry) LookupInternal(ctx context.Context, tx store.Tx, external ir.ExternalAccount) (ir.InternalAccount, bool, error) {
	v, ok, err := store.MapGetString(ctx, tx, MapInternalByExternal, string(external))
	if err != nil {
		return "", false, fmt.Errorf("lookup internal for %s: %w", external, err)
	}
	return ir.InternalAccount(v), ok, nil
}

// CanLink reports ALREADY_LINKED if either account already appears on
// either side of the registry, as a key or as a value.
//
// Account names form one namespace here: an internal account spelled like a
// linked external handle, or the reverse, is also refused. The last two
// lookups cover that case; with the bijection they are the value-side checks.
func (r Registry) CanLink(ctx context.Context, tx store.Tx, internal ir.InternalAccount, external ir.ExternalAccount) error {
	if _, ok, err := r.LookupExternal(ctx, tx, internal); err != nil {
		return err
	} else if ok {
		return ir.ErrAlreadyLinked.With("internal", string(internal))
	}
	if _, ok, err := r.LookupInternal(ctx, tx, external); err != nil {
		return err
	} else if ok {
		return ir.ErrAlreadyLinked.With("external", string(external))
	}
	if _, ok, err := r.LookupExternal(ctx, tx, ir.InternalAccount(external)); err != nil {
		return err
	} else if ok {
		return ir.ErrAlreadyLinked.With("external", string(external))
	}
	if _, ok, err := r.LookupInternal(ctx, tx, ir.ExternalAccount(internal)); err != nil {
		return err
	} else if ok {
		return ir.ErrAlreadyLinked.With("internal", string(internal))
	}
	return nil
}

// CanUnlink reports NOT_LINKED unless the exact pair is linked in both
// directions.
func (r Registry) CanUnlink(ctx context.Context, tx store.Tx, internal ir.InternalAccount, external ir.ExternalAccount) error {
	gotExternal, ok, err := r.LookupExternal(ctx, tx, internal)
	if err != nil {
		return err
	}
	if !ok || gotExternal != external {
		return ir.ErrNotLinked.With("internal", string(internal))
	}
	gotInternal, ok, err := r.LookupInternal(ctx, tx, external)
	if err != nil {
		return err
	}
	if !ok || gotInternal != internal {
		return ir.ErrNotLinked.With("external", string(external))
	}
	return nil
}

// Link inserts both directions of the pair.
func (r Registry) Link(ctx context.Context, tx store.Tx, internal ir.InternalAccount, external ir.ExternalAccount) error {
	if err := r.CanLink(ctx, tx, internal, external); err != nil {
		return err
	}
	if err := store.MapPutString(ctx, tx, MapExternalByInternal, string(internal), string(external)); err != nil {
		return err
	}
	return store.MapPutString(ctx, tx, MapInternalByExternal, string(external), string(internal))
}

// Unlink removes both directions of the pair.
func (r Registry) Unlink(ctx context.Context, tx store.Tx, internal ir.InternalAccount, external ir.ExternalAccount) error {
	if err := r.CanUnlink(ctx, tx, internal, external); err != nil {
		return err
	}
	if err := tx.MapDelete(ctx, MapExternalByInternal, string(internal)); err != nil {
		return err
	}
	return tx.MapDelete(ctx, MapInternalByExternal, string(external))
}

// ClearAll empties both directions.
func (Registry) ClearAll(ctx context.Context, tx store.Tx) error {
	if err := tx.MapClear(ctx, MapExternalByInternal); err != nil {
		return err
	}
	return tx.MapClear(ctx, MapInternalByExternal)
}

// Link is one registry pair.
type Link struct {
	Internal ir.InternalAccount `json:"internal"`
	External ir.ExternalAccount `json:"external"`
}

// Links returns every pair ordered by internal account.
func (Registry) Links(ctx context.Context, tx store.Tx) ([]Link, error) {
	var links []Link
	err := tx.MapRange(ctx, MapExternalByInternal, func(k string, v []byte) error {
		links = append(links, Link{Internal: ir.InternalAccount(k), External: ir.ExternalAccount(v)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}
