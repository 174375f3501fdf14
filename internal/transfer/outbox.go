package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/store"
)

// Store names used by the outbox.
const (
	LogTransfers = "transfers"
	MapStatus    = "transfer_status"
	KeyCursor    = "transfer_cursor"
)

// IDGenerator produces transfer ids.
// Implemented by UUIDv7Generator (production) and testutil.SequenceIDs (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Scheduler records a deferred transfer inside the caller's store step.
type Scheduler interface {
	Schedule(ctx context.Context, tx store.Tx, t ir.Transfer) (ir.Transfer, error)
}

// Outbox is the Scheduler backed by the transfers log.
type Outbox struct {
	ids IDGenerator
}

// NewOutbox returns an Outbox. A nil generator means UUIDv7.
func NewOutbox(ids IDGenerator) *Outbox {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &Outbox{ids: ids}
}

// Schedule assigns the id and sequence number and appends the entry.
func (o *Outbox) Schedule(ctx context.Context, tx store.Tx, t ir.Transfer) (ir.Transfer, error) {
	if t.Recipient == "" {
		return ir.Transfer{}, fmt.Errorf("schedule %s transfer: empty recipient", t.Kind)
	}
	seq, err := tx.LogLen(ctx, LogTransfers)
	if err != nil {
		return ir.Transfer{}, fmt.Errorf("schedule %s transfer: %w", t.Kind, err)
	}
	t.ID = o.ids.Generate()
	t.Seq = seq

	data, err := json.Marshal(t)
	if err != nil {
		return ir.Transfer{}, fmt.Errorf("marshal transfer: %w", err)
	}
	if _, err := tx.LogAppend(ctx, LogTransfers, data); err != nil {
		return ir.Transfer{}, fmt.Errorf("append transfer: %w", err)
	}
	return t, nil
}

type status struct {
	State  ir.DeliveryState `json:"state"`
	Detail string           `json:"detail,omitempty"`
}

// Get returns the outbox entry at seq with its delivery state.
func Get(ctx context.Context, tx store.Tx, seq uint64) (ir.TransferRecord, bool, error) {
	data, ok, err := tx.LogGet(ctx, LogTransfers, seq)
	if err != nil || !ok {
		return ir.TransferRecord{}, false, err
	}
	var rec ir.TransferRecord
	if err := json.Unmarshal(data, &rec.Transfer); err != nil {
		return ir.TransferRecord{}, false, fmt.Errorf("decode transfer %d: %w", seq, err)
	}

	rec.State = ir.DeliveryQueued
	raw, ok, err := tx.MapGet(ctx, MapStatus, store.FormatIndex(seq))
	if err != nil {
		return ir.TransferRecord{}, false, fmt.Errorf("read status %d: %w", seq, err)
	}
	if ok {
		var st status
		if err := json.Unmarshal(raw, &st); err != nil {
			return ir.TransferRecord{}, false, fmt.Errorf("decode status %d: %w", seq, err)
		}
		rec.State = st.State
		rec.Detail = st.Detail
	}
	return rec, true, nil
}

// List returns up to limit entries starting at from. limit <= 0 means all.
func List(ctx context.Context, tx store.Tx, from uint64, limit int) ([]ir.TransferRecord, error) {
	n, err := tx.LogLen(ctx, LogTransfers)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	var out []ir.TransferRecord
	for seq := from; seq < n; seq++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		rec, ok, err := Get(ctx, tx, seq)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Cursor returns the sequence number of the next undelivered entry.
func Cursor(ctx context.Context, tx store.Tx) (uint64, error) {
	v, ok, err := store.GetString(ctx, tx, KeyCursor)
	if err != nil {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	if !ok {
		return 0, nil
	}
	cursor, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cursor %q: %w", v, err)
	}
	return cursor, nil
}

// claim takes seq for delivery by moving the cursor past it and marking it
// sending. It reports false, writing nothing, when the cursor no longer
// points at seq because another dispatcher took the entry first.
//
// An entry left sending by a crash between claim and settle is never sent.
func claim(ctx context.Context, tx store.Tx, seq uint64) (bool, error) {
	cursor, err := Cursor(ctx, tx)
	if err != nil {
		return false, err
	}
	if cursor != seq {
		return false, nil
	}
	if err := putStatus(ctx, tx, seq, status{State: ir.DeliverySending}); err != nil {
		return false, err
	}
	if err := store.PutString(ctx, tx, KeyCursor, store.FormatIndex(seq+1)); err != nil {
		return false, fmt.Errorf("advance cursor: %w", err)
	}
	return true, nil
}

// settle records the outcome of a claimed entry.
func settle(ctx context.Context, tx store.Tx, seq uint64, st status) error {
	return putStatus(ctx, tx, seq, st)
}

func putStatus(ctx context.Context, tx store.Tx, seq uint64, st status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := tx.MapPut(ctx, MapStatus, store.FormatIndex(seq), data); err != nil {
		return fmt.Errorf("write status %d: %w", seq, err)
	}
	return nil
}
