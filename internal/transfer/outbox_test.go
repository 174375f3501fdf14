package transfer

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/store"
	"github.com/roach88/tiplink/internal/testutil"
)

func schedule(t *testing.T, s store.Store, o *Outbox, tr ir.Transfer) ir.Transfer {
	t.Helper()
	ctx := context.Background()
	var out ir.Transfer
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		var err error
		out, err = o.Schedule(ctx, tx, tr)
		return err
	}))
	return out
}

func TestUUIDv7Generator(t *testing.T) {
	id := UUIDv7Generator{}.Generate()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestSchedule_AssignsIDAndSeq(t *testing.T) {
	s := store.NewMemory()
	o := NewOutbox(testutil.NewSequenceIDs(""))

	first := schedule(t, s, o, ir.Transfer{Kind: ir.TransferStake, Recipient: "oracle.near", Amount: ir.AmountFrom64(10), Origin: "alice.near"})
	second := schedule(t, s, o, ir.Transfer{Kind: ir.TransferTip, Recipient: "bob.near", Amount: ir.AmountFrom64(5), Origin: "carol.near"})

	assert.Equal(t, "transfer-0001", first.ID)
	assert.Equal(t, uint64(0), first.Seq)
	assert.Equal(t, "transfer-0002", second.ID)
	assert.Equal(t, uint64(1), second.Seq)

	ctx := context.Background()
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		recs, err := List(ctx, tx, 0, 0)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, first, recs[0].Transfer)
		assert.Equal(t, ir.DeliveryQueued, recs[0].State)

		page, err := List(ctx, tx, 1, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, second.ID, page[0].ID)
		return nil
	}))
}

func TestSchedule_RejectsEmptyRecipient(t *testing.T) {
	ctx := context.Background()
	err := store.NewMemory().Update(ctx, func(tx store.Tx) error {
		_, err := NewOutbox(nil).Schedule(ctx, tx, ir.Transfer{Kind: ir.TransferClaim})
		return err
	})
	assert.Error(t, err)
}

func TestSchedule_RolledBackWithStep(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	o := NewOutbox(testutil.NewSequenceIDs(""))

	err := s.Update(ctx, func(tx store.Tx) error {
		if _, err := o.Schedule(ctx, tx, ir.Transfer{Kind: ir.TransferTip, Recipient: "bob.near"}); err != nil {
			return err
		}
		return ir.ErrNothingToClaim
	})
	require.ErrorIs(t, err, ir.ErrNothingToClaim)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		recs, err := List(ctx, tx, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, recs)
		return nil
	}))
}

func TestCursor_DefaultsToZero(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, store.NewMemory().View(ctx, func(tx store.Tx) error {
		c, err := Cursor(ctx, tx)
		require.NoError(t, err)
		assert.Zero(t, c)
		return nil
	}))
}
