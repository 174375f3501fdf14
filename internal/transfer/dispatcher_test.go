package transfer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/store"
	"github.com/roach88/tiplink/internal/testutil"
)

type countingObserver struct {
	counts map[ir.DeliveryState]int
}

func (c *countingObserver) ObserveTransfer(_ ir.TransferKind, state ir.DeliveryState) {
	c.counts[state]++
}

func seedOutbox(t *testing.T, s store.Store, recipients ...ir.InternalAccount) {
	t.Helper()
	o := NewOutbox(testutil.NewSequenceIDs(""))
	for _, r := range recipients {
		schedule(t, s, o, ir.Transfer{Kind: ir.TransferTip, Recipient: r, Amount: ir.AmountFrom64(1), Origin: "carol.near"})
	}
}

func TestDrain_DeliversInOrderAndAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedOutbox(t, s, "a.near", "b.near", "c.near")
	rec := testutil.NewRecordingTransferer()
	d := NewDispatcher(s, rec, WithBatch(2))

	n, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var got []ir.InternalAccount
	for _, tr := range rec.Transfers() {
		got = append(got, tr.Recipient)
	}
	assert.Equal(t, []ir.InternalAccount{"a.near", "b.near", "c.near"}, got)

	// Nothing left on a second pass.
	n, err = d.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, rec.Transfers(), 3)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		c, err := Cursor(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), c)

		recs, err := List(ctx, tx, 0, 0)
		require.NoError(t, err)
		for _, r := range recs {
			assert.Equal(t, ir.DeliveryDelivered, r.State)
		}
		return nil
	}))
}

func TestDrain_FailureIsRecordedNotRetried(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedOutbox(t, s, "ghost.near", "bob.near")

	rec := testutil.NewRecordingTransferer()
	rec.Fail["ghost.near"] = errors.New("account does not exist")
	obs := &countingObserver{counts: map[ir.DeliveryState]int{}}
	core, logs := observer.New(zap.WarnLevel)
	d := NewDispatcher(s, rec, WithObserver(obs), WithLogger(zap.New(core)))

	n, err := d.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, obs.counts[ir.DeliveryFailed])
	assert.Equal(t, 1, obs.counts[ir.DeliveryDelivered])
	assert.Equal(t, 1, logs.FilterMessage("transfer failed").Len())

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		failed, ok, err := Get(ctx, tx, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ir.DeliveryFailed, failed.State)
		assert.Equal(t, "account does not exist", failed.Detail)
		return nil
	}))

	n, err = d.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed transfers are not retried")
}

func TestDrain_CanceledContext(t *testing.T) {
	s := store.NewMemory()
	seedOutbox(t, s, "a.near")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDispatcher(s, testutil.NewRecordingTransferer()).Drain(ctx)
	assert.Error(t, err)
}

func TestClaim_TakesEntryOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedOutbox(t, s, "a.near", "b.near")

	claimOnce := func(seq uint64) bool {
		var ok bool
		require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
			var err error
			ok, err = claim(ctx, tx, seq)
			return err
		}))
		return ok
	}
	assert.True(t, claimOnce(0))
	assert.False(t, claimOnce(0), "cursor already past 0")
	assert.False(t, claimOnce(2), "cursor is at 1")

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		rec, ok, err := Get(ctx, tx, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ir.DeliverySending, rec.State)
		c, err := Cursor(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), c)
		return nil
	}))
}

// Two processes draining one database hand every entry out exactly once.
func TestDrain_SharedOutboxDeliversOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tiplink.db")
	open := func() store.Store {
		s, err := store.Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}
	first, second := open(), open()

	recipients := make([]ir.InternalAccount, 30)
	for i := range recipients {
		recipients[i] = "a.near"
	}
	seedOutbox(t, first, recipients...)

	recorders := []*testutil.RecordingTransferer{testutil.NewRecordingTransferer(), testutil.NewRecordingTransferer()}
	dispatchers := []*Dispatcher{
		NewDispatcher(first, recorders[0], WithBatch(4)),
		NewDispatcher(second, recorders[1], WithBatch(4)),
	}

	var wg sync.WaitGroup
	handled := make([]int, len(dispatchers))
	for i, d := range dispatchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := d.Drain(ctx)
			assert.NoError(t, err)
			handled[i] = n
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, r := range recorders {
		for _, tr := range r.Transfers() {
			assert.False(t, seen[tr.ID], "transfer %s delivered twice", tr.ID)
			seen[tr.ID] = true
		}
	}
	assert.Len(t, seen, 30)
	assert.Equal(t, 30, handled[0]+handled[1])
}

// cancelingTransferer cancels the drain while a transfer is in flight.
type cancelingTransferer struct{ cancel context.CancelFunc }

func (c cancelingTransferer) Transfer(ctx context.Context, _ ir.Transfer) error {
	c.cancel()
	return ctx.Err()
}

func TestDrain_CanceledInFlightIsRecorded(t *testing.T) {
	s := store.NewMemory()
	seedOutbox(t, s, "a.near", "b.near")
	ctx, cancel := context.WithCancel(context.Background())

	n, err := NewDispatcher(s, cancelingTransferer{cancel: cancel}).Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)

	bg := context.Background()
	require.NoError(t, s.View(bg, func(tx store.Tx) error {
		first, _, err := Get(bg, tx, 0)
		require.NoError(t, err)
		assert.Equal(t, ir.DeliveryFailed, first.State)
		assert.Equal(t, context.Canceled.Error(), first.Detail)

		second, _, err := Get(bg, tx, 1)
		require.NoError(t, err)
		assert.Equal(t, ir.DeliveryQueued, second.State)
		return nil
	}))
}

func TestRun_DrainsOnNotify(t *testing.T) {
	s := store.NewMemory()
	rec := testutil.NewRecordingTransferer()
	d := NewDispatcher(s, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	seedOutbox(t, s, "a.near")
	d.Notify()

	assert.Eventually(t, func() bool { return len(rec.Transfers()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNotify_Coalesces(t *testing.T) {
	d := NewDispatcher(store.NewMemory(), testutil.NewRecordingTransferer())
	d.Notify()
	d.Notify()
	assert.Len(t, d.signal, 1)
}

func TestEvery_InvalidSpec(t *testing.T) {
	d := NewDispatcher(store.NewMemory(), testutil.NewRecordingTransferer())
	_, err := d.Every("not a schedule")
	assert.Error(t, err)

	c, err := d.Every("@every 1h")
	require.NoError(t, err)
	c.Stop()
}
