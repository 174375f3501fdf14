package transfer

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/store"
)

// DefaultBatch is how many outbox entries one Drain pass loads at a time.
const DefaultBatch = 64

// Observer receives delivery outcomes. Implemented by metrics.Metrics.
type Observer interface {
	ObserveTransfer(kind ir.TransferKind, state ir.DeliveryState)
}

type nopObserver struct{}

func (nopObserver) ObserveTransfer(ir.TransferKind, ir.DeliveryState) {}

// Dispatcher delivers outbox entries in sequence order, each at most once.
//
// Every entry is claimed in its own store step before it is handed to the
// transferer, so dispatchers in several processes may drain one SQLite
// outbox together.
//
// Thread-safety model:
//   - Notify(): safe from any goroutine
//   - Drain() and Run(): safe to run concurrently with other dispatchers
type Dispatcher struct {
	store      store.Store
	transferer Transferer
	limiter    *rate.Limiter
	batch      int
	logger     *zap.Logger
	observer   Observer
	signal     chan struct{} // buffered, size 1
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLimiter throttles deliveries.
func WithLimiter(l *rate.Limiter) Option {
	return func(d *Dispatcher) { d.limiter = l }
}

// WithBatch sets the page size for reading the outbox.
func WithBatch(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batch = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver reports delivery outcomes.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates a dispatcher over s. Without WithLimiter deliveries
// are not throttled.
func NewDispatcher(s store.Store, t Transferer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      s,
		transferer: t,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		batch:      DefaultBatch,
		logger:     zap.NewNop(),
		observer:   nopObserver{},
		signal:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify wakes Run. Multiple notifications coalesce.
func (d *Dispatcher) Notify() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Drain delivers every entry past the cursor and returns how many it
// handled. A failed delivery is recorded and does not stop the drain.
// Entries claimed by another dispatcher are skipped.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	handled := 0
	for {
		var pending []ir.TransferRecord
		err := d.store.View(ctx, func(tx store.Tx) error {
			cursor, err := Cursor(ctx, tx)
			if err != nil {
				return err
			}
			pending, err = List(ctx, tx, cursor, d.batch)
			return err
		})
		if err != nil {
			return handled, fmt.Errorf("load outbox: %w", err)
		}
		if len(pending) == 0 {
			return handled, nil
		}

		for _, rec := range pending {
			if err := d.limiter.Wait(ctx); err != nil {
				return handled, err
			}
			claimed, err := d.claim(ctx, rec.Seq)
			if err != nil {
				return handled, err
			}
			if !claimed {
				// The cursor moved under us; reload from it.
				break
			}
			if err := d.deliver(ctx, rec.Transfer); err != nil {
				return handled, err
			}
			handled++
		}
	}
}

func (d *Dispatcher) claim(ctx context.Context, seq uint64) (bool, error) {
	var claimed bool
	err := d.store.Update(ctx, func(tx store.Tx) error {
		var err error
		claimed, err = claim(ctx, tx, seq)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("claim transfer %d: %w", seq, err)
	}
	return claimed, nil
}

func (d *Dispatcher) deliver(ctx context.Context, t ir.Transfer) error {
	st := status{State: ir.DeliveryDelivered}
	if err := d.transferer.Transfer(ctx, t); err != nil {
		st = status{State: ir.DeliveryFailed, Detail: err.Error()}
		d.logger.Warn("transfer failed",
			zap.String("id", t.ID),
			zap.Uint64("seq", t.Seq),
			zap.String("kind", string(t.Kind)),
			zap.String("recipient", string(t.Recipient)),
			zap.String("amount", t.Amount.String()),
			zap.Error(err),
		)
	}

	// The entry is claimed, so its outcome is recorded even on shutdown.
	sctx := context.WithoutCancel(ctx)
	err := d.store.Update(sctx, func(tx store.Tx) error {
		return settle(sctx, tx, t.Seq, st)
	})
	if err != nil {
		return fmt.Errorf("record delivery of %d: %w", t.Seq, err)
	}
	d.observer.ObserveTransfer(t.Kind, st.State)
	return ctx.Err()
}

// Run drains the outbox whenever Notify is called, until ctx is done.
// Drain errors are logged and the loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting")
	d.Notify()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return ctx.Err()
		case <-d.signal:
			n, err := d.Drain(ctx)
			if err != nil && ctx.Err() == nil {
				d.logger.Error("drain failed", zap.Int("delivered", n), zap.Error(err))
			} else if n > 0 {
				d.logger.Debug("drained outbox", zap.Int("transfers", n))
			}
		}
	}
}

// Every schedules Notify on a standard five-field cron spec.
// The caller stops the returned scheduler.
func (d *Dispatcher) Every(spec string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, d.Notify); err != nil {
		return nil, fmt.Errorf("invalid dispatch schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
