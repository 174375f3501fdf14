package engine

import (
	"context"
	"time"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"

	"github.com/roach88/tiplink/internal/access"
	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/registry"
	"github.com/roach88/tiplink/internal/store"
	"github.com/roach88/tiplink/internal/tipping"
	"github.com/roach88/tiplink/internal/transfer"
	"github.com/roach88/tiplink/internal/verification"
)

// Operation names used in logs and metrics.
const (
	OpInitialize      = "initialize"
	OpSubmit          = "submit"
	OpApprove         = "approve"
	OpReject          = "reject"
	OpSendTip         = "send_tip"
	OpClaim           = "claim"
	OpSetOwner        = "set_owner"
	OpSetOracle       = "set_oracle"
	OpSetMinimumStake = "set_minimum_stake"
	OpUnlinkAll       = "unlink_all"
)

// Notifier is woken after every commit. Implemented by transfer.Dispatcher.
type Notifier interface {
	Notify()
}

// Observer receives operation outcomes. Implemented by metrics.Metrics.
type Observer interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	ObserveEscrow(amount ir.Amount)
}

type nopNotifier struct{}

func (nopNotifier) Notify() {}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error, time.Duration) {}
func (nopObserver) ObserveEscrow(ir.Amount)                        {}

// Engine serializes operations over a store.
//
// Thread-safety model:
//   - mutating methods: safe from any goroutine, admitted one at a time
//   - read methods: safe from any goroutine, never blocked by the lock
type Engine struct {
	mu       deadlock.Mutex
	store    store.Store
	clock    *Clock
	ids      transfer.IDGenerator
	notifier Notifier
	observer Observer
	logger   *zap.Logger

	access   access.Control
	registry registry.Registry
	workflow *verification.Workflow
	ledger   *tipping.Ledger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: no-op.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNotifier wakes n after every commit.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithObserver reports operation outcomes to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithIDGenerator sets the transfer id generator. Default: UUIDv7.
// Tests use a sequence generator for stable golden output.
func WithIDGenerator(g transfer.IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock shares c between engines, or lets a caller read step counts.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		clock:    NewClock(),
		ids:      transfer.UUIDv7Generator{},
		notifier: nopNotifier{},
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	outbox := transfer.NewOutbox(e.ids)
	e.workflow = verification.New(outbox)
	e.ledger = tipping.New(outbox)
	return e
}

// Steps returns how many mutations were admitted and how many committed.
func (e *Engine) Steps() (admitted, committed uint64) {
	return e.clock.Stats()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store {
	return e.store
}

// mutate runs fn as one exclusive store step.
func (e *Engine) mutate(ctx context.Context, op string, fields []zap.Field, fn func(tx store.Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	step := e.clock.admit()
	start := time.Now()
	err := e.store.Update(ctx, fn)
	e.observer.ObserveOperation(op, err, time.Since(start))
	code := ir.CodeOf(err)

	fields = append(fields, zap.String("op", op), zap.Uint64("step", step))
	switch {
	case code != "":
		e.logger.Info("operation rejected", append(fields, zap.String("code", string(code)), zap.Error(err))...)
		return err
	case err != nil:
		e.logger.Error("operation failed", append(fields, zap.Error(err))...)
		return err
	}

	e.clock.commit()
	e.logger.Debug("operation committed", fields...)
	e.notifier.Notify()
	return nil
}

func (e *Engine) view(ctx context.Context, fn func(tx store.Tx) error) error {
	return e.store.View(ctx, fn)
}

// Initialize writes the owner, oracle and minimum stake once.
func (e *Engine) Initialize(ctx context.Context, p access.Params) error {
	return e.mutate(ctx, OpInitialize, []zap.Field{
		zap.String("owner", string(p.Owner)),
		zap.String("oracle", string(p.Oracle)),
		zap.String("minimum_stake", p.MinimumStake.String()),
	}, func(tx store.Tx) error {
		return e.access.Initialize(ctx, tx, p)
	})
}

// Submit records a link or unlink request and forwards the stake.
func (e *Engine) Submit(ctx context.Context, call ir.Call, external ir.ExternalAccount, isUnlink bool, proofURL string) (verification.Submission, error) {
	var sub verification.Submission
	err := e.mutate(ctx, OpSubmit, []zap.Field{
		zap.String("caller", string(call.Caller)),
		zap.String("external", string(external)),
		zap.Bool("unlink", isUnlink),
	}, func(tx store.Tx) error {
		var err error
		sub, err = e.workflow.Submit(ctx, tx, call, external, isUnlink, proofURL)
		return err
	})
	return sub, err
}

// Approve applies a pending request. Oracle only.
func (e *Engine) Approve(ctx context.Context, caller ir.InternalAccount, id ir.RequestID) (ir.VerificationRequest, error) {
	var req ir.VerificationRequest
	err := e.mutate(ctx, OpApprove, []zap.Field{
		zap.String("caller", string(caller)),
		zap.Uint64("request", uint64(id)),
	}, func(tx store.Tx) error {
		var err error
		req, err = e.workflow.Approve(ctx, tx, caller, id)
		return err
	})
	return req, err
}

// Reject closes a pending request. Oracle only.
func (e *Engine) Reject(ctx context.Context, caller ir.InternalAccount, id ir.RequestID) (ir.VerificationRequest, error) {
	var req ir.VerificationRequest
	err := e.mutate(ctx, OpReject, []zap.Field{
		zap.String("caller", string(caller)),
		zap.Uint64("request", uint64(id)),
	}, func(tx store.Tx) error {
		var err error
		req, err = e.workflow.Reject(ctx, tx, caller, id)
		return err
	})
	return req, err
}

// SendTip credits the deposit to recipient and item.
func (e *Engine) SendTip(ctx context.Context, call ir.Call, recipient ir.ExternalAccount, item string) (tipping.Receipt, error) {
	var receipt tipping.Receipt
	err := e.mutate(ctx, OpSendTip, []zap.Field{
		zap.String("caller", string(call.Caller)),
		zap.String("recipient", string(recipient)),
		zap.String("item", item),
		zap.String("amount", call.Deposit.String()),
	}, func(tx store.Tx) error {
		var err error
		receipt, err = e.ledger.SendTip(ctx, tx, call, recipient, item)
		return err
	})
	if err == nil && receipt.Escrowed {
		e.observer.ObserveEscrow(receipt.Amount)
	}
	return receipt, err
}

// Claim pays out the caller's escrow balance.
func (e *Engine) Claim(ctx context.Context, caller ir.InternalAccount) (ir.Transfer, error) {
	var t ir.Transfer
	err := e.mutate(ctx, OpClaim, []zap.Field{
		zap.String("caller", string(caller)),
	}, func(tx store.Tx) error {
		var err error
		t, err = e.ledger.Claim(ctx, tx, caller)
		return err
	})
	return t, err
}

// SetOwner hands ownership to next. Owner only.
func (e *Engine) SetOwner(ctx context.Context, caller, next ir.InternalAccount) error {
	return e.mutate(ctx, OpSetOwner, []zap.Field{
		zap.String("caller", string(caller)),
		zap.String("owner", string(next)),
	}, func(tx store.Tx) error {
		return e.access.SetOwner(ctx, tx, caller, next)
	})
}

// SetOracle replaces the oracle. Owner only.
func (e *Engine) SetOracle(ctx context.Context, caller, next ir.InternalAccount) error {
	return e.mutate(ctx, OpSetOracle, []zap.Field{
		zap.String("caller", string(caller)),
		zap.String("oracle", string(next)),
	}, func(tx store.Tx) error {
		return e.access.SetOracle(ctx, tx, caller, next)
	})
}

// SetMinimumStake replaces the minimum stake. Owner only.
func (e *Engine) SetMinimumStake(ctx context.Context, caller ir.InternalAccount, stake ir.Amount) error {
	return e.mutate(ctx, OpSetMinimumStake, []zap.Field{
		zap.String("caller", string(caller)),
		zap.String("minimum_stake", stake.String()),
	}, func(tx store.Tx) error {
		return e.access.SetMinimumStake(ctx, tx, caller, stake)
	})
}

// UnlinkAll empties the registry. Owner only. Request state and escrow
// balances are left as they are.
func (e *Engine) UnlinkAll(ctx context.Context, caller ir.InternalAccount) error {
	return e.mutate(ctx, OpUnlinkAll, []zap.Field{
		zap.String("caller", string(caller)),
	}, func(tx store.Tx) error {
		if err := e.access.RequireOwner(ctx, tx, caller); err != nil {
			return err
		}
		return e.registry.ClearAll(ctx, tx)
	})
}

// ExternalAccount returns the handle linked to internal.
func (e *Engine) ExternalAccount(ctx context.Context, internal ir.InternalAccount) (ext ir.ExternalAccount, ok bool, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		ext, ok, err = e.registry.LookupExternal(ctx, tx, internal)
		return err
	})
	return ext, ok, err
}

// InternalAccount returns the account linked to external.
func (e *Engine) InternalAccount(ctx context.Context, external ir.ExternalAccount) (in ir.InternalAccount, ok bool, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		in, ok, err = e.registry.LookupInternal(ctx, tx, external)
		return err
	})
	return in, ok, err
}

// Links returns every registry pair.
func (e *Engine) Links(ctx context.Context) (links []registry.Link, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		links, err = e.registry.Links(ctx, tx)
		return err
	})
	return links, err
}

// ListPending returns pending request ids in ascending order.
func (e *Engine) ListPending(ctx context.Context) (ids []ir.RequestID, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		ids, err = e.workflow.ListPending(ctx, tx)
		return err
	})
	return ids, err
}

// GetRequest returns the request with the given id, if any.
func (e *Engine) GetRequest(ctx context.Context, id ir.RequestID) (req ir.VerificationRequest, ok bool, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		req, ok, err = e.workflow.GetRequest(ctx, tx, id)
		return err
	})
	return req, ok, err
}

// GetStatus derives the lifecycle state of a request.
func (e *Engine) GetStatus(ctx context.Context, id ir.RequestID) (st ir.RequestStatus, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		st, err = e.workflow.GetStatus(ctx, tx, id)
		return err
	})
	return st, err
}

// DescribeRequest returns a request with its state and audit digest.
func (e *Engine) DescribeRequest(ctx context.Context, id ir.RequestID) (rec verification.Record, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		rec, err = e.workflow.Describe(ctx, tx, id)
		return err
	})
	return rec, err
}

// ItemTotal is the lifetime total tipped to item.
func (e *Engine) ItemTotal(ctx context.Context, item string) (a ir.Amount, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		a, err = e.ledger.ItemTotal(ctx, tx, item)
		return err
	})
	return a, err
}

// AccountTotal is the lifetime total tipped to external.
func (e *Engine) AccountTotal(ctx context.Context, external ir.ExternalAccount) (a ir.Amount, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		a, err = e.ledger.AccountTotal(ctx, tx, external)
		return err
	})
	return a, err
}

// Available is the escrowed balance of external.
func (e *Engine) Available(ctx context.Context, external ir.ExternalAccount) (a ir.Amount, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		a, err = e.ledger.Available(ctx, tx, external)
		return err
	})
	return a, err
}

// Owner returns the owner account.
func (e *Engine) Owner(ctx context.Context) (a ir.InternalAccount, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		a, err = e.access.Owner(ctx, tx)
		return err
	})
	return a, err
}

// Oracle returns the oracle account.
func (e *Engine) Oracle(ctx context.Context) (a ir.InternalAccount, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		a, err = e.access.Oracle(ctx, tx)
		return err
	})
	return a, err
}

// MinimumStake returns the minimum stake.
func (e *Engine) MinimumStake(ctx context.Context) (a ir.Amount, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		a, err = e.access.MinimumStake(ctx, tx)
		return err
	})
	return a, err
}

// ListTransfers returns outbox entries with their delivery state.
func (e *Engine) ListTransfers(ctx context.Context, from uint64, limit int) (recs []ir.TransferRecord, err error) {
	err = e.view(ctx, func(tx store.Tx) error {
		recs, err = transfer.List(ctx, tx, from, limit)
		return err
	})
	return recs, err
}
