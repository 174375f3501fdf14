// Package verification runs the stake-gated link and unlink request
// lifecycle. Requests live in an append-only log; their state is carried by
// the pending and approved sets.
package verification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/tiplink/internal/access"
	"github.com/roach88/tiplink/internal/ir"
	"github.com/roach88/tiplink/internal/registry"
	"github.com/roach88/tiplink/internal/store"
	"github.com/roach88/tiplink/internal/transfer"
)

// Store names used by the workflow.
const (
	LogRequests = "requests"
	SetPending  = "pending"
	SetApproved = "approved"
)

// Workflow is stateless; every method works on the given Tx.
type Workflow struct {
	Access    access.Control
	Registry  registry.Registry
	Transfers transfer.Scheduler
}

// New returns a Workflow that schedules stake transfers through s.
func New(s transfer.Scheduler) *Workflow {
	return &Workflow{Transfers: s}
}

// Submission is the result of a successful Submit.
type Submission struct {
	ID    ir.RequestID `json:"id"`
	Stake ir.Transfer  `json:"stake"`
}

// Submit records a new request from the caller and forwards the whole
// deposit to the oracle.
//
// Fails with CROSS_CALL_NOT_ALLOWED for proxied calls and
// INSUFFICIENT_STAKE when the deposit is below the minimum.
func (w *Workflow) Submit(ctx context.Context, tx store.Tx, call ir.Call, external ir.ExternalAccount, isUnlink bool, proofURL string) (Submission, error) {
	if call.Proxied() {
		return Submission{}, ir.ErrCrossCallNotAllowed.With("signer", string(call.Signer))
	}
	minimum, err := w.Access.MinimumStake(ctx, tx)
	if err != nil {
		return Submission{}, err
	}
	if call.Deposit.Cmp(minimum) < 0 {
		return Submission{}, ir.Errorf(ir.CodeInsufficientStake,
			"deposit %s is below the minimum stake %s", call.Deposit, minimum).
			With("minimum", minimum.String())
	}
	oracle, err := w.Access.Oracle(ctx, tx)
	if err != nil {
		return Submission{}, err
	}

	req := ir.VerificationRequest{
		InternalAccount: call.Caller,
		ExternalAccount: external,
		IsUnlink:        isUnlink,
		ProofURL:        proofURL,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return Submission{}, fmt.Errorf("marshal request: %w", err)
	}
	idx, err := tx.LogAppend(ctx, LogRequests, data)
	if err != nil {
		return Submission{}, fmt.Errorf("append request: %w", err)
	}
	if err := tx.SetAdd(ctx, SetPending, idx); err != nil {
		return Submission{}, fmt.Errorf("mark request %d pending: %w", idx, err)
	}

	stake, err := w.Transfers.Schedule(ctx, tx, ir.Transfer{
		Kind:      ir.TransferStake,
		Recipient: oracle,
		Amount:    call.Deposit,
		Origin:    call.Caller,
		Reference: "request/" + store.FormatIndex(idx),
	})
	if err != nil {
		return Submission{}, err
	}
	return Submission{ID: ir.RequestID(idx), Stake: stake}, nil
}

// pendingRequest loads id and checks it awaits a decision.
func (w *Workflow) pendingRequest(ctx context.Context, tx store.Tx, id ir.RequestID) (ir.VerificationRequest, error) {
	req, ok, err := w.GetRequest(ctx, tx, id)
	if err != nil {
		return ir.VerificationRequest{}, err
	}
	if !ok {
		return ir.VerificationRequest{}, ir.Errorf(ir.CodeRequestNotFound, "request %d not found", id)
	}
	pending, err := tx.SetContains(ctx, SetPending, uint64(id))
	if err != nil {
		return ir.VerificationRequest{}, fmt.Errorf("read pending: %w", err)
	}
	if !pending {
		return ir.VerificationRequest{}, ir.Errorf(ir.CodeRequestAlreadyProcessed, "request %d already processed", id)
	}
	return req, nil
}

// settle moves id out of pending and, when approved, into approved.
// It is the only function that changes request state.
func settle(ctx context.Context, tx store.Tx, id ir.RequestID, approved bool) error {
	if err := tx.SetRemove(ctx, SetPending, uint64(id)); err != nil {
		return fmt.Errorf("settle request %d: %w", id, err)
	}
	if !approved {
		return nil
	}
	if err := tx.SetAdd(ctx, SetApproved, uint64(id)); err != nil {
		return fmt.Errorf("settle request %d: %w", id, err)
	}
	return nil
}

// Approve applies the request to the registry. Oracle only.
func (w *Workflow) Approve(ctx context.Context, tx store.Tx, caller ir.InternalAccount, id ir.RequestID) (ir.VerificationRequest, error) {
	if err := w.Access.RequireOracle(ctx, tx, caller); err != nil {
		return ir.VerificationRequest{}, err
	}
	req, err := w.pendingRequest(ctx, tx, id)
	if err != nil {
		return ir.VerificationRequest{}, err
	}
	if req.IsUnlink {
		err = w.Registry.Unlink(ctx, tx, req.InternalAccount, req.ExternalAccount)
	} else {
		err = w.Registry.Link(ctx, tx, req.InternalAccount, req.ExternalAccount)
	}
	if err != nil {
		return ir.VerificationRequest{}, err
	}
	return req, settle(ctx, tx, id, true)
}

// Reject closes the request without touching the registry. Oracle only.
func (w *Workflow) Reject(ctx context.Context, tx store.Tx, caller ir.InternalAccount, id ir.RequestID) (ir.VerificationRequest, error) {
	if err := w.Access.RequireOracle(ctx, tx, caller); err != nil {
		return ir.VerificationRequest{}, err
	}
	req, err := w.pendingRequest(ctx, tx, id)
	if err != nil {
		return ir.VerificationRequest{}, err
	}
	return req, settle(ctx, tx, id, false)
}

// ListPending returns pending ids in ascending order.
func (w *Workflow) ListPending(ctx context.Context, tx store.Tx) ([]ir.RequestID, error) {
	members, err := tx.SetMembers(ctx, SetPending)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	ids := make([]ir.RequestID, len(members))
	for i, m := range members {
		ids[i] = ir.RequestID(m)
	}
	return ids, nil
}

// GetRequest returns the logged request with the given id.
func (w *Workflow) GetRequest(ctx context.Context, tx store.Tx, id ir.RequestID) (ir.VerificationRequest, bool, error) {
	data, ok, err := tx.LogGet(ctx, LogRequests, uint64(id))
	if err != nil {
		return ir.VerificationRequest{}, false, fmt.Errorf("read request %d: %w", id, err)
	}
	if !ok {
		return ir.VerificationRequest{}, false, nil
	}
	var req ir.VerificationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return ir.VerificationRequest{}, false, fmt.Errorf("decode request %d: %w", id, err)
	}
	return req, true, nil
}

// GetStatus derives the lifecycle state of id.
func (w *Workflow) GetStatus(ctx context.Context, tx store.Tx, id ir.RequestID) (ir.RequestStatus, error) {
	n, err := tx.LogLen(ctx, LogRequests)
	if err != nil {
		return ir.StatusNotFound, fmt.Errorf("read request log: %w", err)
	}
	if uint64(id) >= n {
		return ir.StatusNotFound, nil
	}
	pending, err := tx.SetContains(ctx, SetPending, uint64(id))
	if err != nil {
		return ir.StatusNotFound, fmt.Errorf("read pending: %w", err)
	}
	approved, err := tx.SetContains(ctx, SetApproved, uint64(id))
	if err != nil {
		return ir.StatusNotFound, fmt.Errorf("read approved: %w", err)
	}
	return DeriveStatus(true, pending, approved), nil
}

// Record is a request with its derived state and audit digest.
type Record struct {
	ID      ir.RequestID           `json:"id"`
	Request ir.VerificationRequest `json:"request"`
	Status  ir.RequestStatus       `json:"status"`
	Digest  string                 `json:"digest"`
}

// Describe returns the full record for id, or REQUEST_NOT_FOUND.
func (w *Workflow) Describe(ctx context.Context, tx store.Tx, id ir.RequestID) (Record, error) {
	req, ok, err := w.GetRequest(ctx, tx, id)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ir.Errorf(ir.CodeRequestNotFound, "request %d not found", id)
	}
	status, err := w.GetStatus(ctx, tx, id)
	if err != nil {
		return Record{}, err
	}
	digest, err := ir.RequestDigest(id, req)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: id, Request: req, Status: status, Digest: digest}, nil
}
