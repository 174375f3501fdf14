package testutil

import (
	"context"
	"sync"

	"github.com/roach88/tiplink/internal/ir"
)

// RecordingTransferer records every transfer it is handed.
// Recipients listed in Fail are refused with the mapped error.
//
// Thread-safety: all methods are safe for concurrent use.
type RecordingTransferer struct {
	mu        sync.Mutex
	transfers []ir.Transfer
	Fail      map[ir.InternalAccount]error
}

// NewRecordingTransferer returns an empty recorder.
func NewRecordingTransferer() *RecordingTransferer {
	return &RecordingTransferer{Fail: make(map[ir.InternalAccount]error)}
}

// Transfer records t, or returns the configured failure for its recipient.
func (r *RecordingTransferer) Transfer(_ context.Context, t ir.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.Fail[t.Recipient]; ok {
		return err
	}
	r.transfers = append(r.transfers, t)
	return nil
}

// Transfers returns a copy of the recorded transfers in delivery order.
func (r *RecordingTransferer) Transfers() []ir.Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Transfer, len(r.transfers))
	copy(out, r.transfers)
	return out
}

// Reset forgets recorded transfers.
func (r *RecordingTransferer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = nil
}
