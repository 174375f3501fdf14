package verification

import "github.com/roach88/tiplink/internal/ir"

// DeriveStatus maps log presence and set membership to a lifecycle state.
// The pending and approved sets are disjoint; a logged request in neither
// was rejected.
func DeriveStatus(inLog, pending, approved bool) ir.RequestStatus {
	switch {
	case !inLog:
		return ir.StatusNotFound
	case approved:
		return ir.StatusApproved
	case pending:
		return ir.StatusPending
	default:
		return ir.StatusRejected
	}
}
