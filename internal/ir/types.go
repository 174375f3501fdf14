package ir

import "fmt"

// InternalAccount identifies an account on the value-transfer network.
type InternalAccount string

// ExternalAccount is a platform-qualified handle such as "twitter/alice".
type ExternalAccount string

// RequestID is the position of a VerificationRequest in the request log.
type RequestID uint64

// VerificationRequest asks the oracle to link or unlink an external account.
// Records are immutable once appended to the request log.
type VerificationRequest struct {
	InternalAccount InternalAccount `json:"internal_account"`
	ExternalAccount ExternalAccount `json:"external_account"`
	IsUnlink        bool            `json:"is_unlink"`
	ProofURL        string          `json:"proof_url"`
}

// RequestStatus is the lifecycle state of a request, derived from log
// presence and pending/approved set membership.
type RequestStatus int

const (
	// StatusNotFound means the id is beyond the end of the request log.
	StatusNotFound RequestStatus = iota

	// StatusPending means the request awaits an oracle decision.
	StatusPending

	// StatusApproved is terminal: the oracle approved and the registry changed.
	StatusApproved

	// StatusRejected is terminal: the request left pending without approval.
	StatusRejected
)

var statusNames = map[RequestStatus]string{
	StatusNotFound: "NotFound",
	StatusPending:  "Pending",
	StatusApproved: "Approved",
	StatusRejected: "Rejected",
}

// String returns the status name used in CLI output and scenarios.
func (s RequestStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RequestStatus(%d)", int(s))
}

// MarshalText encodes the status by name.
func (s RequestStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *RequestStatus) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown request status %q", text)
}

// Terminal reports whether no further transition is permitted.
func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Call is the ambient context of an externally invoked operation.
type Call struct {
	// Caller is the account that invoked this operation directly.
	Caller InternalAccount `json:"caller"`

	// Signer is the account that initiated the top-level transaction.
	Signer InternalAccount `json:"signer"`

	// Deposit is the value attached to the call.
	Deposit Amount `json:"deposit"`
}

// Proxied reports whether the call arrived through an intermediate account.
func (c Call) Proxied() bool {
	return c.Caller != c.Signer
}

// TransferKind names the operation that scheduled an outbound transfer.
type TransferKind string

const (
	// TransferStake forwards a submission stake to the oracle.
	TransferStake TransferKind = "stake"

	// TransferTip routes a tip to the linked internal account.
	TransferTip TransferKind = "tip"

	// TransferClaim pays out an escrow balance.
	TransferClaim TransferKind = "claim"
)

// Transfer is a deferred outbound value movement recorded in the outbox.
// Seq is its position in the outbox log.
type Transfer struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Kind      TransferKind    `json:"kind"`
	Recipient InternalAccount `json:"recipient"`
	Amount    Amount          `json:"amount"`
	Origin    InternalAccount `json:"origin"`
	Reference string          `json:"reference,omitempty"`
}

// DeliveryState is the dispatcher's view of a transfer.
// The core never reads it.
type DeliveryState string

const (
	DeliveryQueued    DeliveryState = "queued"
	DeliverySending   DeliveryState = "sending"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryFailed    DeliveryState = "failed"
)

// TransferRecord pairs an outbox entry with its delivery outcome.
type TransferRecord struct {
	Transfer
	State  DeliveryState `json:"state"`
	Detail string        `json:"detail,omitempty"`
}
