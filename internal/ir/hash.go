package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainRequest  = "tiplink/request/v1"
	DomainTransfer = "tiplink/transfer/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestDigest computes the audit digest of a request at a log position.
// The digest is stable across restarts and store backends.
func RequestDigest(id RequestID, req VerificationRequest) (string, error) {
	obj := map[string]any{
		"id":               uint64(id),
		"internal_account": req.InternalAccount,
		"external_account": req.ExternalAccount,
		"is_unlink":        req.IsUnlink,
		"proof_url":        req.ProofURL,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RequestDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// TransferDigest computes the digest a receiving platform can use to
// deduplicate deliveries of the same outbox entry.
func TransferDigest(t Transfer) (string, error) {
	obj := map[string]any{
		"id":        t.ID,
		"seq":       t.Seq,
		"kind":      string(t.Kind),
		"recipient": t.Recipient,
		"amount":    t.Amount,
		"origin":    t.Origin,
		"reference": t.Reference,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TransferDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTransfer, canonical), nil
}

// MustRequestDigest is like RequestDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRequestDigest(id RequestID, req VerificationRequest) string {
	d, err := RequestDigest(id, req)
	if err != nil {
		panic(err)
	}
	return d
}
