package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainChange prefixes journal change IDs.
// The version suffix allows a later algorithm change without collisions.
const DomainChange = "pushsync/change/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ChangeID computes the identity of one journaled row change.
// Re-applying the same event yields the same ID, which keeps the journal
// idempotent under redelivery.
func ChangeID(eventID EventID, table, key, op string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"event_id": eventID,
		"table":    table,
		"key":      key,
		"op":       op,
	})
	if err != nil {
		return "", fmt.Errorf("ChangeID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainChange, canonical), nil
}

// MustChangeID is like ChangeID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustChangeID(eventID EventID, table, key, op string) string {
	id, err := ChangeID(eventID, table, key, op)
	if err != nil {
		panic(err)
	}
	return id
}
