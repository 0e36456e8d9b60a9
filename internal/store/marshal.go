package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/pushsync/internal/ir"
)

// decodeBody parses the event's plaintext body into v.
func decodeBody(ev ir.UpdateEvent, v any) error {
	if !ev.Decrypted() {
		return fmt.Errorf("event %s: body not decrypted", ev.ID)
	}
	if err := json.Unmarshal(ev.Data, v); err != nil {
		return fmt.Errorf("event %s: decode %s body: %w", ev.ID, ev.Kind, err)
	}
	return nil
}

// compactJSON converts a raw property value to compact JSON TEXT for
// storage, so equal values are stored byte-identically.
// An absent value is stored as JSON null.
func compactJSON(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("compact property value: %w", err)
	}
	return buf.String(), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
