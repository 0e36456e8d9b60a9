package ir

import (
	"encoding/json"
	"fmt"
)

// wireNotification is one event as sent by the notification endpoint.
//
// Plaintext payloads are inline JSON. Encrypted payloads are a JSON string
// holding base64 ciphertext.
type wireNotification struct {
	ID           EventID         `json:"id"`
	Type         Kind            `json:"type"`
	Conversation string          `json:"conversation,omitempty"`
	From         string          `json:"from,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Encrypted    bool            `json:"encrypted,omitempty"`
	Transient    bool            `json:"transient,omitempty"`
}

type wirePage struct {
	HasMore       bool               `json:"has_more"`
	Notifications []wireNotification `json:"notifications"`
}

// DecodePage parses a notification page response body.
func DecodePage(body []byte) (EventBatch, error) {
	var page wirePage
	if err := json.Unmarshal(body, &page); err != nil {
		return EventBatch{}, fmt.Errorf("decode page: %w", err)
	}
	batch := EventBatch{
		Events:  make([]UpdateEvent, 0, len(page.Notifications)),
		HasMore: page.HasMore,
	}
	for i, n := range page.Notifications {
		ev, err := n.event()
		if err != nil {
			return EventBatch{}, fmt.Errorf("decode page: notifications[%d]: %w", i, err)
		}
		batch.Events = append(batch.Events, ev)
	}
	return batch, nil
}

// DecodeNotification parses a single-notification response body.
func DecodeNotification(body []byte) (UpdateEvent, error) {
	var n wireNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return UpdateEvent{}, fmt.Errorf("decode notification: %w", err)
	}
	ev, err := n.event()
	if err != nil {
		return UpdateEvent{}, fmt.Errorf("decode notification: %w", err)
	}
	return ev, nil
}

func (n wireNotification) event() (UpdateEvent, error) {
	if n.ID.IsZero() {
		return UpdateEvent{}, fmt.Errorf("missing id")
	}
	if n.Type == "" {
		return UpdateEvent{}, fmt.Errorf("event %s: missing type", n.ID)
	}
	ev := UpdateEvent{
		ID:             n.ID,
		Kind:           n.Type,
		ConversationID: n.Conversation,
		SenderID:       n.From,
		Encrypted:      n.Encrypted,
		Transient:      n.Transient,
	}
	if n.Encrypted {
		var ciphertext []byte
		if err := json.Unmarshal(n.Payload, &ciphertext); err != nil {
			return UpdateEvent{}, fmt.Errorf("event %s: encrypted payload: %w", n.ID, err)
		}
		ev.Payload = ciphertext
		return ev, nil
	}
	ev.Payload = []byte(n.Payload)
	if ev.Payload == nil {
		ev.Payload = []byte{}
	}
	ev.Data = ev.Payload
	return ev, nil
}

func (e UpdateEvent) wire() (wireNotification, error) {
	n := wireNotification{
		ID:           e.ID,
		Type:         e.Kind,
		Conversation: e.ConversationID,
		From:         e.SenderID,
		Encrypted:    e.Encrypted,
		Transient:    e.Transient,
	}
	switch {
	case e.Encrypted:
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return wireNotification{}, err
		}
		n.Payload = raw
	case len(e.Payload) > 0:
		n.Payload = json.RawMessage(e.Payload)
	}
	return n, nil
}

// EncodePage renders batch in the notification page wire format.
func EncodePage(batch EventBatch) ([]byte, error) {
	page := wirePage{
		HasMore:       batch.HasMore,
		Notifications: make([]wireNotification, 0, len(batch.Events)),
	}
	for _, ev := range batch.Events {
		n, err := ev.wire()
		if err != nil {
			return nil, fmt.Errorf("encode page: event %s: %w", ev.ID, err)
		}
		page.Notifications = append(page.Notifications, n)
	}
	return json.Marshal(page)
}

// EncodeNotification renders ev in the single-notification wire format.
func EncodeNotification(ev UpdateEvent) ([]byte, error) {
	n, err := ev.wire()
	if err != nil {
		return nil, fmt.Errorf("encode notification: event %s: %w", ev.ID, err)
	}
	return json.Marshal(n)
}
