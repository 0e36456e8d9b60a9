package ir

import "encoding/json"

// Decrypted event bodies, by kind. Appliers and the alert transform decode
// UpdateEvent.Data into these.

// MessagePayload is the body of KindMessageAdd.
type MessagePayload struct {
	MessageID string `json:"message_id"`
	// Type is one of "text", "asset", "knock", "location".
	Type      string   `json:"type"`
	Text      string   `json:"text,omitempty"`
	Ephemeral bool     `json:"ephemeral,omitempty"`
	Mentions  []string `json:"mentions,omitempty"`
}

// ConversationPayload is the body of conversation create and rename events.
type ConversationPayload struct {
	Name    string   `json:"name,omitempty"`
	Type    string   `json:"type,omitempty"`
	Members []string `json:"members,omitempty"`
}

// MemberPayload is the body of member join and leave events.
type MemberPayload struct {
	UserIDs []string `json:"user_ids"`
}

// ConnectionPayload is the body of KindConnection.
type ConnectionPayload struct {
	To             string `json:"to"`
	Status         string `json:"status"`
	ConversationID string `json:"conversation,omitempty"`
}

// UserPayload is the body of KindUserUpdate.
type UserPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Handle   string `json:"handle,omitempty"`
	AccentID int    `json:"accent_id,omitempty"`
}

// PropertyPayload is the body of property set and delete events.
type PropertyPayload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ClientPayload is the body of client add and remove events.
type ClientPayload struct {
	ClientID string `json:"client_id"`
	Label    string `json:"label,omitempty"`
	Class    string `json:"class,omitempty"`
}

// PushTokenPayload is the body of KindPushRemove.
type PushTokenPayload struct {
	Token string `json:"token"`
}
