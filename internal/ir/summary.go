package ir

// Summary is the display-ready result of the single-event alert pipeline.
//
// ConversationID is empty for ephemeral messages so the host does not
// group them with other alerts.
type Summary struct {
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Category       string            `json:"category"`
	Sound          string            `json:"sound,omitempty"`
	ThreadID       string            `json:"thread_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	UserInfo       map[string]string `json:"user_info,omitempty"`
}

// IsInvalid reports whether the summary carries nothing to display.
func (s Summary) IsInvalid() bool {
	return s.Title == "" && s.Body == "" && s.Category == ""
}

// Canonical returns the summary as a plain map suitable for MarshalCanonical.
func (s Summary) Canonical() map[string]any {
	m := map[string]any{
		"title":    s.Title,
		"body":     s.Body,
		"category": s.Category,
	}
	if s.Sound != "" {
		m["sound"] = s.Sound
	}
	if s.ThreadID != "" {
		m["thread_id"] = s.ThreadID
	}
	if s.ConversationID != "" {
		m["conversation_id"] = s.ConversationID
	}
	if len(s.UserInfo) > 0 {
		info := make(map[string]any, len(s.UserInfo))
		for k, v := range s.UserInfo {
			info[k] = v
		}
		m["user_info"] = info
	}
	return m
}
