package ir

// Kind tags an update event with the local applier that handles it.
// Values match the server's event type strings.
type Kind string

const (
	KindConversationCreate      Kind = "conversation.create"
	KindConversationRename      Kind = "conversation.rename"
	KindConversationDelete      Kind = "conversation.delete"
	KindConversationMemberJoin  Kind = "conversation.member-join"
	KindConversationMemberLeave Kind = "conversation.member-leave"
	KindMessageAdd              Kind = "conversation.otr-message-add"
	KindConnection              Kind = "user.connection"
	KindUserUpdate              Kind = "user.update"
	KindPropertiesSet           Kind = "user.properties-set"
	KindPropertiesDelete        Kind = "user.properties-delete"
	KindClientAdd               Kind = "user.client-add"
	KindClientRemove            Kind = "user.client-remove"
	KindPushRemove              Kind = "user.push-remove"
)

// UpdateEvent is one server-issued unit of account state change.
//
// Payload holds the event body as delivered. When Encrypted is set the
// payload is ciphertext and Data stays nil until a decrypter fills it in;
// plaintext events are passed through with Data == Payload.
type UpdateEvent struct {
	ID             EventID `json:"id"`
	Kind           Kind    `json:"kind"`
	ConversationID string  `json:"conversation_id,omitempty"`
	SenderID       string  `json:"sender_id,omitempty"`
	Payload        []byte  `json:"payload,omitempty"`
	Encrypted      bool    `json:"encrypted,omitempty"`
	Transient      bool    `json:"transient,omitempty"`
	Data           []byte  `json:"data,omitempty"`
}

// Decrypted reports whether the event body is available as plaintext.
func (e UpdateEvent) Decrypted() bool {
	return e.Data != nil
}

// WithData returns a copy of the event carrying the given plaintext body.
func (e UpdateEvent) WithData(data []byte) UpdateEvent {
	e.Data = data
	return e
}

// EventBatch is an ordered page of events from one fetch response.
type EventBatch struct {
	Events  []UpdateEvent `json:"events"`
	HasMore bool          `json:"has_more"`
}

// Len returns the number of events in the batch.
func (b EventBatch) Len() int {
	return len(b.Events)
}

// Last returns the last event of the batch, or false for an empty batch.
func (b EventBatch) Last() (UpdateEvent, bool) {
	if len(b.Events) == 0 {
		return UpdateEvent{}, false
	}
	return b.Events[len(b.Events)-1], true
}

// FailureStage identifies the pipeline step where an event failed.
type FailureStage string

const (
	StageDecrypt FailureStage = "decrypt"
	StageApply   FailureStage = "apply"
	StageCommit  FailureStage = "commit"
	StageRecycle FailureStage = "recycle"
)

// EventFailure records an event that did not take full effect locally.
type EventFailure struct {
	EventID EventID      `json:"event_id"`
	Kind    Kind         `json:"kind"`
	Stage   FailureStage `json:"stage"`
	Err     error        `json:"-"`
}
