package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/pushsync/internal/ir"
)

// Notification categories understood by the host.
const (
	CategoryConversation = "conversation"
	CategoryMention      = "conversation_mention"
	CategoryConnect      = "connect"
)

// Notification sounds.
const (
	SoundMessage = "new_message"
	SoundPing    = "ping"
)

// maxBodyRunes bounds the body length shown in an alert.
const maxBodyRunes = 256

const unknownSender = "Someone"

// Lookup resolves display names from the local store. An unknown ID yields
// an empty name and no error.
type Lookup interface {
	ConversationName(ctx context.Context, id string) (string, error)
	UserName(ctx context.Context, id string) (string, error)
}

type noLookup struct{}

func (noLookup) ConversationName(context.Context, string) (string, error) { return "", nil }
func (noLookup) UserName(context.Context, string) (string, error)         { return "", nil }

// Render turns a decrypted event into a display summary.
//
// Kinds with no alert presentation, and bodies that fail to decode, yield
// an empty summary. selfID is the account holder, used to recognise
// mentions and member additions that concern them.
func Render(ctx context.Context, ev ir.UpdateEvent, selfID string, lookup Lookup) ir.Summary {
	r := renderer{ctx: ctx, ev: ev, self: selfID, lookup: lookup}
	switch ev.Kind {
	case ir.KindMessageAdd:
		return r.message()
	case ir.KindConnection:
		return r.connection()
	case ir.KindConversationCreate:
		return r.conversationCreate()
	case ir.KindConversationMemberJoin:
		return r.memberJoin()
	default:
		return ir.Summary{}
	}
}

type renderer struct {
	ctx    context.Context
	ev     ir.UpdateEvent
	self   string
	lookup Lookup
}

func (r renderer) decode(v any) bool {
	if err := json.Unmarshal(r.ev.Data, v); err != nil {
		slog.Debug("alert body undecodable",
			"event_id", r.ev.ID.String(),
			"kind", string(r.ev.Kind),
			"error", err,
		)
		return false
	}
	return true
}

func (r renderer) senderName() string {
	name, err := r.lookup.UserName(r.ctx, r.ev.SenderID)
	if err != nil {
		slog.Debug("sender lookup failed", "sender_id", r.ev.SenderID, "error", err)
	}
	if name == "" {
		return unknownSender
	}
	return name
}

func (r renderer) conversationName() string {
	if r.ev.ConversationID == "" {
		return ""
	}
	name, err := r.lookup.ConversationName(r.ctx, r.ev.ConversationID)
	if err != nil {
		slog.Debug("conversation lookup failed", "conversation_id", r.ev.ConversationID, "error", err)
	}
	return name
}

func (r renderer) userInfo() map[string]string {
	info := map[string]string{"event_id": r.ev.ID.String()}
	if r.ev.SenderID != "" {
		info["sender_id"] = r.ev.SenderID
	}
	if r.ev.ConversationID != "" {
		info["conversation_id"] = r.ev.ConversationID
	}
	return info
}

func (r renderer) message() ir.Summary {
	var msg ir.MessagePayload
	if !r.decode(&msg) {
		return ir.Summary{}
	}

	if msg.Ephemeral {
		// Ephemeral content and grouping stay hidden.
		info := r.userInfo()
		delete(info, "conversation_id")
		return ir.Summary{
			Body:     "Sent a message",
			Category: CategoryConversation,
			Sound:    SoundMessage,
			UserInfo: info,
		}
	}

	sender := r.senderName()
	conv := r.conversationName()

	var content string
	sound := SoundMessage
	switch msg.Type {
	case "asset":
		content = "Shared a file"
	case "knock":
		content = "Pinged"
		sound = SoundPing
	case "location":
		content = "Shared a location"
	default:
		content = clip(msg.Text)
	}

	s := ir.Summary{
		Title:          sender,
		Body:           content,
		Category:       CategoryConversation,
		Sound:          sound,
		ThreadID:       r.ev.ConversationID,
		ConversationID: r.ev.ConversationID,
		UserInfo:       r.userInfo(),
	}
	if conv != "" {
		s.Title = conv
		s.Body = sender + ": " + content
	}
	if r.self != "" && slices.Contains(msg.Mentions, r.self) {
		s.Category = CategoryMention
	}
	if msg.MessageID != "" {
		s.UserInfo["message_id"] = msg.MessageID
	}
	return s
}

func (r renderer) connection() ir.Summary {
	var c ir.ConnectionPayload
	if !r.decode(&c) {
		return ir.Summary{}
	}
	s := ir.Summary{
		Title:    r.senderName(),
		Sound:    SoundMessage,
		UserInfo: r.userInfo(),
	}
	switch c.Status {
	case "pending":
		s.Body = "Wants to connect"
		s.Category = CategoryConnect
	case "accepted":
		s.Body = "Accepted your connection request"
		s.Category = CategoryConversation
		s.ConversationID = c.ConversationID
		s.ThreadID = c.ConversationID
		if c.ConversationID != "" {
			s.UserInfo["conversation_id"] = c.ConversationID
		}
	default:
		return ir.Summary{}
	}
	return s
}

func (r renderer) conversationCreate() ir.Summary {
	var c ir.ConversationPayload
	if !r.decode(&c) {
		return ir.Summary{}
	}
	title := clip(c.Name)
	if title == "" {
		title = r.conversationName()
	}
	return ir.Summary{
		Title:          title,
		Body:           r.senderName() + " added you to a conversation",
		Category:       CategoryConversation,
		Sound:          SoundMessage,
		ThreadID:       r.ev.ConversationID,
		ConversationID: r.ev.ConversationID,
		UserInfo:       r.userInfo(),
	}
}

func (r renderer) memberJoin() ir.Summary {
	var m ir.MemberPayload
	if !r.decode(&m) || r.self == "" || !slices.Contains(m.UserIDs, r.self) {
		return ir.Summary{}
	}
	return ir.Summary{
		Title:          r.conversationName(),
		Body:           r.senderName() + " added you",
		Category:       CategoryConversation,
		Sound:          SoundMessage,
		ThreadID:       r.ev.ConversationID,
		ConversationID: r.ev.ConversationID,
		UserInfo:       r.userInfo(),
	}
}

// clip normalizes s to NFC, trims it and caps it at maxBodyRunes.
func clip(s string) string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if utf8.RuneCountInString(s) <= maxBodyRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxBodyRunes-1]) + "…"
}
