package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/pushsync/internal/ir"
)

// Change ops recorded in the journal.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Change is one row change made by an applier.
type Change struct {
	Table string
	Key   string
	Op    string
}

// Applier writes one family of event kinds to the local tables.
//
// Apply returns handled=false without touching tx when the event's kind is
// not its own. It must be idempotent under re-application.
type Applier interface {
	Name() string
	Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) (changes []Change, handled bool, err error)
}

// DefaultAppliers returns the appliers in the order every event is offered
// to them.
func DefaultAppliers() []Applier {
	return []Applier{
		messageApplier{},
		conversationApplier{},
		memberApplier{},
		connectionApplier{},
		userApplier{},
		propertyApplier{},
		clientApplier{},
		pushTokenApplier{},
	}
}

func requireConversation(ev ir.UpdateEvent) error {
	if ev.ConversationID == "" {
		return fmt.Errorf("event %s: %s without conversation", ev.ID, ev.Kind)
	}
	return nil
}

func exec(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}

type messageApplier struct{}

func (messageApplier) Name() string { return "message" }

func (messageApplier) Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) ([]Change, bool, error) {
	if ev.Kind != ir.KindMessageAdd {
		return nil, false, nil
	}
	if err := requireConversation(ev); err != nil {
		return nil, true, err
	}
	var msg ir.MessagePayload
	if err := decodeBody(ev, &msg); err != nil {
		return nil, true, err
	}
	id := msg.MessageID
	if id == "" {
		id = ev.ID.String()
	}
	// A message is immutable once stored.
	err := exec(ctx, tx, `
		INSERT INTO messages (id, conversation_id, sender_id, type, text, ephemeral, event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, ev.ConversationID, ev.SenderID, msg.Type, msg.Text, boolInt(msg.Ephemeral), ev.ID.String())
	if err != nil {
		return nil, true, fmt.Errorf("insert message: %w", err)
	}
	return []Change{{Table: "messages", Key: id, Op: OpUpsert}}, true, nil
}

type conversationApplier struct{}

func (conversationApplier) Name() string { return "conversation" }

func (conversationApplier) Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) ([]Change, bool, error) {
	switch ev.Kind {
	case ir.KindConversationCreate, ir.KindConversationRename, ir.KindConversationDelete:
		if err := requireConversation(ev); err != nil {
			return nil, true, err
		}
	default:
		return nil, false, nil
	}

	switch ev.Kind {
	case ir.KindConversationCreate:
		var c ir.ConversationPayload
		if err := decodeBody(ev, &c); err != nil {
			return nil, true, err
		}
		err := exec(ctx, tx, `
			INSERT INTO conversations (id, name, type, deleted, last_event_id)
			VALUES (?, ?, ?, 0, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				type = excluded.type,
				deleted = 0,
				last_event_id = excluded.last_event_id
		`, ev.ConversationID, c.Name, c.Type, ev.ID.String())
		if err != nil {
			return nil, true, fmt.Errorf("upsert conversation: %w", err)
		}
	case ir.KindConversationRename:
		var c ir.ConversationPayload
		if err := decodeBody(ev, &c); err != nil {
			return nil, true, err
		}
		err := exec(ctx, tx, `
			INSERT INTO conversations (id, name, last_event_id)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				last_event_id = excluded.last_event_id
		`, ev.ConversationID, c.Name, ev.ID.String())
		if err != nil {
			return nil, true, fmt.Errorf("rename conversation: %w", err)
		}
	case ir.KindConversationDelete:
		err := exec(ctx, tx, `
			INSERT INTO conversations (id, deleted, last_event_id)
			VALUES (?, 1, ?)
			ON CONFLICT(id) DO UPDATE SET
				deleted = 1,
				last_event_id = excluded.last_event_id
		`, ev.ConversationID, ev.ID.String())
		if err != nil {
			return nil, true, fmt.Errorf("delete conversation: %w", err)
		}
	}
	return []Change{{Table: "conversations", Key: ev.ConversationID, Op: OpUpsert}}, true, nil
}

// memberApplier maintains members for joins, leaves and the initial member
// list of a created conversation.
type memberApplier struct{}

func (memberApplier) Name() string { return "member" }

func (memberApplier) Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) ([]Change, bool, error) {
	var (
		users []string
		op    string
	)
	switch ev.Kind {
	case ir.KindConversationCreate:
		var c ir.ConversationPayload
		if err := decodeBody(ev, &c); err != nil {
			return nil, true, err
		}
		users, op = c.Members, OpUpsert
	case ir.KindConversationMemberJoin, ir.KindConversationMemberLeave:
		var m ir.MemberPayload
		if err := decodeBody(ev, &m); err != nil {
			return nil, true, err
		}
		users, op = m.UserIDs, OpUpsert
		if ev.Kind == ir.KindConversationMemberLeave {
			op = OpDelete
		}
	default:
		return nil, false, nil
	}
	if err := requireConversation(ev); err != nil {
		return nil, true, err
	}

	changes := make([]Change, 0, len(users))
	for _, user := range users {
		var err error
		if op == OpDelete {
			err = exec(ctx, tx, `DELETE FROM members WHERE conversation_id = ? AND user_id = ?`,
				ev.ConversationID, user)
		} else {
			err = exec(ctx, tx, `INSERT INTO members (conversation_id, user_id) VALUES (?, ?)
				ON CONFLICT DO NOTHING`, ev.ConversationID, user)
		}
		if err != nil {
			return nil, true, fmt.Errorf("%s member %s: %w", op, user, err)
		}
		changes = append(changes, Change{Table: "members", Key: ev.ConversationID + "/" + user, Op: op})
	}
	return changes, true, nil
}

type connectionApplier struct{}

func (connectionApplier) Name() string { return "connection" }

func (connectionApplier) Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) ([]Change, bool, error) {
	if ev.Kind != ir.KindConnection {
		return nil, false, nil
	}
	var c ir.ConnectionPayload
	if err := decodeBody(ev, &c); err != nil {
		return nil, true, err
	}
	if c.To == "" {
		return nil, true, fmt.Errorf("event %s: connection without peer", ev.ID)
	}
	err := exec(ctx, tx, `
		INSERT INTO connections (user_id, status, conversation_id)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			conversation_id = excluded.conversation_id
	`, c.To, c.Status, c.ConversationID)
	if err != nil {
		return nil, true, fmt.Errorf("upsert connection: %w", err)
	}
	return []Change{{Table: "connections", Key: c.To, Op: OpUpsert}}, true, nil
}

type userApplier struct{}

func (userApplier) Name() string { return "user" }

func (userApplier) Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) ([]Change, bool, error) {
	if ev.Kind != ir.KindUserUpdate {
		return nil, false, nil
	}
	var u ir.UserPayload
	if err := decodeBody(ev, &u); err != nil {
		return nil, true, err
	}
	if u.ID == "" {
		return nil, true, fmt.Errorf("event %s: user update without id", ev.ID)
	}
	// Absent fields keep their stored value.
	err := exec(ctx, tx, `
		INSERT INTO users (id, name, handle, accent_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
			handle = CASE WHEN excluded.handle != '' THEN excluded.handle ELSE users.handle END,
			accent_id = CASE WHEN excluded.accent_id != 0 THEN excluded.accent_id ELSE users.accent_id END
	`, u.ID, u.Name, u.Handle, u.AccentID)
	if err != nil {
		return nil, true, fmt.Errorf("upsert user: %w", err)
	}
	return []Change{{Table: "users", Key: u.ID, Op: OpUpsert}}, true, nil
}

type propertyApplier struct{}

func (propertyApplier) Name() string { return "property" }

func (propertyApplier) Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) ([]Change, bool, error) {
	if ev.Kind != ir.KindPropertiesSet && ev.Kind != ir.KindPropertiesDelete {
		return nil, false, nil
	}
	var p ir.PropertyPayload
	if err := decodeBody(ev, &p); err != nil {
		return nil, true, err
	}
	if p.Key == "" {
		return nil, true, fmt.Errorf("event %s: property without key", ev.ID)
	}

	if ev.Kind == ir.KindPropertiesDelete {
		if err := exec(ctx, tx, `DELETE FROM properties WHERE key = ?`, p.Key); err != nil {
			return nil, true, fmt.Errorf("delete property: %w", err)
		}
		return []Change{{Table: "properties", Key: p.Key, Op: OpDelete}}, true, nil
	}

	value, err := compactJSON(p.Value)
	if err != nil {
		return nil, true, err
	}
	err = exec(ctx, tx, `
		INSERT INTO properties (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, p.Key, value)
	if err != nil {
		return nil, true, fmt.Errorf("upsert property: %w", err)
	}
	return []Change{{Table: "properties", Key: p.Key, Op: OpUpsert}}, true, nil
}

type clientApplier struct{}

func (clientApplier) Name() string { return "client" }

func (clientApplier) Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) ([]Change, bool, error) {
	if ev.Kind != ir.KindClientAdd && ev.Kind != ir.KindClientRemove {
		return nil, false, nil
	}
	var c ir.ClientPayload
	if err := decodeBody(ev, &c); err != nil {
		return nil, true, err
	}
	if c.ClientID == "" {
		return nil, true, fmt.Errorf("event %s: client event without client id", ev.ID)
	}

	if ev.Kind == ir.KindClientRemove {
		if err := exec(ctx, tx, `DELETE FROM clients WHERE id = ?`, c.ClientID); err != nil {
			return nil, true, fmt.Errorf("delete client: %w", err)
		}
		return []Change{{Table: "clients", Key: c.ClientID, Op: OpDelete}}, true, nil
	}

	err := exec(ctx, tx, `
		INSERT INTO clients (id, label, class) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label = excluded.label, class = excluded.class
	`, c.ClientID, c.Label, c.Class)
	if err != nil {
		return nil, true, fmt.Errorf("upsert client: %w", err)
	}
	return []Change{{Table: "clients", Key: c.ClientID, Op: OpUpsert}}, true, nil
}

type pushTokenApplier struct{}

func (pushTokenApplier) Name() string { return "push_token" }

func (pushTokenApplier) Apply(ctx context.Context, tx *sql.Tx, ev ir.UpdateEvent) ([]Change, bool, error) {
	if ev.Kind != ir.KindPushRemove {
		return nil, false, nil
	}
	var p ir.PushTokenPayload
	if err := decodeBody(ev, &p); err != nil {
		return nil, true, err
	}
	if p.Token == "" {
		return nil, true, fmt.Errorf("event %s: push removal without token", ev.ID)
	}
	err := exec(ctx, tx, `
		INSERT INTO push_tokens (token, removed) VALUES (?, 1)
		ON CONFLICT(token) DO UPDATE SET removed = 1
	`, p.Token)
	if err != nil {
		return nil, true, fmt.Errorf("mark push token removed: %w", err)
	}
	return []Change{{Table: "push_tokens", Key: p.Token, Op: OpUpsert}}, true, nil
}
