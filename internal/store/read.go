package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Conversation is a stored conversation with its members.
type Conversation struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Deleted bool     `json:"deleted"`
	Members []string `json:"members"`
}

// Message is a stored message.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Type           string `json:"type"`
	Text           string `json:"text"`
	Ephemeral      bool   `json:"ephemeral"`
	EventID        string `json:"event_id"`
}

// ConversationName returns the name of a conversation, or "" if unknown.
// Together with UserName it implements alert.Lookup.
func (s *Store) ConversationName(ctx context.Context, id string) (string, error) {
	return s.lookupString(ctx, `SELECT name FROM conversations WHERE id = ? AND deleted = 0`, id)
}

// UserName returns the display name of a user, or "" if unknown.
func (s *Store) UserName(ctx context.Context, id string) (string, error) {
	return s.lookupString(ctx, `SELECT name FROM users WHERE id = ?`, id)
}

func (s *Store) lookupString(ctx context.Context, query, arg string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", arg, err)
	}
	return v, nil
}

// Conversation returns a conversation by ID.
// Returns false if it does not exist.
func (s *Store) Conversation(ctx context.Context, id string) (Conversation, bool, error) {
	c := Conversation{ID: id}
	var deleted int
	err := s.db.QueryRowContext(ctx, `
		SELECT name, type, deleted FROM conversations WHERE id = ?
	`, id).Scan(&c.Name, &c.Type, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, fmt.Errorf("query conversation: %w", err)
	}
	c.Deleted = deleted != 0

	members, err := s.Members(ctx, id)
	if err != nil {
		return Conversation{}, false, err
	}
	c.Members = members
	return c, true, nil
}

// Members returns the members of a conversation, sorted.
func (s *Store) Members(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM members WHERE conversation_id = ?
		ORDER BY user_id COLLATE BINARY ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// Message returns a message by ID.
func (s *Store) Message(ctx context.Context, id string) (Message, bool, error) {
	m := Message{ID: id}
	var ephemeral int
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, sender_id, type, text, ephemeral, event_id
		FROM messages WHERE id = ?
	`, id).Scan(&m.ConversationID, &m.SenderID, &m.Type, &m.Text, &ephemeral, &m.EventID)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, fmt.Errorf("query message: %w", err)
	}
	m.Ephemeral = ephemeral != 0
	return m, true, nil
}

// Property returns the stored JSON value of a property.
func (s *Store) Property(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM properties WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query property: %w", err)
	}
	return v, true, nil
}

// dumpQueries lists every local table with a deterministic row rendering.
var dumpQueries = []struct {
	table string
	query string
}{
	{"clients", `SELECT id || '|' || label || '|' || class FROM clients ORDER BY id COLLATE BINARY`},
	{"connections", `SELECT user_id || '|' || status || '|' || conversation_id FROM connections ORDER BY user_id COLLATE BINARY`},
	{"conversations", `SELECT id || '|' || name || '|' || type || '|' || deleted FROM conversations ORDER BY id COLLATE BINARY`},
	{"members", `SELECT conversation_id || '|' || user_id FROM members ORDER BY conversation_id COLLATE BINARY, user_id COLLATE BINARY`},
	{"messages", `SELECT id || '|' || conversation_id || '|' || sender_id || '|' || type || '|' || text || '|' || ephemeral FROM messages ORDER BY id COLLATE BINARY`},
	{"properties", `SELECT key || '|' || value FROM properties ORDER BY key COLLATE BINARY`},
	{"push_tokens", `SELECT token || '|' || removed FROM push_tokens ORDER BY token COLLATE BINARY`},
	{"users", `SELECT id || '|' || name || '|' || handle || '|' || accent_id FROM users ORDER BY id COLLATE BINARY`},
}

// Dump renders every local table, excluding the journal, as sorted
// pipe-separated rows. Two dumps are equal exactly when the observable
// state is equal.
func (s *Store) Dump(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string, len(dumpQueries))
	for _, q := range dumpQueries {
		rows, err := s.db.QueryContext(ctx, q.query)
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", q.table, err)
		}
		lines := []string{}
		for rows.Next() {
			var line string
			if err := rows.Scan(&line); err != nil {
				rows.Close()
				return nil, fmt.Errorf("dump %s: %w", q.table, err)
			}
			lines = append(lines, line)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", q.table, err)
		}
		out[q.table] = lines
	}
	return out, nil
}

// Summary returns row counts per table, including the journal.
func (s *Store) Summary(ctx context.Context) (map[string]int64, error) {
	tables := make([]string, 0, len(dumpQueries)+1)
	for _, q := range dumpQueries {
		tables = append(tables, q.table)
	}
	tables = append(tables, "change_journal")

	out := make(map[string]int64, len(tables))
	for _, t := range tables {
		var n int64
		// Table names come from the fixed list above.
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", t, err)
		}
		out[t] = n
	}
	return out, nil
}
