package store

import (
	"context"
	"fmt"
)

// JournalEntry is one recorded row change.
type JournalEntry struct {
	Seq     int64  `json:"seq"`
	ID      string `json:"id"`
	EventID string `json:"event_id"`
	Table   string `json:"table"`
	Key     string `json:"key"`
	Op      string `json:"op"`
	BatchID string `json:"batch_id"`
}

// ReadJournal returns up to limit entries with seq greater than afterSeq,
// oldest first. limit <= 0 means no limit.
func (s *Store) ReadJournal(ctx context.Context, afterSeq int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, event_id, table_name, row_key, op, batch_id
		FROM change_journal
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.Seq, &e.ID, &e.EventID, &e.Table, &e.Key, &e.Op, &e.BatchID); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}

// ClearJournal deletes entries up to and including throughSeq and returns
// how many were removed. The foreground application calls this after merging.
func (s *Store) ClearJournal(ctx context.Context, throughSeq int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM change_journal WHERE seq <= ?`, throughSeq)
	if err != nil {
		return 0, fmt.Errorf("clear journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear journal: %w", err)
	}
	return n, nil
}
