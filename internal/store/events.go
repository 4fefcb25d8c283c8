package store

import (
	"context"
	"fmt"

	"storyreel/internal/eventlog"
)

// Append stores one event log entry and returns it with its sequence number.
func (s *Store) Append(ctx context.Context, entry eventlog.Entry) (eventlog.Entry, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO event_log (session_id, created_at, level, kind, scene_index, message)
        VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		formatTime(entry.Time),
		string(entry.Level),
		entry.Kind,
		entry.SceneIndex,
		entry.Message,
	)
	if err != nil {
		return entry, fmt.Errorf("append event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("read event seq: %w", err)
	}
	entry.Seq = seq
	return entry, nil
}

// Events returns a session's log in append order. A positive limit keeps
// only the newest entries.
func (s *Store) Events(ctx context.Context, sessionID string, limit int) ([]eventlog.Entry, error) {
	query := `SELECT seq, session_id, created_at, level, kind, scene_index, message
        FROM event_log WHERE session_id = ? ORDER BY seq DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	out, err := s.queryEvents(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// EventsAfter returns a session's entries with a sequence number above
// afterSeq, in append order.
func (s *Store) EventsAfter(ctx context.Context, sessionID string, afterSeq int64) ([]eventlog.Entry, error) {
	return s.queryEvents(ctx, `SELECT seq, session_id, created_at, level, kind, scene_index, message
        FROM event_log WHERE session_id = ? AND seq > ? ORDER BY seq ASC`, sessionID, afterSeq)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]eventlog.Entry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []eventlog.Entry
	for rows.Next() {
		var (
			e          eventlog.Entry
			createdRaw string
			level      string
		)
		if err := rows.Scan(&e.Seq, &e.SessionID, &createdRaw, &level, &e.Kind, &e.SceneIndex, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = parseTime(createdRaw)
		e.Level = eventlog.Level(level)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ eventlog.Appender = (*Store)(nil)
