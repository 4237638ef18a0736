package store

import (
	"context"
	"fmt"
)

// StoreMessage inserts a message, ignoring duplicates by ID. Reports whether
// a new row was actually written.
func (s *Store) StoreMessage(ctx context.Context, m Message) (bool, error) {
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender, body, message_type, processed, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		m.ID, m.ChatID, m.Sender, m.Body, m.MessageType, m.Timestamp, m.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("store message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store message: %w", err)
	}
	return n > 0, nil
}

// UnprocessedMessages returns up to limit unprocessed messages, oldest first.
func (s *Store) UnprocessedMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender, body, message_type, processed, work_related, task_priority, timestamp, created_at
		FROM messages
		WHERE processed = 0
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Body, &m.MessageType,
			&m.Processed, &m.WorkRelated, &m.TaskPriority, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkProcessed marks a message processed and records its triage. An empty
// priority is stored as NULL. Returns ErrNotFound for an unknown ID.
func (s *Store) MarkProcessed(ctx context.Context, id string, workRelated bool, priority string) error {
	var prio any
	if priority != "" {
		prio = priority
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET processed = 1, work_related = ?, task_priority = ?
		WHERE id = ?`,
		workRelated, prio, id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}
