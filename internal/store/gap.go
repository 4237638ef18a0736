package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertGap records a suspected capture gap window.
func (s *Store) InsertGap(ctx context.Context, start, end time.Time) (Gap, error) {
	g := Gap{
		ID:       uuid.NewString(),
		GapStart: start.UTC(),
		GapEnd:   end.UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_gaps (id, gap_start, gap_end, recovery_attempts, recovered)
		VALUES (?, ?, ?, 0, 0)`,
		g.ID, g.GapStart.Format(time.RFC3339), g.GapEnd.Format(time.RFC3339))
	if err != nil {
		return Gap{}, fmt.Errorf("insert gap: %w", err)
	}
	return g, nil
}

// UnrecoveredGaps returns all gaps not yet marked recovered, oldest first.
func (s *Store) UnrecoveredGaps(ctx context.Context) ([]Gap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, gap_start, gap_end, recovery_attempts, last_attempt_at, recovered
		FROM message_gaps
		WHERE recovered = 0
		ORDER BY gap_start ASC`)
	if err != nil {
		return nil, fmt.Errorf("query gaps: %w", err)
	}
	defer rows.Close()

	gaps := []Gap{}
	for rows.Next() {
		g, err := scanGap(rows)
		if err != nil {
			return nil, err
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}

// MarkGapRecoveryAttempted bumps the attempt counter and stamps the attempt
// time. Returns ErrNotFound for an unknown ID.
func (s *Store) MarkGapRecoveryAttempted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE message_gaps
		SET recovery_attempts = recovery_attempts + 1, last_attempt_at = ?
		WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("mark gap attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark gap attempt: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("gap %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkGapRecovered closes out a gap.
func (s *Store) MarkGapRecovered(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE message_gaps SET recovered = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark gap recovered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark gap recovered: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("gap %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanGap(rows *sql.Rows) (Gap, error) {
	var (
		g          Gap
		start, end string
		lastAt     sql.NullString
	)
	if err := rows.Scan(&g.ID, &start, &end, &g.RecoveryAttempts, &lastAt, &g.Recovered); err != nil {
		return Gap{}, fmt.Errorf("scan gap: %w", err)
	}
	var err error
	if g.GapStart, err = time.Parse(time.RFC3339, start); err != nil {
		return Gap{}, fmt.Errorf("parse gap_start: %w", err)
	}
	if g.GapEnd, err = time.Parse(time.RFC3339, end); err != nil {
		return Gap{}, fmt.Errorf("parse gap_end: %w", err)
	}
	if lastAt.Valid {
		t, err := time.Parse(time.RFC3339, lastAt.String)
		if err != nil {
			return Gap{}, fmt.Errorf("parse last_attempt_at: %w", err)
		}
		g.LastAttemptAt = &t
	}
	return g, nil
}
