package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/outreach-core/internal/domain"
)

// AppendSignal inserts into the append-only signal log.
func (r *ContactRepo) AppendSignal(ctx context.Context, s *domain.Signal) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contact_signals (id, contact_id, signal_type, source, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.ContactID, s.Type, s.Source, s.Note, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("append signal: %w", err)
	}
	return nil
}

// GetLatestSignal returns the newest signal of one of types, or nil. Ties
// on created_at go to the later insert (seq).
func (r *ContactRepo) GetLatestSignal(ctx context.Context, contactID string, types []domain.SignalType) (*domain.Signal, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	s := &domain.Signal{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, contact_id, signal_type, source, note, created_at
		FROM contact_signals
		WHERE contact_id = $1 AND signal_type = ANY($2)
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, contactID, pq.Array(names)).Scan(&s.ID, &s.ContactID, &s.Type, &s.Source, &s.Note, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest signal: %w", err)
	}
	return s, nil
}

// ListSignals returns a contact's signals newest first.
func (r *ContactRepo) ListSignals(ctx context.Context, contactID string, limit int) ([]domain.Signal, error) {
	query := `
		SELECT id, contact_id, signal_type, source, note, created_at
		FROM contact_signals
		WHERE contact_id = $1
		ORDER BY created_at DESC, seq DESC`
	args := []any{contactID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var s domain.Signal
		if err := rows.Scan(&s.ID, &s.ContactID, &s.Type, &s.Source, &s.Note, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
