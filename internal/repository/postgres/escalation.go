package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/service/escalation"
)

// EscalationRepo implements escalation.StateRepository against PostgreSQL.
type EscalationRepo struct{ db *sql.DB }

// NewEscalationRepo creates a Postgres-backed escalation state repository.
func NewEscalationRepo(db *sql.DB) *EscalationRepo { return &EscalationRepo{db: db} }

const stateColumns = `id, tenant_id, contact_id, campaign_id, current_step, last_sent_at,
	       paused, pause_reason, completed, created_at, updated_at, last_attempt_at`

func scanState(row rowScanner) (*domain.EscalationState, error) {
	s := &domain.EscalationState{}
	var lastSent, lastAttempt sql.NullTime
	if err := row.Scan(
		&s.ID, &s.TenantID, &s.ContactID, &s.CampaignID, &s.CurrentStep, &lastSent,
		&s.Paused, &s.PauseReason, &s.Completed, &s.CreatedAt, &s.UpdatedAt, &lastAttempt,
	); err != nil {
		return nil, err
	}
	s.LastSentAt = timePtr(lastSent)
	s.LastAttemptAt = timePtr(lastAttempt)
	return s, nil
}

func (r *EscalationRepo) GetState(ctx context.Context, contactID, campaignID string) (*domain.EscalationState, error) {
	s, err := scanState(r.db.QueryRowContext(ctx, `
		SELECT `+stateColumns+`
		FROM escalation_states
		WHERE contact_id = $1 AND campaign_id = $2
	`, contactID, campaignID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, escalation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get escalation state: %w", err)
	}
	return s, nil
}

func (r *EscalationRepo) CreateState(ctx context.Context, s *domain.EscalationState) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO escalation_states (id, tenant_id, contact_id, campaign_id, current_step,
		                               last_sent_at, paused, pause_reason, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (contact_id, campaign_id) DO NOTHING
	`, s.ID, s.TenantID, s.ContactID, s.CampaignID, s.CurrentStep, nullTime(s.LastSentAt),
		s.Paused, s.PauseReason, s.Completed, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("create escalation state: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SaveState is a compare-and-swap on current_step. A miss is disambiguated
// into ErrNotFound or ErrStaleState.
func (r *EscalationRepo) SaveState(ctx context.Context, s *domain.EscalationState, expectedStep int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escalation_states
		SET current_step = $3, last_sent_at = $4, paused = $5, pause_reason = $6,
		    completed = $7, updated_at = $8, last_attempt_at = $10
		WHERE contact_id = $1 AND campaign_id = $2 AND current_step = $9
	`, s.ContactID, s.CampaignID, s.CurrentStep, nullTime(s.LastSentAt), s.Paused,
		s.PauseReason, s.Completed, s.UpdatedAt, expectedStep, nullTime(s.LastAttemptAt))
	if err != nil {
		return fmt.Errorf("save escalation state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return r.missError(ctx, s.ContactID, s.CampaignID)
}

// SaveProgress records a step without touching paused or pause_reason.
func (r *EscalationRepo) SaveProgress(ctx context.Context, p escalation.Progress) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escalation_states
		SET current_step = $3, last_sent_at = $4, last_attempt_at = $4,
		    completed = $5, updated_at = $6
		WHERE contact_id = $1 AND campaign_id = $2 AND current_step = $7 AND NOT completed
	`, p.ContactID, p.CampaignID, p.Step, nullTime(p.LastSentAt), p.Completed, p.UpdatedAt, p.FromStep)
	if err != nil {
		return fmt.Errorf("save escalation progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return r.missError(ctx, p.ContactID, p.CampaignID)
}

func (r *EscalationRepo) RecordAttempt(ctx context.Context, contactID, campaignID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE escalation_states SET last_attempt_at = $3
		WHERE contact_id = $1 AND campaign_id = $2
	`, contactID, campaignID, at)
	if err != nil {
		return fmt.Errorf("record escalation attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return escalation.ErrNotFound
	}
	return nil
}

func (r *EscalationRepo) missError(ctx context.Context, contactID, campaignID string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM escalation_states WHERE contact_id = $1 AND campaign_id = $2)`,
		contactID, campaignID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check escalation state: %w", err)
	}
	if !exists {
		return escalation.ErrNotFound
	}
	return escalation.ErrStaleState
}

func (r *EscalationRepo) ListDue(ctx context.Context, q escalation.DueQuery) ([]*domain.EscalationState, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = escalation.DefaultBatchSize
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+stateColumns+`
		FROM escalation_states
		WHERE campaign_id = $1
		  AND NOT paused AND NOT completed
		  AND current_step < $2
		  AND (last_sent_at IS NULL OR last_sent_at <= $3)
		ORDER BY last_attempt_at NULLS FIRST, id
		LIMIT $4
	`, q.CampaignID, q.MaxSteps, q.SentBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list due states: %w", err)
	}
	defer rows.Close()

	var out []*domain.EscalationState
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation state: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
