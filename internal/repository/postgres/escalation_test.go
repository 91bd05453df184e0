package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/service/escalation"
)

var _ escalation.StateRepository = (*EscalationRepo)(nil)

var stateCols = []string{
	"id", "tenant_id", "contact_id", "campaign_id", "current_step", "last_sent_at",
	"paused", "pause_reason", "completed", "created_at", "updated_at", "last_attempt_at",
}

func TestEscalationRepo_GetState(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEscalationRepo(db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM escalation_states WHERE contact_id = \\$1 AND campaign_id = \\$2").
		WithArgs("c1", "camp").
		WillReturnRows(sqlmock.NewRows(stateCols).AddRow("s1", "", "c1", "camp", 2, now, false, "", false, now, now, nil))
	st, err := repo.GetState(context.Background(), "c1", "camp")
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentStep)
	require.NotNil(t, st.LastSentAt)
	assert.True(t, st.LastSentAt.Equal(now))

	mock.ExpectQuery("FROM escalation_states").
		WithArgs("c2", "camp").
		WillReturnRows(sqlmock.NewRows(stateCols).AddRow("s2", "", "c2", "camp", 0, nil, false, "", false, now, now, nil))
	st, err = repo.GetState(context.Background(), "c2", "camp")
	require.NoError(t, err)
	assert.Nil(t, st.LastSentAt)

	mock.ExpectQuery("FROM escalation_states").WillReturnError(sql.ErrNoRows)
	_, err = repo.GetState(context.Background(), "c3", "camp")
	assert.ErrorIs(t, err, escalation.ErrNotFound)
}

func TestEscalationRepo_CreateState(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEscalationRepo(db)
	now := time.Now()
	st := &domain.EscalationState{ID: "s1", ContactID: "c1", CampaignID: "camp", CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec("INSERT INTO escalation_states .+ ON CONFLICT \\(contact_id, campaign_id\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	created, err := repo.CreateState(context.Background(), st)
	require.NoError(t, err)
	assert.True(t, created)

	mock.ExpectExec("INSERT INTO escalation_states").WillReturnResult(sqlmock.NewResult(0, 0))
	created, err = repo.CreateState(context.Background(), st)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEscalationRepo_SaveState_CompareAndSwap(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEscalationRepo(db)
	sent := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	st := &domain.EscalationState{ContactID: "c1", CampaignID: "camp", CurrentStep: 3, LastSentAt: &sent, UpdatedAt: sent}

	mock.ExpectExec("UPDATE escalation_states SET .+ WHERE contact_id = \\$1 AND campaign_id = \\$2 AND current_step = \\$9").
		WithArgs("c1", "camp", 3, sqlmock.AnyArg(), false, "", false, sent, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SaveState(context.Background(), st, 2))

	// Lost the race: row exists at another step.
	mock.ExpectExec("UPDATE escalation_states").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("c1", "camp").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.SaveState(context.Background(), st, 2), escalation.ErrStaleState)

	// Row is gone.
	mock.ExpectExec("UPDATE escalation_states").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("c1", "camp").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	assert.ErrorIs(t, repo.SaveState(context.Background(), st, 2), escalation.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalationRepo_ListDue(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEscalationRepo(db)
	cutoff := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := cutoff

	mock.ExpectQuery("WHERE campaign_id = \\$1 AND NOT paused AND NOT completed AND current_step < \\$2 .+ ORDER BY last_attempt_at NULLS FIRST, id").
		WithArgs("camp", 10, cutoff, escalation.DefaultBatchSize).
		WillReturnRows(sqlmock.NewRows(stateCols).
			AddRow("s1", "", "c1", "camp", 0, nil, false, "", false, now, now, nil).
			AddRow("s2", "", "c2", "camp", 4, cutoff.Add(-48*time.Hour), false, "", false, now, now, nil))

	got, err := repo.ListDue(context.Background(), escalation.DueQuery{CampaignID: "camp", MaxSteps: 10, SentBefore: cutoff})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].LastSentAt)
	assert.Equal(t, 4, got[1].CurrentStep)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalationRepo_SaveProgress_LeavesPauseAlone(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEscalationRepo(db)
	sent := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	p := escalation.Progress{ContactID: "c1", CampaignID: "camp", FromStep: 2, Step: 3, LastSentAt: &sent, UpdatedAt: sent}

	mock.ExpectExec("UPDATE escalation_states SET current_step = \\$3, last_sent_at = \\$4, last_attempt_at = \\$4, completed = \\$5, updated_at = \\$6 " +
		"WHERE contact_id = \\$1 AND campaign_id = \\$2 AND current_step = \\$7 AND NOT completed").
		WithArgs("c1", "camp", 3, sqlmock.AnyArg(), false, sent, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SaveProgress(context.Background(), p))

	mock.ExpectExec("UPDATE escalation_states").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("c1", "camp").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.ErrorIs(t, repo.SaveProgress(context.Background(), p), escalation.ErrStaleState)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscalationRepo_RecordAttempt(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEscalationRepo(db)
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE escalation_states SET last_attempt_at = \\$3 WHERE contact_id = \\$1 AND campaign_id = \\$2").
		WithArgs("c1", "camp", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.RecordAttempt(context.Background(), "c1", "camp", at))

	mock.ExpectExec("UPDATE escalation_states").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.RecordAttempt(context.Background(), "gone", "camp", at), escalation.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
