package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/outreach-core/internal/domain"
)

// ContactRepo implements gate.Repository and suppression.Repository against
// PostgreSQL.
type ContactRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewContactRepo creates a Postgres-backed contact and signal repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db, now: time.Now} }

const contactColumns = `id, tenant_id, phone, email, first_name, last_name, company,
	       state, stage, tags, attributes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	c := &domain.Contact{}
	var (
		tags  pq.StringArray
		attrs []byte
	)
	if err := row.Scan(
		&c.ID, &c.TenantID, &c.Phone, &c.Email, &c.FirstName, &c.LastName, &c.Company,
		&c.State, &c.Stage, &tags, &attrs, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Tags = []string(tags)
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes for %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func (r *ContactRepo) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// FindContactByAddress matches phones by digits and emails
// case-insensitively. The most recently updated match wins.
func (r *ContactRepo) FindContactByAddress(ctx context.Context, address string) (*domain.Contact, error) {
	norm := domain.NormalizeAddress(address)
	if norm == "" {
		return nil, domain.ErrContactNotFound
	}

	var row *sql.Row
	if strings.Contains(norm, "@") {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+contactColumns+`
			FROM contacts
			WHERE LOWER(email) = $1
			ORDER BY updated_at DESC
			LIMIT 1
		`, norm)
	} else {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+contactColumns+`
			FROM contacts
			WHERE regexp_replace(phone, '\D', '', 'g') IN ($1, '1' || $1)
			ORDER BY updated_at DESC
			LIMIT 1
		`, norm)
	}
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contact by address: %w", err)
	}
	return c, nil
}

// UpsertContact inserts or replaces a contact's profile fields.
func (r *ContactRepo) UpsertContact(ctx context.Context, c *domain.Contact) error {
	if c.State == "" {
		c.State = domain.ContactNew
	}
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	if c.Attributes == nil {
		attrs = []byte("{}")
	}
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, tenant_id, phone, email, first_name, last_name, company,
		                      state, stage, tags, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = $2, phone = $3, email = $4, first_name = $5, last_name = $6,
			company = $7, state = $8, stage = $9, tags = $10, attributes = $11,
			updated_at = NOW()
	`, c.ID, c.TenantID, c.Phone, c.Email, c.FirstName, c.LastName, c.Company,
		c.State, c.Stage, pq.Array(tags), attrs)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

func (r *ContactRepo) SetContactState(ctx context.Context, contactID string, state domain.LifecycleState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contacts SET state = $2, updated_at = NOW() WHERE id = $1`,
		contactID, state,
	)
	if err != nil {
		return fmt.Errorf("set contact state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrContactNotFound
	}
	return nil
}
