package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/accessportal/internal/model"
)

// PostgresContactRepo はPostgreSQLを使用した連絡先リポジトリ。
// orderはsort_orderカラムに保存する。
type PostgresContactRepo struct {
	db DBTX
}

// NewPostgresContactRepo はPostgresContactRepoを生成する。
func NewPostgresContactRepo(db DBTX) *PostgresContactRepo {
	return &PostgresContactRepo{db: db}
}

const contactColumns = `id, name, url, sort_order, team_id, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*model.Contact, error) {
	c := &model.Contact{}
	var teamID sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &c.Order, &teamID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if teamID.Valid {
		c.TeamID = &teamID.String
	}
	return c, nil
}

// FindByID は指定IDの連絡先を取得する。見つからない場合はnilを返す。
func (r *PostgresContactRepo) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contact by ID: %w", err)
	}
	return c, nil
}

// List は全連絡先をorder順で返す。
func (r *PostgresContactRepo) List(ctx context.Context) ([]*model.Contact, error) {
	return r.list(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY sort_order, name, id`)
}

// ListVisible は全体向けと指定チーム向けの連絡先をorder順で返す。
func (r *PostgresContactRepo) ListVisible(ctx context.Context, teamID string) ([]*model.Contact, error) {
	return r.list(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE team_id IS NULL OR ($1::text <> '' AND team_id = $1::text)
		 ORDER BY sort_order, name, id`,
		teamID,
	)
}

func (r *PostgresContactRepo) list(ctx context.Context, query string, args ...any) ([]*model.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}
	return contacts, nil
}

// Create は連絡先を作成する。
func (r *PostgresContactRepo) Create(ctx context.Context, contact *model.Contact) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO contacts (id, name, url, sort_order, team_id)
		 VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		contact.ID, contact.Name, contact.URL, contact.Order, contact.TeamID,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert contact: %w", err)
	}
	return nil
}

// Update は連絡先を更新する。
func (r *PostgresContactRepo) Update(ctx context.Context, contact *model.Contact) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE contacts SET name = $2, url = $3, sort_order = $4, team_id = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		contact.ID, contact.Name, contact.URL, contact.Order, contact.TeamID,
	).Scan(&contact.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("contact: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	return nil
}

// Delete は指定IDの連絡先を削除する。
func (r *PostgresContactRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	return requireAffected(result, "contact")
}

// compile-time interface check
var _ ContactRepository = (*PostgresContactRepo)(nil)
