package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/accessportal/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db DBTX
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db DBTX) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, name, email, photo_url, is_admin, is_tech_lead, team_id, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*model.Profile, error) {
	p := &model.Profile{}
	var teamID sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PhotoURL, &p.IsAdmin, &p.IsTechLead,
		&teamID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if teamID.Valid {
		p.TeamID = &teamID.String
	}
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, id)
}

// FindByIDForUpdate は行ロックを取得してプロフィールを取得する。
func (r *PostgresProfileRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Profile, error) {
	return r.findOne(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresProfileRepo) findOne(ctx context.Context, query, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// List は全プロフィールを名前順で返す。
func (r *PostgresProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	return r.list(ctx, `SELECT `+profileColumns+` FROM users ORDER BY name, id`)
}

// ListByTeamID は指定チームに所属するプロフィールを返す。
func (r *PostgresProfileRepo) ListByTeamID(ctx context.Context, teamID string) ([]*model.Profile, error) {
	return r.list(ctx, `SELECT `+profileColumns+` FROM users WHERE team_id = $1 ORDER BY name, id`, teamID)
}

func (r *PostgresProfileRepo) list(ctx context.Context, query string, args ...any) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, name, email, photo_url, is_admin, is_tech_lead, team_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		profile.ID, profile.Name, profile.Email, profile.PhotoURL,
		profile.IsAdmin, profile.IsTechLead, profile.TeamID,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// UpdateRole はロールフィールドを上書きする。
func (r *PostgresProfileRepo) UpdateRole(ctx context.Context, id string, role model.RoleClaims) error {
	return r.exec(ctx, "update profile role",
		`UPDATE users SET is_admin = $2, is_tech_lead = $3, team_id = $4, updated_at = now() WHERE id = $1`,
		id, role.IsAdmin, role.IsTechLead, role.TeamID,
	)
}

// SetTechLead はisTechLeadフラグのみを変更する。
func (r *PostgresProfileRepo) SetTechLead(ctx context.Context, id string, isTechLead bool) error {
	return r.exec(ctx, "set tech lead flag",
		`UPDATE users SET is_tech_lead = $2, updated_at = now() WHERE id = $1`,
		id, isTechLead,
	)
}

// SetTeam はteamIdのみを変更する。
func (r *PostgresProfileRepo) SetTeam(ctx context.Context, id, teamID string) error {
	return r.exec(ctx, "set profile team",
		`UPDATE users SET team_id = $2, updated_at = now() WHERE id = $1`,
		id, teamID,
	)
}

// exec は1行を更新するSQLを実行し、対象が存在しない場合はErrNotFoundを返す。
func (r *PostgresProfileRepo) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return requireAffected(result, "profile")
}

// requireAffected は更新件数が0の場合にErrNotFoundを返す。
func requireAffected(result sql.Result, resource string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", resource, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
