package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/accessportal/internal/model"
)

// PostgresTeamRepo はPostgreSQLを使用したチームリポジトリ。
// availableServiceIdsはTEXT[]カラムに保存する。
type PostgresTeamRepo struct {
	db DBTX
}

// NewPostgresTeamRepo はPostgresTeamRepoを生成する。
func NewPostgresTeamRepo(db DBTX) *PostgresTeamRepo {
	return &PostgresTeamRepo{db: db}
}

const teamColumns = `id, name, tech_lead_id, available_service_ids, created_at, updated_at`

func scanTeam(row interface{ Scan(...any) error }) (*model.Team, error) {
	t := &model.Team{}
	var serviceIDs pq.StringArray
	if err := row.Scan(&t.ID, &t.Name, &t.TechLeadID, &serviceIDs, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.AvailableServiceIDs = []string(serviceIDs)
	return t, nil
}

// FindByID は指定IDのチームを取得する。見つからない場合はnilを返す。
func (r *PostgresTeamRepo) FindByID(ctx context.Context, id string) (*model.Team, error) {
	return r.findOne(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
}

// FindByIDForUpdate は行ロックを取得してチームを取得する。
func (r *PostgresTeamRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Team, error) {
	return r.findOne(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresTeamRepo) findOne(ctx context.Context, query, id string) (*model.Team, error) {
	t, err := scanTeam(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find team by ID: %w", err)
	}
	return t, nil
}

// List は全チームを名前順で返す。
func (r *PostgresTeamRepo) List(ctx context.Context) ([]*model.Team, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*model.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}
	return teams, nil
}

// Create はチームを作成する。IDが空の場合はDB側で採番する。
func (r *PostgresTeamRepo) Create(ctx context.Context, team *model.Team) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO teams (id, name, tech_lead_id, available_service_ids)
		 VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		team.ID, team.Name, team.TechLeadID, pq.Array(nonNilStrings(team.AvailableServiceIDs)),
	).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert team: %w", err)
	}
	return nil
}

// Update はチームを更新する。
func (r *PostgresTeamRepo) Update(ctx context.Context, team *model.Team) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE teams SET name = $2, tech_lead_id = $3, available_service_ids = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		team.ID, team.Name, team.TechLeadID, pq.Array(nonNilStrings(team.AvailableServiceIDs)),
	).Scan(&team.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("team: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	return nil
}

// Delete は指定IDのチームを削除する。チーム向けの連絡先はCASCADE削除される。
func (r *PostgresTeamRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	return requireAffected(result, "team")
}

// nonNilStrings はnilスライスを空スライスに変換する（NOT NULL制約対策）。
func nonNilStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

// compile-time interface check
var _ TeamRepository = (*PostgresTeamRepo)(nil)
