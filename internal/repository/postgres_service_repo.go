package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/accessportal/internal/model"
)

// PostgresServiceRepo はPostgreSQLを使用したサービスリポジトリ。
type PostgresServiceRepo struct {
	db DBTX
}

// NewPostgresServiceRepo はPostgresServiceRepoを生成する。
func NewPostgresServiceRepo(db DBTX) *PostgresServiceRepo {
	return &PostgresServiceRepo{db: db}
}

const serviceColumns = `id, name, description, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }) (*model.Service, error) {
	s := &model.Service{}
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByID は指定IDのサービスを取得する。見つからない場合はnilを返す。
func (r *PostgresServiceRepo) FindByID(ctx context.Context, id string) (*model.Service, error) {
	s, err := scanService(r.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service by ID: %w", err)
	}
	return s, nil
}

// List は全サービスを名前順で返す。
func (r *PostgresServiceRepo) List(ctx context.Context) ([]*model.Service, error) {
	return r.list(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY name, id`)
}

// ListByIDs は指定ID集合に含まれるサービスを名前順で返す。
func (r *PostgresServiceRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ANY($1) ORDER BY name, id`, pq.Array(ids))
}

func (r *PostgresServiceRepo) list(ctx context.Context, query string, args ...any) ([]*model.Service, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate services: %w", err)
	}
	return services, nil
}

// Create はサービスを作成する。
func (r *PostgresServiceRepo) Create(ctx context.Context, service *model.Service) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO services (id, name, description)
		 VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3)
		 RETURNING id, created_at, updated_at`,
		service.ID, service.Name, service.Description,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert service: %w", err)
	}
	return nil
}

// Update はサービスの名前と説明を更新する。
func (r *PostgresServiceRepo) Update(ctx context.Context, service *model.Service) error {
	err := r.db.QueryRowContext(ctx,
		`UPDATE services SET name = $2, description = $3, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		service.ID, service.Name, service.Description,
	).Scan(&service.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("service: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return nil
}

// Delete は指定IDのサービスを削除する。関連する申請はCASCADE削除される。
func (r *PostgresServiceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	return requireAffected(result, "service")
}

// compile-time interface check
var _ ServiceRepository = (*PostgresServiceRepo)(nil)
