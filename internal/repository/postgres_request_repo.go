package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/accessportal/internal/model"
)

// PostgresRequestRepo はPostgreSQLを使用したアクセス申請リポジトリ。
// 申請者の所属チームはusersとのJOINで取得する。
type PostgresRequestRepo struct {
	db DBTX
}

// NewPostgresRequestRepo はPostgresRequestRepoを生成する。
func NewPostgresRequestRepo(db DBTX) *PostgresRequestRepo {
	return &PostgresRequestRepo{db: db}
}

const requestSelect = `SELECT r.id, r.user_id, r.service_id, r.status, r.requested_at,
	r.resolved_at, r.resolved_by, r.notes, u.team_id
	FROM requests r JOIN users u ON u.id = r.user_id`

func scanRequest(row interface{ Scan(...any) error }, withOwner bool) (*RequestWithOwner, error) {
	req := &RequestWithOwner{}
	var (
		status     string
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
		notes      sql.NullString
		ownerTeam  sql.NullString
	)
	dest := []any{&req.ID, &req.UserID, &req.ServiceID, &status, &req.RequestedAt,
		&resolvedAt, &resolvedBy, &notes}
	if withOwner {
		dest = append(dest, &ownerTeam)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	req.Status = model.RequestStatus(status)
	if resolvedAt.Valid {
		req.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		req.ResolvedBy = &resolvedBy.String
	}
	if notes.Valid {
		req.Notes = &notes.String
	}
	if ownerTeam.Valid {
		req.OwnerTeamID = &ownerTeam.String
	}
	return req, nil
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *PostgresRequestRepo) FindByID(ctx context.Context, id string) (*RequestWithOwner, error) {
	return r.findOne(ctx, requestSelect+` WHERE r.id = $1`, id)
}

// FindByIDForUpdate は申請行のロックを取得して申請を取得する。
func (r *PostgresRequestRepo) FindByIDForUpdate(ctx context.Context, id string) (*RequestWithOwner, error) {
	return r.findOne(ctx, requestSelect+` WHERE r.id = $1 FOR UPDATE OF r`, id)
}

func (r *PostgresRequestRepo) findOne(ctx context.Context, query, id string) (*RequestWithOwner, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id), true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find request by ID: %w", err)
	}
	return req, nil
}

// List は条件に一致する申請をrequestedAt降順で返す。
func (r *PostgresRequestRepo) List(ctx context.Context, filter RequestFilter) ([]*RequestWithOwner, error) {
	rows, err := r.db.QueryContext(ctx,
		requestSelect+`
		 WHERE ($1::text = '' OR r.status = $1::text)
		   AND (
		     ($2::text = '' AND $3::text = '')
		     OR ($2::text <> '' AND r.user_id = $2::text)
		     OR ($3::text <> '' AND u.team_id = $3::text)
		   )
		 ORDER BY r.requested_at DESC, r.id`,
		string(filter.Status), filter.UserID, filter.OwnerTeamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*RequestWithOwner
	for rows.Next() {
		req, err := scanRequest(rows, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}
	return requests, nil
}

// Create は申請をpending状態で作成する。requestedAtはDBサーバー時刻。
func (r *PostgresRequestRepo) Create(ctx context.Context, request *model.AccessRequest) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO requests (id, user_id, service_id, status)
		 VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text), $2, $3, 'pending')
		 RETURNING id, status, requested_at`,
		request.ID, request.UserID, request.ServiceID,
	).Scan(&request.ID, &request.Status, &request.RequestedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateOpenRequest
	}
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// Resolve は申請の状態を更新し、resolvedAtにDBサーバー時刻を記録する。
func (r *PostgresRequestRepo) Resolve(ctx context.Context, id string, status model.RequestStatus, resolvedBy string, notes *string) (*model.AccessRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx,
		`UPDATE requests SET status = $2, resolved_at = now(), resolved_by = $3, notes = COALESCE($4, notes)
		 WHERE id = $1
		 RETURNING id, user_id, service_id, status, requested_at, resolved_at, resolved_by, notes`,
		id, string(status), resolvedBy, notes,
	), false)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("request: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve request: %w", err)
	}
	return &req.AccessRequest, nil
}

// Delete は指定IDの申請を物理削除する。
func (r *PostgresRequestRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	return requireAffected(result, "request")
}

// compile-time interface check
var _ RequestRepository = (*PostgresRequestRepo)(nil)
