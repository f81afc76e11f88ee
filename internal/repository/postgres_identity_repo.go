package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/accessportal/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
// クレームはJSONBカラムに全体を保存する。
type PostgresIdentityRepo struct {
	db DBTX
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db DBTX) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, provider, provider_user_id, email, display_name, photo_url, claims, claims_updated_at, created_at`

func scanIdentity(row interface{ Scan(...any) error }) (*model.Identity, error) {
	ident := &model.Identity{}
	var rawClaims []byte
	if err := row.Scan(&ident.ID, &ident.Provider, &ident.ProviderUserID, &ident.Email,
		&ident.DisplayName, &ident.PhotoURL, &rawClaims, &ident.ClaimsUpdatedAt, &ident.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawClaims, &ident.Claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}
	return ident, nil
}

// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	return r.findOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	return r.findOne(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	)
}

func (r *PostgresIdentityRepo) findOne(ctx context.Context, query string, args ...any) (*model.Identity, error) {
	ident, err := scanIdentity(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return ident, nil
}

// List は全identityを作成順で返す。
func (r *PostgresIdentityRepo) List(ctx context.Context) ([]*model.Identity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}
	return identities, nil
}

// Create はidentityを作成する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	raw, err := json.Marshal(identity.Claims)
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO identities (id, provider, provider_user_id, email, display_name, photo_url, claims)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING claims_updated_at, created_at`,
		identity.ID, identity.Provider, identity.ProviderUserID, identity.Email,
		identity.DisplayName, identity.PhotoURL, string(raw),
	).Scan(&identity.ClaimsUpdatedAt, &identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// ReplaceClaims はクレーム全体を上書きする。
func (r *PostgresIdentityRepo) ReplaceClaims(ctx context.Context, id string, claims model.RoleClaims) error {
	raw, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET claims = $2, claims_updated_at = now() WHERE id = $1`,
		id, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to replace claims: %w", err)
	}
	return requireAffected(result, "identity")
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
