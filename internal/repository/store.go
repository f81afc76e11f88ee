package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// DBTX は*sql.DBと*sql.Txの両方が満たすクエリ実行インターフェース。
// リポジトリはトランザクションの内外で同じ実装を使用する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgreSQLのSQLSTATE
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// 直列化失敗時の再試行の上限遅延
const maxTxRetryDelay = 2 * time.Second

// StoreConfig はPostgresStoreの再試行ポリシーを表す。
type StoreConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	// OnRetry は再試行のたびに呼ばれる（メトリクス記録用、任意）。
	OnRetry func()
}

// PostgresStore はPostgreSQLを使用したStore実装。
// トランザクションはSERIALIZABLE分離レベルで実行し、
// 直列化失敗とデッドロックは指数バックオフで再試行する。
type PostgresStore struct {
	db     *sql.DB
	cfg    StoreConfig
	repos  *Repositories
	logger *slog.Logger
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB, cfg StoreConfig, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 20 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &PostgresStore{
		db:     db,
		cfg:    cfg,
		repos:  newPostgresRepositories(db),
		logger: logger,
	}
}

// newPostgresRepositories はDBTXに束縛されたリポジトリ集合を生成する。
func newPostgresRepositories(q DBTX) *Repositories {
	return &Repositories{
		Profiles:   NewPostgresProfileRepo(q),
		Teams:      NewPostgresTeamRepo(q),
		Services:   NewPostgresServiceRepo(q),
		Requests:   NewPostgresRequestRepo(q),
		Contacts:   NewPostgresContactRepo(q),
		Identities: NewPostgresIdentityRepo(q),
	}
}

// Repos はトランザクション外で使用するリポジトリを返す。
func (s *PostgresStore) Repos() *Repositories {
	return s.repos
}

// Ping はDBへの疎通を確認する。
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx はfnを1つのトランザクション内で実行する。
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(repos *Repositories) error) error {
	for attempt := 0; ; attempt++ {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryableTxError(err) || attempt >= s.cfg.MaxRetries {
			return err
		}

		delay := TxRetryBackoff(s.cfg.RetryBaseDelay, attempt)
		s.logger.Warn("transaction conflict, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if s.cfg.OnRetry != nil {
			s.cfg.OnRetry()
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction retry aborted: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}

// runOnce は1回分のトランザクションを実行する。
func (s *PostgresStore) runOnce(ctx context.Context, fn func(repos *Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newPostgresRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TxRetryBackoff は再試行回数に基づく指数バックオフ遅延を計算する。
// base, base*2, base*4 ... と増加し、maxTxRetryDelayで頭打ちになる。
func TxRetryBackoff(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxTxRetryDelay {
			return maxTxRetryDelay
		}
	}
	return delay
}

// IsRetryableTxError は直列化失敗またはデッドロックによるエラーかを判定する。
func IsRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgSerializationFailure || pqErr.Code == pgDeadlockDetected
	}
	return false
}

// isUniqueViolation は一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return false
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
