// Package cleanup は終了したアクセス申請の自動削除ジョブを提供する。
// 保持期間を超過したrejected/completedの申請を日次バッチで物理削除する。
// 未完了の申請は対象にしない。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/accessportal/internal/model"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// 削除対象の終端状態
var purgeableStatuses = []string{
	string(model.RequestStatusRejected),
	string(model.RequestStatusCompleted),
}

// PurgeJob は保持期間を超過した終了済み申請の削除ジョブ。
// 冪等な削除処理で、日次実行を想定する。
type PurgeJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 0以下の場合は何もしない
}

// NewPurgeJob は新しいPurgeJobを生成する。
func NewPurgeJob(db Executor, logger *slog.Logger, retentionDays int) *PurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// Run はresolved_atがRetentionDays日前より古い終了済み申請を削除し、削除件数を返す。
func (j *PurgeJob) Run(ctx context.Context) (int64, error) {
	if j.RetentionDays <= 0 {
		return 0, nil
	}
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM requests
		WHERE status = ANY($1)
		  AND resolved_at IS NOT NULL
		  AND resolved_at < now() - $2::interval`
	result, err := j.db.ExecContext(ctx, query, pq.Array(purgeableStatuses), interval)
	if err != nil {
		j.logger.Error("申請クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("申請クリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("申請クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deletedCount, nil
}

// Start はRunを起動直後に1回、その後intervalごとに実行する。
func (j *PurgeJob) Start(ctx context.Context, interval time.Duration) {
	if j.RetentionDays <= 0 {
		j.logger.Info("申請の保持期間が未設定のためクリーンアップジョブを起動しません")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
