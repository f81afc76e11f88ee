// Package claimsync はプロフィールのロールとIDトークンのクレームの乖離を定期的に解消するワーカー。
package claimsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/accessportal/internal/claims"
	"github.com/hitoshi/accessportal/internal/model"
)

// ProfileLister はプロフィール一覧取得のインターフェース。
type ProfileLister interface {
	List(ctx context.Context) ([]*model.Profile, error)
}

// IdentityLister はidentity一覧取得のインターフェース。
type IdentityLister interface {
	List(ctx context.Context) ([]*model.Identity, error)
}

// ProfileSyncer はプロフィールのロールをクレームへ書き戻すインターフェース。
// claims.Issuerが満たす。
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, profileID string) error
}

// Config は同期ジョブの設定。
type Config struct {
	// Interval は実行間隔（デフォルト: 10分）。
	Interval time.Duration
	// MaxSyncsPerCycle は1サイクルで書き戻す最大件数（デフォルト: 500）。
	MaxSyncsPerCycle int
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:         10 * time.Minute,
		MaxSyncsPerCycle: 500,
	}
}

// Result は1サイクルの集計。
type Result struct {
	Checked int
	Drifted int
	Synced  int
	Failed  int
	// MissingIdentity はidentityが存在しないプロフィールの件数。
	MissingIdentity int
}

// Job はプロフィールとクレームの乖離を検出して書き戻す定期ジョブ。
// ロール変更後の書き戻しに失敗した場合でも、次のサイクルで収束する。
// 書き戻しの方向はプロフィールからクレームのみ。
type Job struct {
	profiles   ProfileLister
	identities IdentityLister
	syncer     ProfileSyncer
	logger     *slog.Logger
	config     Config

	consecutiveErrors int
	backoffUntil      time.Time
	now               func() time.Time
}

// NewJob はJobを生成する。
func NewJob(profiles ProfileLister, identities IdentityLister, syncer ProfileSyncer, logger *slog.Logger, config Config) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxSyncsPerCycle <= 0 {
		config.MaxSyncsPerCycle = defaults.MaxSyncsPerCycle
	}
	return &Job{
		profiles:   profiles,
		identities: identities,
		syncer:     syncer,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// Start はジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info("クレーム同期ジョブを開始しました",
		slog.Duration("interval", j.config.Interval),
		slog.Int("max_syncs_per_cycle", j.config.MaxSyncsPerCycle),
	)

	// 起動直後に1回実行
	j.runAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クレーム同期ジョブを停止しました")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *Job) runAndLog(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("クレーム同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は1回の同期サイクルを実行する。
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	var result Result
	start := j.now()

	if !j.backoffUntil.IsZero() && start.Before(j.backoffUntil) {
		j.logger.Info("クレーム同期ジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", j.backoffUntil),
		)
		return result, nil
	}

	profiles, err := j.profiles.List(ctx)
	if err != nil {
		j.fail()
		return result, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	identities, err := j.identities.List(ctx)
	if err != nil {
		j.fail()
		return result, fmt.Errorf("identity一覧の取得に失敗しました: %w", err)
	}

	byID := make(map[string]*model.Identity, len(identities))
	for _, ident := range identities {
		byID[ident.ID] = ident
	}

	for _, profile := range profiles {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		ident, ok := byID[profile.ID]
		if !ok {
			result.MissingIdentity++
			continue
		}
		if !Drifted(profile, ident) {
			continue
		}
		result.Drifted++

		if result.Synced+result.Failed >= j.config.MaxSyncsPerCycle {
			continue
		}
		if err := j.syncer.SyncProfile(ctx, profile.ID); err != nil {
			result.Failed++
			j.logger.Error("クレームの書き戻しに失敗しました",
				slog.String("user_id", profile.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Synced++
	}

	if result.Failed > 0 && result.Synced == 0 {
		j.fail()
	} else {
		j.consecutiveErrors = 0
		j.backoffUntil = time.Time{}
	}

	j.logger.Info("クレーム同期サイクルが完了しました",
		slog.Int("checked", result.Checked),
		slog.Int("drifted", result.Drifted),
		slog.Int("synced", result.Synced),
		slog.Int("failed", result.Failed),
		slog.Int("missing_identity", result.MissingIdentity),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return result, nil
}

// fail は連続エラー回数を進め、閾値に達した場合はバックオフを設定する。
func (j *Job) fail() {
	j.consecutiveErrors++
	if backoff := errorBackoff(j.consecutiveErrors); backoff > 0 {
		j.backoffUntil = j.now().Add(backoff)
		j.logger.Warn("連続エラーによりバックオフを適用します",
			slog.Int("consecutive_errors", j.consecutiveErrors),
			slog.Duration("backoff_duration", backoff),
		)
	}
}

// errorBackoff は連続エラー回数に基づくバックオフ時間を計算する。
// 3回連続: 5分、5回連続: 30分、10回連続: 2時間。
func errorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 2 * time.Hour
	case consecutiveErrors >= 5:
		return 30 * time.Minute
	case consecutiveErrors >= 3:
		return 5 * time.Minute
	default:
		return 0
	}
}

// Drifted はクレームがプロフィールのロール変更に追従していないかを判定する。
// クレームの方が新しい場合（管理者による直接設定）は乖離とみなさない。
func Drifted(profile *model.Profile, ident *model.Identity) bool {
	if !profile.UpdatedAt.After(ident.ClaimsUpdatedAt) {
		return false
	}
	return !claims.Sanitize(profile.Role()).Equal(ident.Claims)
}
