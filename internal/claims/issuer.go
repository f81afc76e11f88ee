// Package claims はIDに付与するロールクレームの書き込みを提供する。
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/accessportal/internal/logger"
	"github.com/hitoshi/accessportal/internal/model"
	"github.com/hitoshi/accessportal/internal/repository"
)

// SyncRecorder はクレーム同期結果の記録インターフェース（メトリクス用）。
type SyncRecorder interface {
	RecordClaimsSync(result string)
}

// Issuer はロールクレームを検証してIdP側のidentityに書き込む。
type Issuer struct {
	identities repository.IdentityRepository
	profiles   repository.ProfileRepository
	recorder   SyncRecorder
	logger     *slog.Logger
}

// NewIssuer はIssuerを生成する。recorderはnil可。
func NewIssuer(identities repository.IdentityRepository, profiles repository.ProfileRepository, recorder SyncRecorder, l *slog.Logger) *Issuer {
	return &Issuer{
		identities: identities,
		profiles:   profiles,
		recorder:   recorder,
		logger:     logger.Component(l, "claims_issuer"),
	}
}

// SetClaims は管理者の呼び出しでtargetUIDのクレーム全体を上書きする。
// 成功時はUIに表示するメッセージを返す。
func (i *Issuer) SetClaims(ctx context.Context, caller *model.Caller, targetUID string, requested *model.RoleClaims) (string, error) {
	if caller == nil || !caller.Claims.IsAdmin {
		return "", model.NewPermissionDeniedError("クレームの設定は管理者のみ可能です")
	}

	uid := strings.TrimSpace(targetUID)
	if uid == "" {
		return "", model.NewInvalidArgumentError("uid", "uidは必須です")
	}
	if requested == nil {
		return "", model.NewInvalidArgumentError("claims", "claimsはオブジェクトで指定してください")
	}

	applied, err := i.Apply(ctx, uid, *requested)
	if err != nil {
		return "", err
	}

	i.logger.Info("クレームを更新しました",
		slog.String("caller_uid", caller.UID),
		slog.String("target_uid", uid),
		slog.Bool("is_admin", applied.IsAdmin),
		slog.Bool("is_tech_lead", applied.IsTechLead),
		slog.String("team_id", applied.TeamIDValue()),
	)
	return fmt.Sprintf("Custom claims set for user %s", uid), nil
}

// Apply は呼び出し元の権限確認なしでクレームを検証・正規化して書き込む。
// オフラインの初期管理者付与とプロフィールからの再同期で使用する。
func (i *Issuer) Apply(ctx context.Context, uid string, requested model.RoleClaims) (model.RoleClaims, error) {
	if requested.IsTechLead && strings.TrimSpace(requested.TeamIDValue()) == "" {
		return model.RoleClaims{}, model.NewTechLeadRequiresTeamError()
	}

	sanitized := Sanitize(requested)
	if err := i.identities.ReplaceClaims(ctx, uid, sanitized); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.RoleClaims{}, model.NewInvalidArgumentError("uid", "指定されたユーザーが存在しません")
		}
		i.logger.Error("クレームの書き込みに失敗しました",
			slog.String("target_uid", uid),
			slog.String("error", err.Error()),
		)
		return model.RoleClaims{}, model.NewInternalError()
	}
	return sanitized, nil
}

// Sanitize はテックリードでない場合にteamIdを破棄したクレームを返す。
func Sanitize(requested model.RoleClaims) model.RoleClaims {
	out := model.RoleClaims{
		IsAdmin:    requested.IsAdmin,
		IsTechLead: requested.IsTechLead,
	}
	if requested.IsTechLead {
		out.TeamID = model.StringPtr(strings.TrimSpace(requested.TeamIDValue()))
	}
	return out
}

// SyncProfile はプロフィールのロールフィールドをクレームへ投影する。
// ロール変更のコミット後に呼ばれ、クレームの遅延を解消する。
func (i *Issuer) SyncProfile(ctx context.Context, profileID string) error {
	profile, err := i.profiles.FindByID(ctx, profileID)
	if err != nil {
		i.record("error")
		return fmt.Errorf("failed to load profile for claims sync: %w", err)
	}
	if profile == nil {
		i.record("skipped")
		return nil
	}

	if _, err := i.Apply(ctx, profile.ID, profile.Role()); err != nil {
		i.record("error")
		return fmt.Errorf("failed to sync claims for %s: %w", profile.ID, err)
	}
	i.record("synced")
	return nil
}

func (i *Issuer) record(result string) {
	if i.recorder != nil {
		i.recorder.RecordClaimsSync(result)
	}
}
