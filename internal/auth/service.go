// Package auth はOAuthサインインとIDトークンの発行を提供する。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/accessportal/internal/logger"
	"github.com/hitoshi/accessportal/internal/model"
	"github.com/hitoshi/accessportal/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	PhotoURL       string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// TokenMinter はidentityの現在のクレームを埋め込んだIDトークンを発行する。
type TokenMinter interface {
	Mint(ident *model.Identity) (string, time.Time, error)
}

// SignInResult はサインインまたはトークン再発行の結果。
type SignInResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  *model.Identity
	Profile   *model.Profile
	// Created は今回のサインインでidentityが新規作成されたかを示す。
	Created bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth  OAuthProvider
	store  repository.Store
	minter TokenMinter
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, store repository.Store, minter TokenMinter, l *slog.Logger) *Service {
	return &Service{
		oauth:  oauth,
		store:  store,
		minter: minter,
		logger: logger.Component(l, "auth"),
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、IDトークンを発行する。
// 初回サインインではidentity（既定クレーム）とプロフィールを同一トランザクションで作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*SignInResult, error) {
	if code == "" {
		return nil, model.NewInvalidArgumentError("code", "authorization code is required")
	}

	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Warn("OAuthコード交換に失敗", slog.String("error", err.Error()))
		if errors.Is(err, ErrEmailNotVerified) {
			return nil, model.NewPermissionDeniedError("email address is not verified")
		}
		return nil, model.NewUnauthenticatedError()
	}

	ident, err := s.store.Repos().Identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, s.internal("identity lookup failed", err)
	}

	created := false
	if ident == nil {
		ident, created, err = s.createAccount(ctx, info)
		if err != nil {
			return nil, err
		}
	}

	profile, err := s.store.Repos().Profiles.FindByID(ctx, ident.ID)
	if err != nil {
		return nil, s.internal("profile lookup failed", err)
	}

	result, err := s.mint(ident, profile)
	if err != nil {
		return nil, err
	}
	result.Created = created

	s.logger.Info("サインイン",
		slog.String("user_id", ident.ID),
		slog.String("provider", info.Provider),
		slog.Bool("created", created),
	)
	return result, nil
}

// createAccount は初回サインインのidentityとプロフィールを作成する。
// 同一IdPユーザーの同時サインインで作成が競合した場合は既存identityを返す。
func (s *Service) createAccount(ctx context.Context, info *OAuthUserInfo) (*model.Identity, bool, error) {
	ident := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		Email:          info.Email,
		DisplayName:    info.Name,
		PhotoURL:       info.PhotoURL,
		Claims:         model.DefaultRoleClaims(),
	}

	err := s.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		if err := repos.Identities.Create(ctx, ident); err != nil {
			return err
		}
		role := model.DefaultRoleClaims()
		return repos.Profiles.Create(ctx, &model.Profile{
			ID:         ident.ID,
			Name:       info.Name,
			Email:      info.Email,
			PhotoURL:   info.PhotoURL,
			IsAdmin:    role.IsAdmin,
			IsTechLead: role.IsTechLead,
			TeamID:     role.TeamID,
		})
	})
	if err == nil {
		return ident, true, nil
	}

	existing, lookupErr := s.store.Repos().Identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if lookupErr == nil && existing != nil {
		s.logger.Info("同時サインインで作成済みのidentityを使用", slog.String("user_id", existing.ID))
		return existing, false, nil
	}
	return nil, false, s.internal("account creation failed", err)
}

// Refresh はidentityストアから最新のクレームを読み直してトークンを再発行する。
// ロール変更を待たずに即時反映させるための強制リフレッシュ。
func (s *Service) Refresh(ctx context.Context, uid string) (*SignInResult, error) {
	if uid == "" {
		return nil, model.NewUnauthenticatedError()
	}
	ident, err := s.store.Repos().Identities.FindByID(ctx, uid)
	if err != nil {
		return nil, s.internal("identity lookup failed", err)
	}
	if ident == nil {
		return nil, model.NewUnauthenticatedError()
	}
	profile, err := s.store.Repos().Profiles.FindByID(ctx, uid)
	if err != nil {
		return nil, s.internal("profile lookup failed", err)
	}
	return s.mint(ident, profile)
}

// Me は呼び出し元のプロフィールを返す。
func (s *Service) Me(ctx context.Context, caller *model.Caller) (*model.Profile, error) {
	if caller == nil || caller.UID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	profile, err := s.store.Repos().Profiles.FindByID(ctx, caller.UID)
	if err != nil {
		return nil, s.internal("profile lookup failed", err)
	}
	if profile == nil {
		return nil, model.NewNotFoundError("user", caller.UID)
	}
	return profile, nil
}

func (s *Service) mint(ident *model.Identity, profile *model.Profile) (*SignInResult, error) {
	token, expiresAt, err := s.minter.Mint(ident)
	if err != nil {
		return nil, s.internal("token mint failed", err)
	}
	return &SignInResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  ident,
		Profile:   profile,
	}, nil
}

func (s *Service) internal(msg string, err error) error {
	s.logger.Error(msg, slog.String("error", err.Error()))
	return model.NewInternalError()
}
