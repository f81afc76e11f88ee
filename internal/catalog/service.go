// Package catalog はサービス、連絡先、チーム、ユーザーの参照と管理を提供する。
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/accessportal/internal/authz"
	"github.com/hitoshi/accessportal/internal/logger"
	"github.com/hitoshi/accessportal/internal/model"
	"github.com/hitoshi/accessportal/internal/repository"
	"github.com/hitoshi/accessportal/internal/security"
)

// 入力の最大文字数
const (
	maxNameRunes        = 100
	maxDescriptionRunes = 2000
)

// Recorder は認可拒否のメトリクス記録インターフェース。
type Recorder interface {
	RecordAuthzDenied(action string)
}

// ServiceInput はサービス作成・更新の入力。
type ServiceInput struct {
	Name        string
	Description string
}

// ContactInput は連絡先作成・更新の入力。TeamIDが空の場合は全体向け。
type ContactInput struct {
	Name   string
	URL    string
	Order  int
	TeamID string
}

// Catalog はカタログのサービス。
type Catalog struct {
	store     repository.Store
	recorder  Recorder
	sanitizer security.TextSanitizer
	logger    *slog.Logger
}

// NewCatalog はCatalogを生成する。recorderはnil可。
func NewCatalog(store repository.Store, recorder Recorder, sanitizer security.TextSanitizer, l *slog.Logger) *Catalog {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Catalog{
		store:     store,
		recorder:  recorder,
		sanitizer: sanitizer,
		logger:    logger.Component(l, "catalog"),
	}
}

// --- services ---

// ListServices は全サービスを名前順で返す。
func (c *Catalog) ListServices(ctx context.Context, caller *model.Caller) ([]*model.Service, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	services, err := c.store.Repos().Services.List(ctx)
	if err != nil {
		return nil, c.internal("サービス一覧の取得に失敗しました", err)
	}
	return services, nil
}

// AvailableServices は呼び出し元の所属チームで申請可能なサービスを返す。
// 所属が無い場合は空のリストを返す。
func (c *Catalog) AvailableServices(ctx context.Context, caller *model.Caller) ([]*model.Service, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	repos := c.store.Repos()

	teamID, err := c.memberTeamID(ctx, caller)
	if err != nil {
		return nil, err
	}
	if teamID == "" {
		return []*model.Service{}, nil
	}

	team, err := repos.Teams.FindByID(ctx, teamID)
	if err != nil {
		return nil, c.internal("チームの取得に失敗しました", err, slog.String("team_id", teamID))
	}
	if team == nil || len(team.AvailableServiceIDs) == 0 {
		return []*model.Service{}, nil
	}

	services, err := repos.Services.ListByIDs(ctx, team.AvailableServiceIDs)
	if err != nil {
		return nil, c.internal("申請可能サービスの取得に失敗しました", err, slog.String("team_id", teamID))
	}
	return services, nil
}

// CreateService はサービスを作成する。
func (c *Catalog) CreateService(ctx context.Context, caller *model.Caller, in ServiceInput) (*model.Service, error) {
	if err := c.require(caller, authz.ActionManageService); err != nil {
		return nil, err
	}
	svc, err := c.normalizeService(in)
	if err != nil {
		return nil, err
	}

	if err := c.store.Repos().Services.Create(ctx, svc); err != nil {
		return nil, c.internal("サービスの作成に失敗しました", err)
	}
	c.logger.Info("サービスを作成しました", slog.String("service_id", svc.ID), slog.String("caller_uid", caller.UID))
	return svc, nil
}

// UpdateService はサービスの名前と説明を更新する。
func (c *Catalog) UpdateService(ctx context.Context, caller *model.Caller, id string, in ServiceInput) (*model.Service, error) {
	if err := c.require(caller, authz.ActionManageService); err != nil {
		return nil, err
	}
	svc, err := c.normalizeService(in)
	if err != nil {
		return nil, err
	}
	svc.ID = strings.TrimSpace(id)

	if err := c.store.Repos().Services.Update(ctx, svc); err != nil {
		return nil, c.storeError("service", svc.ID, "サービスの更新に失敗しました", err)
	}
	return svc, nil
}

// DeleteService はサービスを削除し、各チームの申請可能サービスからも取り除く。
// サービスへの申請はストアの参照制約により削除される。
func (c *Catalog) DeleteService(ctx context.Context, caller *model.Caller, id string) error {
	if err := c.require(caller, authz.ActionManageService); err != nil {
		return err
	}
	id = strings.TrimSpace(id)

	var detached int
	err := c.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		detached = 0
		svc, err := repos.Services.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if svc == nil {
			return model.NewNotFoundError("service", id)
		}

		teams, err := repos.Teams.List(ctx)
		if err != nil {
			return err
		}
		for _, team := range teams {
			if !team.OffersService(id) {
				continue
			}
			team.AvailableServiceIDs = without(team.AvailableServiceIDs, id)
			if err := repos.Teams.Update(ctx, team); err != nil {
				return err
			}
			detached++
		}
		return repos.Services.Delete(ctx, id)
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		return c.internal("サービスの削除に失敗しました", err, slog.String("service_id", id))
	}

	c.logger.Info("サービスを削除しました",
		slog.String("service_id", id),
		slog.Int("detached_teams", detached),
		slog.String("caller_uid", caller.UID),
	)
	return nil
}

func (c *Catalog) normalizeService(in ServiceInput) (*model.Service, error) {
	name := c.sanitizer.Text(in.Name, maxNameRunes)
	if name == "" {
		return nil, model.NewInvalidArgumentError("name", "サービス名は必須です")
	}
	return &model.Service{
		Name:        name,
		Description: c.sanitizer.Text(in.Description, maxDescriptionRunes),
	}, nil
}

// --- contacts ---

// ListContacts は呼び出し元に見える連絡先をorder順で返す。
// 管理者は全件、それ以外は全体向けと自チーム向けのみ。
func (c *Catalog) ListContacts(ctx context.Context, caller *model.Caller) ([]*model.Contact, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	repos := c.store.Repos()

	if caller.Claims.IsAdmin {
		contacts, err := repos.Contacts.List(ctx)
		if err != nil {
			return nil, c.internal("連絡先一覧の取得に失敗しました", err)
		}
		return contacts, nil
	}

	teamID, err := c.memberTeamID(ctx, caller)
	if err != nil {
		return nil, err
	}
	contacts, err := repos.Contacts.ListVisible(ctx, teamID)
	if err != nil {
		return nil, c.internal("連絡先一覧の取得に失敗しました", err, slog.String("team_id", teamID))
	}
	return contacts, nil
}

// CreateContact は連絡先を作成する。
func (c *Catalog) CreateContact(ctx context.Context, caller *model.Caller, in ContactInput) (*model.Contact, error) {
	if err := c.require(caller, authz.ActionManageContact); err != nil {
		return nil, err
	}
	contact, err := c.normalizeContact(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := c.store.Repos().Contacts.Create(ctx, contact); err != nil {
		return nil, c.internal("連絡先の作成に失敗しました", err)
	}
	c.logger.Info("連絡先を作成しました", slog.String("contact_id", contact.ID), slog.String("caller_uid", caller.UID))
	return contact, nil
}

// UpdateContact は連絡先を更新する。
func (c *Catalog) UpdateContact(ctx context.Context, caller *model.Caller, id string, in ContactInput) (*model.Contact, error) {
	if err := c.require(caller, authz.ActionManageContact); err != nil {
		return nil, err
	}
	contact, err := c.normalizeContact(ctx, in)
	if err != nil {
		return nil, err
	}
	contact.ID = strings.TrimSpace(id)

	if err := c.store.Repos().Contacts.Update(ctx, contact); err != nil {
		return nil, c.storeError("contact", contact.ID, "連絡先の更新に失敗しました", err)
	}
	return contact, nil
}

// DeleteContact は連絡先を削除する。
func (c *Catalog) DeleteContact(ctx context.Context, caller *model.Caller, id string) error {
	if err := c.require(caller, authz.ActionManageContact); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := c.store.Repos().Contacts.Delete(ctx, id); err != nil {
		return c.storeError("contact", id, "連絡先の削除に失敗しました", err)
	}
	return nil
}

func (c *Catalog) normalizeContact(ctx context.Context, in ContactInput) (*model.Contact, error) {
	name := c.sanitizer.Text(in.Name, maxNameRunes)
	if name == "" {
		return nil, model.NewInvalidArgumentError("name", "連絡先名は必須です")
	}
	url := strings.TrimSpace(in.URL)
	if err := security.ValidateLinkURL(url); err != nil {
		return nil, model.NewInvalidArgumentError("url", "URLが不正です")
	}
	if in.Order < 0 {
		return nil, model.NewInvalidArgumentError("order", "表示順は0以上で指定してください")
	}

	teamID := strings.TrimSpace(in.TeamID)
	if teamID != "" {
		team, err := c.store.Repos().Teams.FindByID(ctx, teamID)
		if err != nil {
			return nil, c.internal("チームの取得に失敗しました", err, slog.String("team_id", teamID))
		}
		if team == nil {
			return nil, model.NewInvalidArgumentError("teamId", "指定されたチームが存在しません")
		}
	}

	return &model.Contact{
		Name:   name,
		URL:    url,
		Order:  in.Order,
		TeamID: model.StringPtr(teamID),
	}, nil
}

// --- teams / users ---

// ListTeams は全チームを返す。
func (c *Catalog) ListTeams(ctx context.Context, caller *model.Caller) ([]*model.Team, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	teams, err := c.store.Repos().Teams.List(ctx)
	if err != nil {
		return nil, c.internal("チーム一覧の取得に失敗しました", err)
	}
	return teams, nil
}

// ListUsers はプロフィール一覧を返す。
// 管理者は全件、テックリードは自チームのメンバー、それ以外は自分のみ。
func (c *Catalog) ListUsers(ctx context.Context, caller *model.Caller) ([]*model.Profile, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	profiles := c.store.Repos().Profiles

	switch {
	case caller.Claims.IsAdmin:
		users, err := profiles.List(ctx)
		if err != nil {
			return nil, c.internal("ユーザー一覧の取得に失敗しました", err)
		}
		return users, nil

	case caller.Claims.IsTechLead && caller.Claims.TeamIDValue() != "":
		users, err := profiles.ListByTeamID(ctx, caller.Claims.TeamIDValue())
		if err != nil {
			return nil, c.internal("ユーザー一覧の取得に失敗しました", err)
		}
		return users, nil
	}

	self, err := profiles.FindByID(ctx, caller.UID)
	if err != nil {
		return nil, c.internal("プロフィールの取得に失敗しました", err)
	}
	if self == nil {
		return []*model.Profile{}, nil
	}
	return []*model.Profile{self}, nil
}

// --- helpers ---

// memberTeamID は呼び出し元の所属チームを返す。
// リードはクレームのteamId、それ以外はサーバー側のプロフィールを使用する。
func (c *Catalog) memberTeamID(ctx context.Context, caller *model.Caller) (string, error) {
	if teamID := caller.Claims.TeamIDValue(); teamID != "" {
		return teamID, nil
	}
	profile, err := c.store.Repos().Profiles.FindByID(ctx, caller.UID)
	if err != nil {
		return "", c.internal("プロフィールの取得に失敗しました", err)
	}
	if profile == nil || profile.TeamID == nil {
		return "", nil
	}
	return *profile.TeamID, nil
}

func (c *Catalog) require(caller *model.Caller, action authz.Action) error {
	if err := authz.Require(authz.ActorFromCaller(caller), action, authz.Resource{}); err != nil {
		if c.recorder != nil {
			c.recorder.RecordAuthzDenied(string(action))
		}
		return err
	}
	return nil
}

func requireAuthenticated(caller *model.Caller) error {
	if caller == nil || caller.UID == "" {
		return model.NewUnauthenticatedError()
	}
	return nil
}

// storeError はErrNotFoundをNOT_FOUNDに、それ以外を内部エラーに変換する。
func (c *Catalog) storeError(resource, id, msg string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewNotFoundError(resource, id)
	}
	return c.internal(msg, err, slog.String(resource+"_id", id))
}

func (c *Catalog) internal(msg string, err error, attrs ...any) error {
	c.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
	return model.NewInternalError()
}

func without(ids []string, remove string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != remove {
			out = append(out, id)
		}
	}
	return out
}
