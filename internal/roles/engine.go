// Package roles はチームとテックリードフラグの整合性を保つロール変更操作を提供する。
//
// チームの作成・更新・削除は、チーム文書とプロフィールのフラグ変更を
// 1つのトランザクションで書き込む。前任リードの降格は、同じトランザクション内で
// 全チームを走査し、他のチームを率いていない場合に限り行う。
// テックリードであり続けるプロフィールのteamIdは、常に自分が率いるチームを指す。
package roles

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/hitoshi/accessportal/internal/authz"
	"github.com/hitoshi/accessportal/internal/logger"
	"github.com/hitoshi/accessportal/internal/model"
	"github.com/hitoshi/accessportal/internal/repository"
	"github.com/hitoshi/accessportal/internal/security"
)

// チーム名の最大文字数
const maxTeamNameRunes = 100

// 操作名（ログ・メトリクスのラベル）
const (
	OpCreateTeam   = "create_team"
	OpUpdateTeam   = "update_team"
	OpDeleteTeam   = "delete_team"
	OpEditUserRole = "edit_user_role"
)

// ClaimsSyncer はプロフィールのロールをクレームへ反映する。
// コミット後に呼ばれ、失敗してもロールバックしない。
type ClaimsSyncer interface {
	SyncProfile(ctx context.Context, profileID string) error
}

// Recorder はロール変更のメトリクス記録インターフェース。
type Recorder interface {
	RecordAuthzDenied(action string)
	RecordRoleMutation(operation, result string)
	RecordLeadOverride()
}

// TeamInput はチーム作成・更新の入力。
type TeamInput struct {
	Name                string
	TechLeadID          string
	AvailableServiceIDs []string
}

// Engine はロール整合性エンジン。
type Engine struct {
	store     repository.Store
	syncer    ClaimsSyncer
	recorder  Recorder
	sanitizer security.TextSanitizer
	logger    *slog.Logger
}

// NewEngine はEngineを生成する。syncerとrecorderはnil可。
func NewEngine(store repository.Store, syncer ClaimsSyncer, recorder Recorder, sanitizer security.TextSanitizer, l *slog.Logger) *Engine {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Engine{
		store:     store,
		syncer:    syncer,
		recorder:  recorder,
		sanitizer: sanitizer,
		logger:    logger.Component(l, "roles"),
	}
}

// CreateTeam はチームを作成し、リードのisTechLeadをtrueにする。
// 1人が複数チームを率いることは許可される。
func (e *Engine) CreateTeam(ctx context.Context, caller *model.Caller, in TeamInput) (*model.Team, error) {
	if err := e.authorize(caller, OpCreateTeam); err != nil {
		return nil, err
	}
	name, leadID, serviceIDs, err := e.normalizeInput(in)
	if err != nil {
		e.record(OpCreateTeam, "rejected")
		return nil, err
	}

	var created *model.Team
	txErr := e.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		lead, err := repos.Profiles.FindByIDForUpdate(ctx, leadID)
		if err != nil {
			return err
		}
		if lead == nil {
			return model.NewInvalidArgumentError("techLeadId", "指定されたテックリードが存在しません")
		}
		if err := checkServicesExist(ctx, repos, serviceIDs); err != nil {
			return err
		}
		teams, err := repos.Teams.List(ctx)
		if err != nil {
			return err
		}

		team := &model.Team{
			Name:                name,
			TechLeadID:          leadID,
			AvailableServiceIDs: serviceIDs,
		}
		if err := repos.Teams.Create(ctx, team); err != nil {
			return err
		}
		if err := repos.Profiles.SetTechLead(ctx, leadID, true); err != nil {
			return err
		}
		led := append([]string{team.ID}, LedTeamIDs(teams, leadID, team.ID)...)
		if err := alignLeadTeam(ctx, repos, lead, led); err != nil {
			return err
		}
		created = team
		return nil
	})
	if err := e.finish(OpCreateTeam, txErr, slog.String("tech_lead_id", leadID)); err != nil {
		return nil, err
	}

	e.logger.Info("チームを作成しました",
		slog.String("team_id", created.ID),
		slog.String("tech_lead_id", leadID),
		slog.String("caller_uid", caller.UID),
	)
	e.syncClaims(ctx, leadID)
	return created, nil
}

// UpdateTeam はチームを更新する。リードが変わる場合は新リードを昇格し、
// 前任リードが他のチームを率いていなければ降格する。
func (e *Engine) UpdateTeam(ctx context.Context, caller *model.Caller, teamID string, in TeamInput) (*model.Team, error) {
	if err := e.authorize(caller, OpUpdateTeam); err != nil {
		return nil, err
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		e.record(OpUpdateTeam, "rejected")
		return nil, model.NewInvalidArgumentError("id", "チームIDは必須です")
	}
	name, leadID, serviceIDs, err := e.normalizeInput(in)
	if err != nil {
		e.record(OpUpdateTeam, "rejected")
		return nil, err
	}

	var (
		updated *model.Team
		changed []string
	)
	txErr := e.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		// 再試行時に前回の試行結果を持ち越さない
		changed = nil

		team, err := repos.Teams.FindByIDForUpdate(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return model.NewNotFoundError("team", teamID)
		}
		previousLeadID := team.TechLeadID

		var lead *model.Profile
		if leadID != previousLeadID {
			lead, err = repos.Profiles.FindByIDForUpdate(ctx, leadID)
			if err != nil {
				return err
			}
			if lead == nil {
				return model.NewInvalidArgumentError("techLeadId", "指定されたテックリードが存在しません")
			}
		}
		if err := checkServicesExist(ctx, repos, serviceIDs); err != nil {
			return err
		}

		// 全チームをトランザクション内で1回だけ読み込み、降格判定に使う
		teams, err := repos.Teams.List(ctx)
		if err != nil {
			return err
		}

		team.Name = name
		team.TechLeadID = leadID
		team.AvailableServiceIDs = serviceIDs
		if err := repos.Teams.Update(ctx, team); err != nil {
			return err
		}

		if leadID == previousLeadID {
			updated = team
			return nil
		}

		if err := repos.Profiles.SetTechLead(ctx, leadID, true); err != nil {
			return err
		}
		led := append([]string{teamID}, LedTeamIDs(teams, leadID, teamID)...)
		if err := alignLeadTeam(ctx, repos, lead, led); err != nil {
			return err
		}
		changed = append(changed, leadID)

		if err := releaseLead(ctx, repos, teams, previousLeadID, teamID); err != nil {
			return err
		}
		changed = append(changed, previousLeadID)
		updated = team
		return nil
	})
	if err := e.finish(OpUpdateTeam, txErr, slog.String("team_id", teamID)); err != nil {
		return nil, err
	}

	e.logger.Info("チームを更新しました",
		slog.String("team_id", teamID),
		slog.String("tech_lead_id", leadID),
		slog.Int("role_changes", len(changed)),
		slog.String("caller_uid", caller.UID),
	)
	e.syncClaims(ctx, changed...)
	return updated, nil
}

// DeleteTeam はチームを削除し、リードが他のチームを率いていなければ降格する。
// 他のチームを率いている場合は、リードのteamIdをそのチームへ移す。
// 所属メンバーのteamIdは変更しない。
func (e *Engine) DeleteTeam(ctx context.Context, caller *model.Caller, teamID string) error {
	if err := e.authorize(caller, OpDeleteTeam); err != nil {
		return err
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		e.record(OpDeleteTeam, "rejected")
		return model.NewInvalidArgumentError("id", "チームIDは必須です")
	}

	var leadID string
	txErr := e.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		leadID = ""

		team, err := repos.Teams.FindByIDForUpdate(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return model.NewNotFoundError("team", teamID)
		}

		teams, err := repos.Teams.List(ctx)
		if err != nil {
			return err
		}

		if err := repos.Teams.Delete(ctx, teamID); err != nil {
			return err
		}
		if err := releaseLead(ctx, repos, teams, team.TechLeadID, teamID); err != nil {
			return err
		}
		leadID = team.TechLeadID
		return nil
	})
	if err := e.finish(OpDeleteTeam, txErr, slog.String("team_id", teamID)); err != nil {
		return err
	}

	e.logger.Info("チームを削除しました",
		slog.String("team_id", teamID),
		slog.String("tech_lead_id", leadID),
		slog.String("caller_uid", caller.UID),
	)
	e.syncClaims(ctx, leadID)
	return nil
}

// EditUserRole は管理者がプロフィールのロールフィールドを直接上書きする。
// チームのtechLeadId参照は再検証しない（管理者による上書き）。
// チームから参照中のリードを降格した場合は警告ログを出す。
func (e *Engine) EditUserRole(ctx context.Context, caller *model.Caller, targetUserID string, role model.RoleClaims) (*model.Profile, error) {
	if err := e.authorize(caller, OpEditUserRole); err != nil {
		return nil, err
	}

	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		e.record(OpEditUserRole, "rejected")
		return nil, model.NewInvalidArgumentError("id", "ユーザーIDは必須です")
	}
	teamID := strings.TrimSpace(role.TeamIDValue())
	if role.IsTechLead && teamID == "" {
		e.record(OpEditUserRole, "rejected")
		return nil, model.NewTechLeadRequiresTeamError()
	}
	role.TeamID = model.StringPtr(teamID)

	var (
		profile    *model.Profile
		stillLeads []string
	)
	txErr := e.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		stillLeads = nil

		current, err := repos.Profiles.FindByIDForUpdate(ctx, targetUserID)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NewNotFoundError("user", targetUserID)
		}
		if teamID != "" {
			team, err := repos.Teams.FindByID(ctx, teamID)
			if err != nil {
				return err
			}
			if team == nil {
				return model.NewInvalidArgumentError("teamId", "指定されたチームが存在しません")
			}
		}

		if current.IsTechLead && !role.IsTechLead {
			teams, err := repos.Teams.List(ctx)
			if err != nil {
				return err
			}
			for _, t := range teams {
				if t.TechLeadID == targetUserID {
					stillLeads = append(stillLeads, t.ID)
				}
			}
		}

		if err := repos.Profiles.UpdateRole(ctx, targetUserID, role); err != nil {
			return err
		}
		current.IsAdmin = role.IsAdmin
		current.IsTechLead = role.IsTechLead
		current.TeamID = role.TeamID
		profile = current
		return nil
	})
	if err := e.finish(OpEditUserRole, txErr, slog.String("target_uid", targetUserID)); err != nil {
		return nil, err
	}

	if len(stillLeads) > 0 {
		e.logger.Warn("チームから参照中のテックリードを直接降格しました",
			slog.String("target_uid", targetUserID),
			slog.Any("team_ids", stillLeads),
			slog.String("caller_uid", caller.UID),
		)
		if e.recorder != nil {
			e.recorder.RecordLeadOverride()
		}
	}
	e.logger.Info("ユーザーのロールを更新しました",
		slog.String("target_uid", targetUserID),
		slog.Bool("is_admin", role.IsAdmin),
		slog.Bool("is_tech_lead", role.IsTechLead),
		slog.String("team_id", teamID),
		slog.String("caller_uid", caller.UID),
	)
	e.syncClaims(ctx, targetUserID)
	return profile, nil
}

// LedTeamIDs はprofileIDが率いるチームのうち、excludeTeamID以外のIDを返す。
func LedTeamIDs(teams []*model.Team, profileID, excludeTeamID string) []string {
	var ids []string
	for _, t := range teams {
		if t.ID != excludeTeamID && t.TechLeadID == profileID {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// alignLeadTeam はリードのteamIdがled（率いるチーム）のいずれかを指すようにする。
// 既に率いるチームを指していれば変更せず、そうでなければled[0]を設定する。
func alignLeadTeam(ctx context.Context, repos *repository.Repositories, lead *model.Profile, led []string) error {
	if lead == nil || len(led) == 0 {
		return nil
	}
	if slices.Contains(led, lead.Role().TeamIDValue()) {
		return nil
	}
	return repos.Profiles.SetTeam(ctx, lead.ID, led[0])
}

// releaseLead はteamIDのリードから外れたprofileIDを処理する。
// 他に率いるチームがなければ降格し、あればteamIdをそのチームに合わせる。
// teamsはteamIDの変更前にトランザクション内で読み込んだ全チーム。
func releaseLead(ctx context.Context, repos *repository.Repositories, teams []*model.Team, profileID, teamID string) error {
	led := LedTeamIDs(teams, profileID, teamID)
	if len(led) == 0 {
		return repos.Profiles.SetTechLead(ctx, profileID, false)
	}
	profile, err := repos.Profiles.FindByIDForUpdate(ctx, profileID)
	if err != nil {
		return err
	}
	return alignLeadTeam(ctx, repos, profile, led)
}

// authorize はゲートで管理者権限を確認する。
func (e *Engine) authorize(caller *model.Caller, op string) error {
	action := authz.ActionManageTeam
	if op == OpEditUserRole {
		action = authz.ActionEditUserRole
	}
	if err := authz.Require(authz.ActorFromCaller(caller), action, authz.Resource{}); err != nil {
		if e.recorder != nil {
			e.recorder.RecordAuthzDenied(string(action))
		}
		e.record(op, "denied")
		return err
	}
	return nil
}

// normalizeInput はチーム入力を検証・正規化する。書き込み前に呼ぶ。
func (e *Engine) normalizeInput(in TeamInput) (string, string, []string, error) {
	name := e.sanitizer.Text(in.Name, maxTeamNameRunes)
	if name == "" {
		return "", "", nil, model.NewInvalidArgumentError("name", "チーム名は必須です")
	}
	leadID := strings.TrimSpace(in.TechLeadID)
	if leadID == "" {
		return "", "", nil, model.NewInvalidArgumentError("techLeadId", "テックリードは必須です")
	}
	return name, leadID, uniqueIDs(in.AvailableServiceIDs), nil
}

// uniqueIDs は空要素を除き、順序を保って重複を取り除く。
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// checkServicesExist は全サービスIDが存在するかをin検索で確認する。
func checkServicesExist(ctx context.Context, repos *repository.Repositories, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	services, err := repos.Services.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(services) != len(ids) {
		found := make(map[string]struct{}, len(services))
		for _, s := range services {
			found[s.ID] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				return model.NewInvalidArgumentError("availableServiceIds", "存在しないサービスが含まれています").
					WithDetail("service_id", id)
			}
		}
	}
	return nil
}

// finish はトランザクション結果をメトリクスに記録し、呼び出し元へ返すエラーに変換する。
// 業務ルール違反はそのまま返し、それ以外は原因をログに残して汎用の拒否エラーにする。
func (e *Engine) finish(op string, err error, attrs ...any) error {
	if err == nil {
		e.record(op, "success")
		return nil
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		e.record(op, "rejected")
		return apiErr
	}

	e.record(op, "aborted")
	e.logger.Error("ロール変更のトランザクションが中断されました",
		append([]any{slog.String("operation", op), slog.String("error", err.Error())}, attrs...)...,
	)
	return model.NewTransactionDeniedError()
}

func (e *Engine) record(op, result string) {
	if e.recorder != nil {
		e.recorder.RecordRoleMutation(op, result)
	}
}

// syncClaims はコミット済みのロール変更をクレームへ反映する。
// 失敗はログのみ（定期同期ワーカーが差分を解消する）。
func (e *Engine) syncClaims(ctx context.Context, profileIDs ...string) {
	if e.syncer == nil {
		return
	}
	seen := make(map[string]struct{}, len(profileIDs))
	for _, id := range profileIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if err := e.syncer.SyncProfile(ctx, id); err != nil {
			e.logger.Warn("クレームの同期に失敗しました",
				slog.String("profile_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
}
