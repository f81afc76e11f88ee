// Package request はアクセス申請のライフサイクル（申請・承認・却下・削除・一覧）を提供する。
package request

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

// DefaultRejectNotes は却下理由が省略された場合に記録される文字列。
const DefaultRejectNotes = "No notes provided"

// 却下理由の最大文字数
const maxNotesRunes = 1000

// Config は申請ライフサイクルの設定。
type Config struct {
	// TechLeadGate が有効な場合、テックリードの承認はapproved_by_tech_leadを経由する。
	TechLeadGate bool
}

// Recorder は申請操作のメトリクス記録インターフェース。
type Recorder interface {
	RecordAuthzDenied(action string)
	RecordRequestTransition(status string)
}

// Service はアクセス申請のサービス。
type Service struct {
	store     repository.Store
	cfg       Config
	recorder  Recorder
	sanitizer security.TextSanitizer
	logger    *slog.Logger
}

// NewService はServiceを生成する。recorderはnil可。
func NewService(store repository.Store, cfg Config, recorder Recorder, sanitizer security.TextSanitizer, l *slog.Logger) *Service {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &Service{
		store:     store,
		cfg:       cfg,
		recorder:  recorder,
		sanitizer: sanitizer,
		logger:    logger.Component(l, "request"),
	}
}

// Submit は呼び出し元のアクセス申請を作成する。
// 未完了の申請が既にある場合は書き込まずにDUPLICATE_REQUESTを返す。
func (s *Service) Submit(ctx context.Context, caller *model.Caller, serviceID string) (*model.AccessRequest, error) {
	actor := authz.ActorFromCaller(caller)
	if actor == nil {
		return nil, s.deny(authz.ActionSubmitRequest, authz.Can(nil, authz.ActionSubmitRequest, authz.Resource{}))
	}
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return nil, model.NewInvalidArgumentError("serviceId", "サービスIDは必須です")
	}

	repos := s.store.Repos()
	profile, err := repos.Profiles.FindByID(ctx, actor.UID)
	if err != nil {
		return nil, s.internal("申請者プロフィールの取得に失敗しました", err, slog.String("user_id", actor.UID))
	}
	if profile == nil {
		return nil, model.NewNotFoundError("user", actor.UID)
	}

	// リード以外のクレームはteamIdを持たないため、所属はサーバー側のプロフィールで補う
	if actor.TeamID == "" && profile.TeamID != nil {
		actor.TeamID = *profile.TeamID
	}

	var teamServices []string
	if actor.TeamID != "" {
		team, err := repos.Teams.FindByID(ctx, actor.TeamID)
		if err != nil {
			return nil, s.internal("チームの取得に失敗しました", err, slog.String("team_id", actor.TeamID))
		}
		if team != nil {
			teamServices = team.AvailableServiceIDs
		}
	}

	res := authz.Resource{ServiceID: serviceID, TeamServiceIDs: teamServices}
	if d := authz.Can(actor, authz.ActionSubmitRequest, res); !d.Allowed {
		return nil, s.deny(authz.ActionSubmitRequest, d)
	}

	// 書き込み前の重複確認
	existing, err := repos.Requests.List(ctx, repository.RequestFilter{UserID: actor.UID})
	if err != nil {
		return nil, s.internal("既存申請の取得に失敗しました", err, slog.String("user_id", actor.UID))
	}
	if open := findOpen(existing, serviceID); open != nil {
		return nil, model.NewDuplicateRequestError(open.Status)
	}

	req := &model.AccessRequest{UserID: actor.UID, ServiceID: serviceID}
	if err := repos.Requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicateOpenRequest) {
			// 同時申請で一意制約に違反した場合
			status := model.RequestStatusPending
			if latest, listErr := repos.Requests.List(ctx, repository.RequestFilter{UserID: actor.UID}); listErr == nil {
				if open := findOpen(latest, serviceID); open != nil {
					status = open.Status
				}
			}
			return nil, model.NewDuplicateRequestError(status)
		}
		return nil, s.internal("申請の作成に失敗しました", err,
			slog.String("user_id", actor.UID),
			slog.String("service_id", serviceID),
		)
	}

	s.transitioned(req.Status)
	s.logger.Info("アクセス申請を作成しました",
		slog.String("request_id", req.ID),
		slog.String("user_id", actor.UID),
		slog.String("service_id", serviceID),
	)
	return req, nil
}

// Approve は申請を承認し、指定の状態へ遷移させる。
func (s *Service) Approve(ctx context.Context, caller *model.Caller, requestID, target string) (*model.AccessRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, model.NewInvalidArgumentError("id", "申請IDは必須です")
	}
	to, err := ParseApprovalTarget(strings.TrimSpace(target))
	if err != nil {
		return nil, err
	}

	actor := authz.ActorFromCaller(caller)
	var resolved *model.AccessRequest
	err = s.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		req, err := repos.Requests.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return model.NewNotFoundError("request", requestID)
		}

		res := authz.Resource{OwnerID: req.UserID, OwnerTeamID: derefString(req.OwnerTeamID)}
		if d := authz.Can(actor, authz.ActionApproveRequest, res); !d.Allowed {
			return s.deny(authz.ActionApproveRequest, d)
		}
		if err := CheckApproval(actor, s.cfg.TechLeadGate, req.Status, to); err != nil {
			return err
		}

		resolved, err = repos.Requests.Resolve(ctx, requestID, to, actor.UID, nil)
		return err
	})
	if err != nil {
		return nil, s.result("申請の承認に失敗しました", err, slog.String("request_id", requestID))
	}

	s.transitioned(to)
	s.logger.Info("アクセス申請を承認しました",
		slog.String("request_id", requestID),
		slog.String("status", string(to)),
		slog.String("resolved_by", actor.UID),
	)
	return resolved, nil
}

// Reject は申請を却下する。notesが省略または空の場合は既定の文言を記録する。
func (s *Service) Reject(ctx context.Context, caller *model.Caller, requestID string, notes *string) (*model.AccessRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, model.NewInvalidArgumentError("id", "申請IDは必須です")
	}

	text := DefaultRejectNotes
	if notes != nil {
		if cleaned := s.sanitizer.Text(*notes, maxNotesRunes); cleaned != "" {
			text = cleaned
		}
	}

	actor := authz.ActorFromCaller(caller)
	var resolved *model.AccessRequest
	err := s.store.RunInTx(ctx, func(repos *repository.Repositories) error {
		req, err := repos.Requests.FindByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return model.NewNotFoundError("request", requestID)
		}

		res := authz.Resource{OwnerID: req.UserID, OwnerTeamID: derefString(req.OwnerTeamID)}
		if d := authz.Can(actor, authz.ActionRejectRequest, res); !d.Allowed {
			return s.deny(authz.ActionRejectRequest, d)
		}
		if err := CheckReject(req.Status); err != nil {
			return err
		}

		resolved, err = repos.Requests.Resolve(ctx, requestID, model.RequestStatusRejected, actor.UID, &text)
		return err
	})
	if err != nil {
		return nil, s.result("申請の却下に失敗しました", err, slog.String("request_id", requestID))
	}

	s.transitioned(model.RequestStatusRejected)
	s.logger.Info("アクセス申請を却下しました",
		slog.String("request_id", requestID),
		slog.String("resolved_by", actor.UID),
	)
	return resolved, nil
}

// Delete は管理者が申請を物理削除する。状態は問わない。
func (s *Service) Delete(ctx context.Context, caller *model.Caller, requestID string) error {
	actor := authz.ActorFromCaller(caller)
	if d := authz.Can(actor, authz.ActionDeleteRequest, authz.Resource{}); !d.Allowed {
		return s.deny(authz.ActionDeleteRequest, d)
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return model.NewInvalidArgumentError("id", "申請IDは必須です")
	}

	if err := s.store.Repos().Requests.Delete(ctx, requestID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewNotFoundError("request", requestID)
		}
		return s.internal("申請の削除に失敗しました", err, slog.String("request_id", requestID))
	}

	s.logger.Info("アクセス申請を削除しました",
		slog.String("request_id", requestID),
		slog.String("caller_uid", actor.UID),
	)
	return nil
}

// List は呼び出し元に見える申請をrequestedAt降順で返す。
// 利用者は自分の申請、テックリードは自分と自チームのメンバーの申請、管理者は全件。
// クエリで範囲を絞ったうえで、各行をゲートで再検証する。
func (s *Service) List(ctx context.Context, caller *model.Caller, status string) ([]*model.AccessRequest, error) {
	actor := authz.ActorFromCaller(caller)
	if actor == nil {
		return nil, s.deny(authz.ActionViewRequest, authz.Can(nil, authz.ActionViewRequest, authz.Resource{}))
	}

	filter := VisibilityFilter(actor)
	if status = strings.TrimSpace(status); status != "" {
		st := model.RequestStatus(status)
		if !st.IsValid() {
			return nil, model.NewInvalidArgumentError("status", "状態が不正です").WithDetail("status", status)
		}
		filter.Status = st
	}

	rows, err := s.store.Repos().Requests.List(ctx, filter)
	if err != nil {
		return nil, s.internal("申請一覧の取得に失敗しました", err, slog.String("user_id", actor.UID))
	}

	out := make([]*model.AccessRequest, 0, len(rows))
	for _, row := range rows {
		res := authz.Resource{OwnerID: row.UserID, OwnerTeamID: derefString(row.OwnerTeamID)}
		if !authz.Can(actor, authz.ActionViewRequest, res).Allowed {
			s.logger.Warn("表示範囲外の申請を除外しました",
				slog.String("request_id", row.ID),
				slog.String("user_id", actor.UID),
			)
			continue
		}
		req := row.AccessRequest
		out = append(out, &req)
	}
	return out, nil
}

// VisibilityFilter はActorの表示範囲に対応するクエリ条件を返す。
func VisibilityFilter(actor *authz.Actor) repository.RequestFilter {
	switch {
	case actor.IsAdmin:
		return repository.RequestFilter{}
	case actor.IsTechLead && actor.TeamID != "":
		return repository.RequestFilter{UserID: actor.UID, OwnerTeamID: actor.TeamID}
	default:
		return repository.RequestFilter{UserID: actor.UID}
	}
}

func findOpen(requests []*repository.RequestWithOwner, serviceID string) *repository.RequestWithOwner {
	for _, r := range requests {
		if r.ServiceID == serviceID && r.Status.IsOpen() {
			return r
		}
	}
	return nil
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (s *Service) deny(action authz.Action, d authz.Decision) error {
	if s.recorder != nil {
		s.recorder.RecordAuthzDenied(string(action))
	}
	return model.NewPermissionDeniedError(d.Reason).WithDetail("action", string(action))
}

func (s *Service) transitioned(status model.RequestStatus) {
	if s.recorder != nil {
		s.recorder.RecordRequestTransition(string(status))
	}
}

// result はトランザクションのエラーを呼び出し元向けに変換する。
func (s *Service) result(msg string, err error, attrs ...any) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return s.internal(msg, err, attrs...)
}

// internal は原因をログに記録し、詳細を含まない内部エラーを返す。
func (s *Service) internal(msg string, err error, attrs ...any) error {
	s.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
	return model.NewInternalError()
}
