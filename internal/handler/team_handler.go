package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/accessportal/internal/middleware"
	"github.com/hitoshi/accessportal/internal/model"
	"github.com/hitoshi/accessportal/internal/roles"
)

// RoleEngineInterface はチームとユーザーロールの変更に必要なインターフェース。
type RoleEngineInterface interface {
	CreateTeam(ctx context.Context, caller *model.Caller, in roles.TeamInput) (*model.Team, error)
	UpdateTeam(ctx context.Context, caller *model.Caller, teamID string, in roles.TeamInput) (*model.Team, error)
	DeleteTeam(ctx context.Context, caller *model.Caller, teamID string) error
	EditUserRole(ctx context.Context, caller *model.Caller, targetUserID string, role model.RoleClaims) (*model.Profile, error)
}

// DirectoryInterface はチームとユーザーの一覧取得に必要なインターフェース。
type DirectoryInterface interface {
	ListTeams(ctx context.Context, caller *model.Caller) ([]*model.Team, error)
	ListUsers(ctx context.Context, caller *model.Caller) ([]*model.Profile, error)
}

// TeamHandler はチームとユーザーロール管理のHTTPハンドラー。
type TeamHandler struct {
	engine    RoleEngineInterface
	directory DirectoryInterface
	resp      *responder
}

// NewTeamHandler はTeamHandlerを生成する。
func NewTeamHandler(engine RoleEngineInterface, directory DirectoryInterface, resp *responder) *TeamHandler {
	return &TeamHandler{engine: engine, directory: directory, resp: resp}
}

type teamRequest struct {
	Name                string   `json:"name"`
	TechLeadID          string   `json:"techLeadId"`
	AvailableServiceIDs []string `json:"availableServiceIds"`
}

func (t teamRequest) toInput() roles.TeamInput {
	return roles.TeamInput{Name: t.Name, TechLeadID: t.TechLeadID, AvailableServiceIDs: t.AvailableServiceIDs}
}

// ListTeams はチーム一覧を返す。
// GET /api/teams
func (h *TeamHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.directory.ListTeams(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		h.resp.fail(w, r, "teams.list", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(teams, toTeamResponse))
}

// CreateTeam はチームを作成し、テックリードを昇格する。
// POST /api/teams
func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "teams.create", err)
		return
	}
	team, err := h.engine.CreateTeam(r.Context(), middleware.CallerFromContext(r.Context()), req.toInput())
	if err != nil {
		h.resp.fail(w, r, "teams.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTeamResponse(team))
}

// UpdateTeam はチームを更新する。テックリードの交代を含む。
// PUT /api/teams/{id}
func (h *TeamHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "teams.update", err)
		return
	}
	team, err := h.engine.UpdateTeam(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.resp.fail(w, r, "teams.update", err)
		return
	}
	writeJSON(w, http.StatusOK, toTeamResponse(team))
}

// DeleteTeam はチームを削除する。
// DELETE /api/teams/{id}
func (h *TeamHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteTeam(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.resp.fail(w, r, "teams.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers は呼び出し元が閲覧可能なユーザー一覧を返す。
// GET /api/users
func (h *TeamHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		h.resp.fail(w, r, "users.list", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(users, toProfileResponse))
}

// EditUserRole はユーザーのロールフィールドを直接上書きする。
// PUT /api/users/{id}/role
func (h *TeamHandler) EditUserRole(w http.ResponseWriter, r *http.Request) {
	var req claimsBody
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "users.edit_role", err)
		return
	}
	profile, err := h.engine.EditUserRole(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id"), req.toModel())
	if err != nil {
		h.resp.fail(w, r, "users.edit_role", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}
