// Package authz は認可判定（ゲート）を提供する。
// 判定は検証済みクレームから作られたActorのみを入力とする純粋関数で、
// プロフィール文書やクライアント送信データは参照しない。
package authz

import "github.com/hitoshi/accessportal/internal/model"

// Action は認可対象の操作を表す。
type Action string

const (
	ActionSubmitRequest  Action = "submit-request"
	ActionApproveRequest Action = "approve-request"
	ActionRejectRequest  Action = "reject-request"
	ActionDeleteRequest  Action = "delete-request"
	ActionViewRequest    Action = "view-request"
	ActionManageTeam     Action = "manage-team"
	ActionManageService  Action = "manage-service"
	ActionManageContact  Action = "manage-contact"
	ActionSetClaims      Action = "set-claims"
	ActionEditUserRole   Action = "edit-user-role"
)

// Actor は呼び出し元のロールスナップショット。
type Actor struct {
	UID        string
	IsAdmin    bool
	IsTechLead bool
	TeamID     string
}

// ActorFromCaller は検証済みトークンの呼び出し元からActorを生成する。
// callerがnilの場合はnilを返す（未認証）。
func ActorFromCaller(caller *model.Caller) *Actor {
	if caller == nil || caller.UID == "" {
		return nil
	}
	return &Actor{
		UID:        caller.UID,
		IsAdmin:    caller.Claims.IsAdmin,
		IsTechLead: caller.Claims.IsTechLead,
		TeamID:     caller.Claims.TeamIDValue(),
	}
}

// Resource は判定対象のリソース属性。操作に応じて必要な項目のみ設定する。
type Resource struct {
	// OwnerID は申請者のID（view-request）。
	OwnerID string
	// OwnerTeamID は申請者の所属チーム（approve/reject/view）。
	OwnerTeamID string
	// ServiceID は申請対象のサービス（submit-request）。
	ServiceID string
	// TeamServiceIDs は申請者チームの申請可能サービス（submit-request）。
	TeamServiceIDs []string
}

// Decision は判定結果。拒否時はReasonに理由が入る。
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Can はactorがresに対してactionを実行できるかを判定する。
// 未認証または未知の操作は拒否する。
func Can(actor *Actor, action Action, res Resource) Decision {
	if actor == nil || actor.UID == "" {
		return deny("unauthenticated")
	}

	switch action {
	case ActionSetClaims, ActionManageTeam, ActionManageService, ActionManageContact,
		ActionEditUserRole, ActionDeleteRequest:
		if actor.IsAdmin {
			return allow()
		}
		return deny("admin role required")

	case ActionApproveRequest, ActionRejectRequest:
		if actor.IsAdmin {
			return allow()
		}
		if leadsOwnerTeam(actor, res) {
			return allow()
		}
		return deny("admin or tech lead of the requester's team required")

	case ActionSubmitRequest:
		if actor.TeamID == "" {
			return deny("team membership required")
		}
		if res.ServiceID == "" || !contains(res.TeamServiceIDs, res.ServiceID) {
			return deny("service is not available to the team")
		}
		return allow()

	case ActionViewRequest:
		if actor.IsAdmin || (res.OwnerID != "" && res.OwnerID == actor.UID) {
			return allow()
		}
		if leadsOwnerTeam(actor, res) {
			return allow()
		}
		return deny("request is outside the caller's scope")
	}

	return deny("unknown action")
}

func leadsOwnerTeam(actor *Actor, res Resource) bool {
	return actor.IsTechLead && actor.TeamID != "" && res.OwnerTeamID == actor.TeamID
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Require はCanを評価し、拒否の場合はPERMISSION_DENIEDエラーを返す。
func Require(actor *Actor, action Action, res Resource) error {
	if d := Can(actor, action, res); !d.Allowed {
		return model.NewPermissionDeniedError(d.Reason).WithDetail("action", string(action))
	}
	return nil
}
