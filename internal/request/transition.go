package request

import (
	"github.com/hitoshi/accessportal/internal/authz"
	"github.com/hitoshi/accessportal/internal/model"
)

// approvalTargets は承認操作で指定できる遷移先。
var approvalTargets = map[model.RequestStatus]bool{
	model.RequestStatusApprovedByTechLead: true,
	model.RequestStatusApproved:           true,
	model.RequestStatusCompleted:          true,
}

// ParseApprovalTarget は承認の遷移先を検証する。
func ParseApprovalTarget(raw string) (model.RequestStatus, error) {
	target := model.RequestStatus(raw)
	if !approvalTargets[target] {
		return "", model.NewInvalidArgumentError("status", "承認後の状態が不正です").WithDetail("status", raw)
	}
	return target, nil
}

// CheckApproval は承認による遷移が許可されるかを判定する。
// 呼び出し前にゲートでapprove-requestの権限を確認済みであること。
//
//	pending               -> approved_by_tech_lead  テックリードゲート有効時（リードまたは管理者）
//	pending               -> approved               管理者、またはゲート無効時のリード
//	approved_by_tech_lead -> approved | completed   管理者のみ
func CheckApproval(actor *authz.Actor, techLeadGate bool, from, to model.RequestStatus) error {
	switch from {
	case model.RequestStatusPending:
		switch to {
		case model.RequestStatusApprovedByTechLead:
			if !techLeadGate {
				return model.NewInvalidStateError(from, string(to))
			}
			return nil
		case model.RequestStatusApproved:
			if actor.IsAdmin || !techLeadGate {
				return nil
			}
			return model.NewPermissionDeniedError("テックリードの承認は管理者の最終承認待ちになります")
		}
		return model.NewInvalidStateError(from, string(to))

	case model.RequestStatusApprovedByTechLead:
		if to != model.RequestStatusApproved && to != model.RequestStatusCompleted {
			return model.NewInvalidStateError(from, string(to))
		}
		if !actor.IsAdmin {
			return model.NewPermissionDeniedError("最終承認は管理者のみ可能です")
		}
		return nil
	}

	return model.NewInvalidStateError(from, string(to))
}

// CheckReject は却下が許可される状態かを判定する。
func CheckReject(from model.RequestStatus) error {
	if from == model.RequestStatusPending || from == model.RequestStatusApprovedByTechLead {
		return nil
	}
	return model.NewInvalidStateError(from, string(model.RequestStatusRejected))
}
