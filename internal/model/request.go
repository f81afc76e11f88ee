package model

import "time"

// RequestStatus はアクセス申請の状態を表す。
type RequestStatus string

const (
	// RequestStatusPending は申請直後の状態。
	RequestStatusPending RequestStatus = "pending"
	// RequestStatusApprovedByTechLead はテックリード承認済みで管理者の最終承認待ちの状態。
	RequestStatusApprovedByTechLead RequestStatus = "approved_by_tech_lead"
	// RequestStatusApproved は承認済み。
	RequestStatusApproved RequestStatus = "approved"
	// RequestStatusRejected は却下済み（終端）。
	RequestStatusRejected RequestStatus = "rejected"
	// RequestStatusCompleted は付与完了（終端）。
	RequestStatusCompleted RequestStatus = "completed"
)

// OpenRequestStatuses は同一ユーザー・同一サービスで1件しか存在できない状態の一覧。
var OpenRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusApprovedByTechLead,
	RequestStatusApproved,
}

// IsOpen は重複申請判定の対象となる状態かを返す。
func (s RequestStatus) IsOpen() bool {
	for _, open := range OpenRequestStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// IsTerminal はこれ以上遷移できない状態かを返す。
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCompleted
}

// IsValid は定義済みの状態かを返す。
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApprovedByTechLead, RequestStatusApproved,
		RequestStatusRejected, RequestStatusCompleted:
		return true
	}
	return false
}

// AccessRequest はユーザーのサービス利用申請を表す。
// UserIDは作成後に変更されない。
type AccessRequest struct {
	ID          string
	UserID      string
	ServiceID   string
	Status      RequestStatus
	RequestedAt time.Time
	ResolvedAt  *time.Time
	ResolvedBy  *string
	Notes       *string
}
