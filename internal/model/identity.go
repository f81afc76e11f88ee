// Package model はドメインモデルを定義する。
package model

import "time"

// RoleClaims は署名済みIDトークンに埋め込まれるロールクレームを表す。
// クレームは認可判定の正とし、プロフィール文書より遅れて反映されることがある。
type RoleClaims struct {
	IsAdmin    bool    `json:"isAdmin" yaml:"isAdmin"`
	IsTechLead bool    `json:"isTechLead" yaml:"isTechLead"`
	TeamID     *string `json:"teamId" yaml:"teamId"`
}

// DefaultRoleClaims は初回サインイン時のロールを返す。
func DefaultRoleClaims() RoleClaims {
	return RoleClaims{}
}

// TeamIDValue はTeamIDを文字列で返す。未設定の場合は空文字列。
func (c RoleClaims) TeamIDValue() string {
	if c.TeamID == nil {
		return ""
	}
	return *c.TeamID
}

// Equal は2つのクレームが同一内容かを判定する。
func (c RoleClaims) Equal(other RoleClaims) bool {
	return c.IsAdmin == other.IsAdmin &&
		c.IsTechLead == other.IsTechLead &&
		c.TeamIDValue() == other.TeamIDValue()
}

// Identity は外部IdPが発行するIDを表す。
// Claimsは常に全体が上書きされる（マージしない）。
type Identity struct {
	ID              string
	Provider        string
	ProviderUserID  string
	Email           string
	DisplayName     string
	PhotoURL        string
	Claims          RoleClaims
	ClaimsUpdatedAt time.Time
	CreatedAt       time.Time
}

// Caller は検証済みIDトークンから復元された呼び出し元を表す。
// ロール判定にはクライアント送信のプロフィールではなくClaimsを使用する。
type Caller struct {
	UID    string
	Email  string
	Name   string
	Claims RoleClaims
}

// StringPtr は文字列のポインタを返す。空文字列の場合はnilを返す。
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
