package model

import "time"

// Profile はIDごとに1件存在するプロフィール文書を表す。
// クレームの内容をミラーし、表示用の非正規化フィールドを持つ。
type Profile struct {
	ID         string
	Name       string
	Email      string
	PhotoURL   string
	IsAdmin    bool
	IsTechLead bool
	TeamID     *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Role はプロフィールのロールフィールドをクレーム形式で返す。
func (p *Profile) Role() RoleClaims {
	return RoleClaims{
		IsAdmin:    p.IsAdmin,
		IsTechLead: p.IsTechLead,
		TeamID:     p.TeamID,
	}
}

// Team はテックリード1名と申請可能サービスの集合を持つ組織単位を表す。
type Team struct {
	ID                  string
	Name                string
	TechLeadID          string
	AvailableServiceIDs []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OffersService はチームのメンバーが指定サービスを申請可能かを判定する。
func (t *Team) OffersService(serviceID string) bool {
	for _, id := range t.AvailableServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// Service は申請対象となる組織内サービスを表す。
type Service struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Contact は連絡先リンクを表す。TeamIDがnilの場合は全体向け。
type Contact struct {
	ID        string
	Name      string
	URL       string
	Order     int
	TeamID    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
