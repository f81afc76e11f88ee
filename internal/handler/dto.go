package handler

import (
	"time"

	"github.com/hitoshi/accessportal/internal/model"
)

// claimsBody はロールクレームのJSON表現。
type claimsBody struct {
	IsAdmin    bool    `json:"isAdmin"`
	IsTechLead bool    `json:"isTechLead"`
	TeamID     *string `json:"teamId"`
}

func (b claimsBody) toModel() model.RoleClaims {
	return model.RoleClaims{IsAdmin: b.IsAdmin, IsTechLead: b.IsTechLead, TeamID: b.TeamID}
}

func toClaimsBody(c model.RoleClaims) claimsBody {
	return claimsBody{IsAdmin: c.IsAdmin, IsTechLead: c.IsTechLead, TeamID: c.TeamID}
}

type profileResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	PhotoURL   string    `json:"photoUrl,omitempty"`
	IsAdmin    bool      `json:"isAdmin"`
	IsTechLead bool      `json:"isTechLead"`
	TeamID     *string   `json:"teamId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:         p.ID,
		Name:       p.Name,
		Email:      p.Email,
		PhotoURL:   p.PhotoURL,
		IsAdmin:    p.IsAdmin,
		IsTechLead: p.IsTechLead,
		TeamID:     p.TeamID,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

type teamResponse struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	TechLeadID          string    `json:"techLeadId"`
	AvailableServiceIDs []string  `json:"availableServiceIds"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func toTeamResponse(t *model.Team) teamResponse {
	ids := t.AvailableServiceIDs
	if ids == nil {
		ids = []string{}
	}
	return teamResponse{
		ID:                  t.ID,
		Name:                t.Name,
		TechLeadID:          t.TechLeadID,
		AvailableServiceIDs: ids,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

type serviceResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toServiceResponse(s *model.Service) serviceResponse {
	return serviceResponse{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

type contactResponse struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	URL    string  `json:"url"`
	Order  int     `json:"order"`
	TeamID *string `json:"teamId"`
}

func toContactResponse(c *model.Contact) contactResponse {
	return contactResponse{ID: c.ID, Name: c.Name, URL: c.URL, Order: c.Order, TeamID: c.TeamID}
}

type requestResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	ServiceID   string     `json:"serviceId"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt"`
	ResolvedBy  *string    `json:"resolvedBy"`
	Notes       *string    `json:"notes"`
}

func toRequestResponse(r *model.AccessRequest) requestResponse {
	return requestResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		ServiceID:   r.ServiceID,
		Status:      string(r.Status),
		RequestedAt: r.RequestedAt,
		ResolvedAt:  r.ResolvedAt,
		ResolvedBy:  r.ResolvedBy,
		Notes:       r.Notes,
	}
}

// mapSlice はスライスの各要素をレスポンス型に変換する。nilの場合は空スライスを返す。
func mapSlice[T any, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}
