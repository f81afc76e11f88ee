package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/accessportal/internal/catalog"
	"github.com/hitoshi/accessportal/internal/middleware"
	"github.com/hitoshi/accessportal/internal/model"
)

// CatalogServiceInterface はサービスと連絡先のハンドラーが必要とするインターフェース。
type CatalogServiceInterface interface {
	ListServices(ctx context.Context, caller *model.Caller) ([]*model.Service, error)
	AvailableServices(ctx context.Context, caller *model.Caller) ([]*model.Service, error)
	CreateService(ctx context.Context, caller *model.Caller, in catalog.ServiceInput) (*model.Service, error)
	UpdateService(ctx context.Context, caller *model.Caller, id string, in catalog.ServiceInput) (*model.Service, error)
	DeleteService(ctx context.Context, caller *model.Caller, id string) error

	ListContacts(ctx context.Context, caller *model.Caller) ([]*model.Contact, error)
	CreateContact(ctx context.Context, caller *model.Caller, in catalog.ContactInput) (*model.Contact, error)
	UpdateContact(ctx context.Context, caller *model.Caller, id string, in catalog.ContactInput) (*model.Contact, error)
	DeleteContact(ctx context.Context, caller *model.Caller, id string) error
}

// CatalogHandler はサービスと連絡先のHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
	resp    *responder
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface, resp *responder) *CatalogHandler {
	return &CatalogHandler{service: service, resp: resp}
}

type serviceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type contactRequest struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Order  int    `json:"order"`
	TeamID string `json:"teamId"`
}

func (c contactRequest) toInput() catalog.ContactInput {
	return catalog.ContactInput{Name: c.Name, URL: c.URL, Order: c.Order, TeamID: c.TeamID}
}

// ListServices はサービス一覧を返す。
// GET /api/services
func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		h.resp.fail(w, r, "services.list", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(services, toServiceResponse))
}

// AvailableServices は呼び出し元のチームが申請可能なサービスを返す。
// GET /api/services/available
func (h *CatalogHandler) AvailableServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.AvailableServices(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		h.resp.fail(w, r, "services.available", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(services, toServiceResponse))
}

// CreateService はサービスを作成する。
// POST /api/services
func (h *CatalogHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "services.create", err)
		return
	}
	svc, err := h.service.CreateService(r.Context(), middleware.CallerFromContext(r.Context()),
		catalog.ServiceInput{Name: req.Name, Description: req.Description})
	if err != nil {
		h.resp.fail(w, r, "services.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceResponse(svc))
}

// UpdateService はサービスを更新する。
// PUT /api/services/{id}
func (h *CatalogHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "services.update", err)
		return
	}
	svc, err := h.service.UpdateService(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id"),
		catalog.ServiceInput{Name: req.Name, Description: req.Description})
	if err != nil {
		h.resp.fail(w, r, "services.update", err)
		return
	}
	writeJSON(w, http.StatusOK, toServiceResponse(svc))
}

// DeleteService はサービスを削除し、全チームの申請可能サービスから外す。
// DELETE /api/services/{id}
func (h *CatalogHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteService(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.resp.fail(w, r, "services.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListContacts は呼び出し元に表示する連絡先をorder順で返す。
// GET /api/contacts
func (h *CatalogHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.service.ListContacts(r.Context(), middleware.CallerFromContext(r.Context()))
	if err != nil {
		h.resp.fail(w, r, "contacts.list", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(contacts, toContactResponse))
}

// CreateContact は連絡先を作成する。
// POST /api/contacts
func (h *CatalogHandler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "contacts.create", err)
		return
	}
	contact, err := h.service.CreateContact(r.Context(), middleware.CallerFromContext(r.Context()), req.toInput())
	if err != nil {
		h.resp.fail(w, r, "contacts.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContactResponse(contact))
}

// UpdateContact は連絡先を更新する。
// PUT /api/contacts/{id}
func (h *CatalogHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "contacts.update", err)
		return
	}
	contact, err := h.service.UpdateContact(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.resp.fail(w, r, "contacts.update", err)
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(contact))
}

// DeleteContact は連絡先を削除する。
// DELETE /api/contacts/{id}
func (h *CatalogHandler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteContact(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.resp.fail(w, r, "contacts.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
