package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/accessportal/internal/middleware"
	"github.com/hitoshi/accessportal/internal/model"
)

// RequestServiceInterface はアクセス申請ハンドラーが必要とするサービスインターフェース。
type RequestServiceInterface interface {
	Submit(ctx context.Context, caller *model.Caller, serviceID string) (*model.AccessRequest, error)
	Approve(ctx context.Context, caller *model.Caller, requestID, target string) (*model.AccessRequest, error)
	Reject(ctx context.Context, caller *model.Caller, requestID string, notes *string) (*model.AccessRequest, error)
	Delete(ctx context.Context, caller *model.Caller, requestID string) error
	List(ctx context.Context, caller *model.Caller, status string) ([]*model.AccessRequest, error)
}

// RequestHandler はアクセス申請のHTTPハンドラー。
type RequestHandler struct {
	service RequestServiceInterface
	resp    *responder
}

// NewRequestHandler はRequestHandlerを生成する。
func NewRequestHandler(service RequestServiceInterface, resp *responder) *RequestHandler {
	return &RequestHandler{service: service, resp: resp}
}

type submitRequest struct {
	ServiceID string `json:"serviceId"`
}

type approveRequest struct {
	Status string `json:"status"`
}

type rejectRequest struct {
	Notes *string `json:"notes"`
}

// ListRequests は呼び出し元が閲覧可能な申請一覧を返す。
// GET /api/requests?status=pending
func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.service.List(r.Context(), middleware.CallerFromContext(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		h.resp.fail(w, r, "requests.list", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(reqs, toRequestResponse))
}

// SubmitRequest はアクセス申請を作成する。
// 未完了の申請が既にある場合は200でDUPLICATE_REQUESTの通知を返す。
// POST /api/requests
func (h *RequestHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "requests.submit", err)
		return
	}
	created, err := h.service.Submit(r.Context(), middleware.CallerFromContext(r.Context()), req.ServiceID)
	if err != nil {
		h.resp.fail(w, r, "requests.submit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

// ApproveRequest は申請を承認する。
// POST /api/requests/{id}/approve
func (h *RequestHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "requests.approve", err)
		return
	}
	updated, err := h.service.Approve(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.resp.fail(w, r, "requests.approve", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

// RejectRequest は申請を却下する。ボディは省略可能。
// POST /api/requests/{id}/reject
func (h *RequestHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "requests.reject", err)
		return
	}
	updated, err := h.service.Reject(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		h.resp.fail(w, r, "requests.reject", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

// DeleteRequest は申請を物理削除する。
// DELETE /api/requests/{id}
func (h *RequestHandler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.CallerFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.resp.fail(w, r, "requests.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
