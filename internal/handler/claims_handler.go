package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/accessportal/internal/middleware"
	"github.com/hitoshi/accessportal/internal/model"
)

// ClaimsServiceInterface はクレームハンドラーが必要とするサービスインターフェース。
type ClaimsServiceInterface interface {
	SetClaims(ctx context.Context, caller *model.Caller, targetUID string, requested *model.RoleClaims) (string, error)
}

// ClaimsHandler はカスタムクレーム設定のHTTPハンドラー。
type ClaimsHandler struct {
	service ClaimsServiceInterface
	resp    *responder
}

// NewClaimsHandler はClaimsHandlerを生成する。
func NewClaimsHandler(service ClaimsServiceInterface, resp *responder) *ClaimsHandler {
	return &ClaimsHandler{service: service, resp: resp}
}

type setClaimsRequest struct {
	UID    string          `json:"uid"`
	Claims json.RawMessage `json:"claims"`
}

// SetClaims は対象ユーザーのロールクレームを上書きする。
// POST /api/claims
func (h *ClaimsHandler) SetClaims(w http.ResponseWriter, r *http.Request) {
	var req setClaimsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.resp.fail(w, r, "claims.set", err)
		return
	}

	// 権限確認を先に行うため、不正なclaimsはnilとしてサービスに渡す
	requested := parseClaimsObject(req.Claims)

	message, err := h.service.SetClaims(r.Context(), middleware.CallerFromContext(r.Context()), req.UID, requested)
	if err != nil {
		h.resp.fail(w, r, "claims.set", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: message})
}

// parseClaimsObject はclaimsメンバーをJSONオブジェクトとして解釈する。
// 欠落、null、配列、スカラー、型不一致のフィールドはいずれもnilを返す。
func parseClaimsObject(raw json.RawMessage) *model.RoleClaims {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var body claimsBody
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil
	}
	claims := body.toModel()
	return &claims
}
