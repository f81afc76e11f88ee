package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/accessportal/internal/auth"
	"github.com/hitoshi/accessportal/internal/middleware"
	"github.com/hitoshi/accessportal/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.SignInResult, error)
	Refresh(ctx context.Context, uid string) (*auth.SignInResult, error)
	Me(ctx context.Context, caller *model.Caller) (*model.Profile, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はOAuthサインインとIDトークン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
	resp    *responder
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, resp *responder) *AuthHandler {
	return &AuthHandler{service: service, config: config, resp: resp}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := middleware.RandomToken()
	if err != nil {
		h.resp.fail(w, r, "auth.login", err)
		return
	}

	h.setCookie(w, oauthStateCookie, state, oauthStateMaxAge, "/auth")
	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理し、IDトークンをCookieに設定する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch")
		h.resp.fail(w, r, "auth.callback", model.NewInvalidArgumentError("state", "invalid state parameter"))
		return
	}
	h.setCookie(w, oauthStateCookie, "", -1, "/auth")

	result, err := h.service.HandleCallback(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		h.resp.fail(w, r, "auth.callback", err)
		return
	}

	h.setTokenCookie(w, result)
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はIDトークンCookieを削除する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setCookie(w, middleware.IDTokenCookieName, "", -1, "/")
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	Profile profileResponse `json:"profile"`
	Claims  claimsBody      `json:"claims"`
}

// Me は現在のユーザーのプロフィールとトークンのクレームを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerFromContext(r.Context())
	profile, err := h.service.Me(r.Context(), caller)
	if err != nil {
		h.resp.fail(w, r, "auth.me", err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		Profile: toProfileResponse(profile),
		Claims:  toClaimsBody(caller.Claims),
	})
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Claims    claimsBody `json:"claims"`
}

// Refresh は最新のクレームでIDトークンを再発行する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Refresh(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.resp.fail(w, r, "auth.refresh", err)
		return
	}

	h.setTokenCookie(w, result)
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Claims:    toClaimsBody(result.Identity.Claims),
	})
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, result *auth.SignInResult) {
	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	h.setCookie(w, middleware.IDTokenCookieName, result.Token, maxAge, "/")
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
