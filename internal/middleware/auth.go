// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/accessportal/internal/model"
)

// IDTokenCookieName はIDトークンを保持するCookieの名前。
const IDTokenCookieName = "id_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	callerContextKey     = contextKey("caller")
	authSourceContextKey = contextKey("auth_source")
)

// トークンの取得元
const (
	authSourceBearer = "bearer"
	authSourceCookie = "cookie"
)

// TokenVerifier はIDトークンを検証し、呼び出し元を復元する。
type TokenVerifier interface {
	Verify(token string) (*model.Caller, error)
}

// NewTokenAuthMiddleware はAuthorizationヘッダー（Bearer）またはid_token Cookieから
// IDトークンを読み取り、検証済みの呼び出し元をコンテキストに注入するミドルウェアを返す。
// トークンがない、または検証に失敗したリクエストには401を返す。
func NewTokenAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, source := extractToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			caller, err := verifier.Verify(token)
			if err != nil {
				slog.Warn("token verification failed",
					slog.String("path", r.URL.Path),
					slog.String("source", source),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			noteUserID(r.Context(), caller.UID)
			ctx := ContextWithCaller(r.Context(), caller)
			ctx = context.WithValue(ctx, authSourceContextKey, source)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken はBearerヘッダーを優先してトークンを取り出す。
func extractToken(r *http.Request) (string, string) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token), authSourceBearer
		}
		return "", authSourceBearer
	}
	if cookie, err := r.Cookie(IDTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, authSourceCookie
	}
	return "", ""
}

// CallerFromContext はリクエストコンテキストから検証済みの呼び出し元を取得する。
// 認証ミドルウェアを通過していない場合はnilを返す。
func CallerFromContext(ctx context.Context) *model.Caller {
	caller, _ := ctx.Value(callerContextKey).(*model.Caller)
	return caller
}

// UserIDFromContext は呼び出し元のUIDを返す。未認証の場合は空文字列。
func UserIDFromContext(ctx context.Context) string {
	if caller := CallerFromContext(ctx); caller != nil {
		return caller.UID
	}
	return ""
}

// ContextWithCaller はコンテキストに呼び出し元を注入する。
func ContextWithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// authenticatedByCookie はCookie経由で認証されたリクエストかを判定する。
func authenticatedByCookie(ctx context.Context) bool {
	source, _ := ctx.Value(authSourceContextKey).(string)
	return source == authSourceCookie
}
