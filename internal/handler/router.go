package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/accessportal/internal/events"
	"github.com/hitoshi/accessportal/internal/metrics"
	"github.com/hitoshi/accessportal/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig
	HTTPMetrics       middleware.HTTPStatusRecorder
	Logger            *slog.Logger

	// 横断関心
	ErrorBus      *events.Bus
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	Claims    ClaimsServiceInterface
	Roles     RoleEngineInterface
	Directory DirectoryInterface
	Requests  RequestServiceInterface
	Catalog   CatalogServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → TokenAuth → RateLimit(General) → CSRF
//
// /health、/metrics、OAuthフローはトークン認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resp := newResponder(deps.ErrorBus, logger)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, resp)
	claimsHandler := NewClaimsHandler(deps.Claims, resp)
	teamHandler := NewTeamHandler(deps.Roles, deps.Directory, resp)
	requestHandler := NewRequestHandler(deps.Requests, resp)
	catalogHandler := NewCatalogHandler(deps.Catalog, resp)

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewTokenAuthMiddleware(deps.TokenVerifier))
			r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
			r.Get("/me", authHandler.Me)
			r.Post("/refresh", authHandler.Refresh)
		})
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTokenAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Post("/api/claims", claimsHandler.SetClaims)

		r.Route("/api/teams", func(r chi.Router) {
			r.Get("/", teamHandler.ListTeams)
			r.Post("/", teamHandler.CreateTeam)
			r.Put("/{id}", teamHandler.UpdateTeam)
			r.Delete("/{id}", teamHandler.DeleteTeam)
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", teamHandler.ListUsers)
			r.Put("/{id}/role", teamHandler.EditUserRole)
		})

		r.Route("/api/requests", func(r chi.Router) {
			r.Get("/", requestHandler.ListRequests)
			// 申請作成は専用のレート制限を追加
			r.With(deps.RateLimiter.SubmitMiddleware()).Post("/", requestHandler.SubmitRequest)
			r.Post("/{id}/approve", requestHandler.ApproveRequest)
			r.Post("/{id}/reject", requestHandler.RejectRequest)
			r.Delete("/{id}", requestHandler.DeleteRequest)
		})

		r.Route("/api/services", func(r chi.Router) {
			r.Get("/", catalogHandler.ListServices)
			r.Get("/available", catalogHandler.AvailableServices)
			r.Post("/", catalogHandler.CreateService)
			r.Put("/{id}", catalogHandler.UpdateService)
			r.Delete("/{id}", catalogHandler.DeleteService)
		})

		r.Route("/api/contacts", func(r chi.Router) {
			r.Get("/", catalogHandler.ListContacts)
			r.Post("/", catalogHandler.CreateContact)
			r.Put("/{id}", catalogHandler.UpdateContact)
			r.Delete("/{id}", catalogHandler.DeleteContact)
		})
	})

	return r
}
