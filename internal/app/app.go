package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/accessportal/internal/auth"
	"github.com/hitoshi/accessportal/internal/catalog"
	"github.com/hitoshi/accessportal/internal/claims"
	"github.com/hitoshi/accessportal/internal/config"
	"github.com/hitoshi/accessportal/internal/database"
	"github.com/hitoshi/accessportal/internal/events"
	"github.com/hitoshi/accessportal/internal/handler"
	"github.com/hitoshi/accessportal/internal/identity"
	"github.com/hitoshi/accessportal/internal/logger"
	"github.com/hitoshi/accessportal/internal/metrics"
	"github.com/hitoshi/accessportal/internal/middleware"
	"github.com/hitoshi/accessportal/internal/repository"
	"github.com/hitoshi/accessportal/internal/request"
	"github.com/hitoshi/accessportal/internal/roles"
	"github.com/hitoshi/accessportal/internal/security"
	"github.com/hitoshi/accessportal/internal/worker/claimsync"
	"github.com/hitoshi/accessportal/internal/worker/cleanup"
)

// DB待ちの既定値
const (
	dbReadyAttempts = 10
	dbReadyInterval = 2 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, migrateArgs(args))
	default:
		return runServe(ctx, cfg)
	}
}

// openedStore はopenStoreの結果。dbはメモリストアの場合nil。
type openedStore struct {
	store repository.Store
	db    *sql.DB
}

// Close はDB接続を閉じる。
func (o *openedStore) Close() {
	if o.db != nil {
		o.db.Close()
	}
}

// openStore は設定されたドライバのストアを開く。
// 返された値のCloseは必ず呼び出すこと。
func openStore(ctx context.Context, cfg *config.Config, rec metrics.MetricsCollector) (*openedStore, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return &openedStore{store: repository.NewMemoryStore()}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.WaitReady(ctx, db, dbReadyAttempts, dbReadyInterval); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	store := repository.NewPostgresStore(db, repository.StoreConfig{
		MaxRetries:     cfg.TxMaxRetries,
		RetryBaseDelay: cfg.TxRetryBaseDelay,
		OnRetry:        rec.RecordTxRetry,
	}, logger.Component(nil, "store"))
	return &openedStore{store: store, db: db}, nil
}

// newRegistry はプロセスとGoランタイムのコレクタを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// server はserveモードで組み立てた依存関係。
type server struct {
	handler http.Handler
	issuer  *claims.Issuer
	stop    func()
}

// newServer はストア上に全サービスを組み立て、ルーターを構築する。
func newServer(cfg *config.Config, store repository.Store, reg *prometheus.Registry, collector *metrics.Collector) *server {
	l := slog.Default()
	sanitizer := security.NewTextSanitizer()

	tokens := identity.NewTokenService(identity.TokenConfig{
		SigningKey: []byte(cfg.TokenSigningKey),
		Issuer:     cfg.TokenIssuer,
		TTL:        cfg.TokenTTL,
		Leeway:     cfg.TokenLeeway,
	})

	repos := store.Repos()
	issuer := claims.NewIssuer(repos.Identities, repos.Profiles, collector, l)
	engine := roles.NewEngine(store, issuer, collector, sanitizer, l)
	requests := request.NewService(store, request.Config{TechLeadGate: cfg.TechLeadGate}, collector, sanitizer, l)
	cat := catalog.NewCatalog(store, collector, sanitizer, l)

	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(oauthProvider, store, tokens, l)

	bus := events.NewBus()
	bus.Subscribe(events.LogSubscriber(logger.Component(l, "error_events")))
	bus.Subscribe(events.MetricsSubscriber(collector))

	limiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitSubmit),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HTTPMetrics:   collector,
		Logger:        l,
		ErrorBus:      bus,
		HealthChecker: store,
		Gatherer:      reg,
		AuthService:   authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},
		Claims:    issuer,
		Roles:     engine,
		Directory: cat,
		Requests:  requests,
		Catalog:   cat,
	})

	return &server{handler: router, issuer: issuer, stop: limiter.Stop}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	opened, err := openStore(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer opened.Close()
	store := opened.store

	srv := newServer(cfg, store, reg, collector)
	defer srv.stop()

	// メモリストアは別プロセスのワーカーから見えないため、同一プロセスで同期する
	if cfg.StoreDriver == config.StoreDriverMemory {
		go newClaimsSyncJob(cfg, store, srv.issuer).Start(ctx)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

func newClaimsSyncJob(cfg *config.Config, store repository.Store, issuer *claims.Issuer) *claimsync.Job {
	repos := store.Repos()
	return claimsync.NewJob(repos.Profiles, repos.Identities, issuer,
		logger.Component(nil, "claimsync"),
		claimsync.Config{Interval: cfg.ClaimsResyncInterval},
	)
}

// runWorker はワーカーモードで起動する。
// プロフィールとクレームの定期同期を実行し、シグナル受信で停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return errors.New("worker requires STORE_DRIVER=postgres")
	}

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	opened, err := openStore(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer opened.Close()
	store := opened.store

	repos := store.Repos()
	issuer := claims.NewIssuer(repos.Identities, repos.Profiles, collector, slog.Default())

	slog.Info("worker starting",
		slog.Duration("claims_resync_interval", cfg.ClaimsResyncInterval),
		slog.Int("request_retention_days", cfg.RequestRetentionDays),
	)

	if cfg.WorkerMetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server listen error", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// 終了済み申請のクリーンアップを日次でバックグラウンド実行
	purgeJob := cleanup.NewPurgeJob(opened.db, logger.Component(nil, "cleanup"), cfg.RequestRetentionDays)
	go purgeJob.Start(ctx, 24*time.Hour)

	// 同期ジョブをメインgoroutineで実行（ブロッキング）
	newClaimsSyncJob(cfg, store, issuer).Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なし: 未適用マイグレーションをすべて適用する。
// down N: N件ロールバックする。
// version: 現在のスキーマバージョンを表示する。
func runMigrate(cfg *config.Config, args []string) error {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return errors.New("migrate requires STORE_DRIVER=postgres")
	}
	url := cfg.DatabaseURL

	if len(args) == 0 || args[0] == "up" {
		slog.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(url)),
		)
		if err := database.RunMigrations(url); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
		return nil
	}

	switch args[0] {
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid rollback steps %q: %w", args[1], err)
			}
			steps = n
		}
		if err := database.RollbackMigrations(url, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", steps))
		return nil
	case "version":
		version, dirty, err := database.SchemaVersion(url)
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
		slog.Info("database schema version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		return fmt.Errorf("unknown migrate subcommand: %s", args[0])
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
