// Package app はコマンドラインの起動処理と依存関係の組み立てを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eliteeight/site/internal/audit"
	"github.com/eliteeight/site/internal/auth"
	"github.com/eliteeight/site/internal/cms"
	"github.com/eliteeight/site/internal/config"
	"github.com/eliteeight/site/internal/dashboard"
	"github.com/eliteeight/site/internal/database"
	"github.com/eliteeight/site/internal/defaults"
	"github.com/eliteeight/site/internal/docstore"
	"github.com/eliteeight/site/internal/handler"
	"github.com/eliteeight/site/internal/lead"
	"github.com/eliteeight/site/internal/logger"
	"github.com/eliteeight/site/internal/metrics"
	"github.com/eliteeight/site/internal/middleware"
	"github.com/eliteeight/site/internal/model"
	"github.com/eliteeight/site/internal/repository"
	"github.com/eliteeight/site/internal/security"
	"github.com/eliteeight/site/internal/user"
	"github.com/eliteeight/site/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで初期化し直す
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// withConfig は設定を読み込んでからfnを実行する。
func withConfig(w io.Writer, cmd Command, fn func(*config.Config) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)
	return fn(cfg)
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// services はコマンド間で共有するサービス群。
type services struct {
	store    *docstore.Store
	tokens   *auth.TokenIssuer
	auth     *auth.Service
	audit    *audit.Logger
	users    *user.Service
	leads    *lead.Service
	cms      *cms.Service
	defaults *defaults.Provider
}

// buildServices はリポジトリとドメインサービスを組み立てる。
func buildServices(db *sql.DB, cfg *config.Config, log *slog.Logger) (*services, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	documentRepo := repository.NewPostgresDocumentRepo(db)
	auditRepo := repository.NewPostgresAuditRepo(db)

	// 2. 認証とドキュメントストア
	tokens := auth.NewTokenIssuer(cfg.SessionSecret)
	authService := auth.NewService(userRepo, identRepo, sessionRepo, tokens,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	store := docstore.NewStore(documentRepo, log)
	auditLogger := audit.NewLogger(auditRepo, log)

	// 3. 同梱コンテンツ
	provider, err := defaults.NewProvider(cfg.DefaultsFile, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load default content: %w", err)
	}

	// 4. ドメインサービスの初期化
	userService := user.NewService(userRepo, authService, auditLogger, store)
	store.RegisterVirtual(model.CollectionUsers, userService)

	return &services{
		store:    store,
		tokens:   tokens,
		auth:     authService,
		audit:    auditLogger,
		users:    userService,
		leads:    lead.NewService(store, security.NewTextSanitizer()),
		cms:      cms.NewService(store, provider),
		defaults: provider,
	}, nil
}

// newRouterDeps はHTTPルーターの依存関係を組み立てる。
func newRouterDeps(cfg *config.Config, db *sql.DB, svc *services, rl *middleware.RateLimiter, registry *prometheus.Registry, log *slog.Logger) *handler.RouterDeps {
	cookie := middleware.CookieConfig{
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	}
	return &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Cookie:         cookie,
		Logger:         log,
		Metrics:        metrics.NewCollector(registry),
		MetricsHandler: metrics.Handler(registry),
		HealthChecker:  db,

		Sessions: svc.auth,

		Snapshots:     svc.store,
		StreamRecheck: handler.DefaultStreamRecheck,

		Collections: []handler.CollectionEndpoint{
			handler.NewCollectionAdapter(svc.leads.Collection()).
				WithCreate(svc.leads.Create).
				WithReplace(svc.leads.Replace).
				WithPatch(svc.leads.Patch),
			handler.NewCollectionAdapter(svc.cms.Testimonials()),
			handler.NewCollectionAdapter(svc.cms.Team()),
			handler.NewCollectionAdapter(svc.cms.Services()),
		},
		Deletion:  cms.NewRemover(svc.store, svc.tokens, svc.audit, cfg.DeleteConfirmTTL),
		Leads:     svc.leads,
		Users:     svc.users,
		Content:   svc.cms,
		Dashboard: dashboard.NewService(svc.store, svc.leads),

		Public:  svc.cms,
		Contact: svc.leads,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := buildServices(db, cfg, log)
	if err != nil {
		return err
	}

	// インスタンス間の変更通知
	if cfg.NATSURL != "" {
		bridge, err := docstore.ConnectNATS(cfg.NATSURL, svc.store.Hub(), log)
		if err != nil {
			return err
		}
		defer bridge.Close()
		svc.store.SetBroadcaster(bridge)
		slog.Info("NATS change bridge connected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := svc.defaults.Watch(ctx); err != nil {
			slog.Error("default content watcher stopped", slog.String("error", err.Error()))
		}
	}()

	rl := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitGeneral, cfg.RateLimitContact))
	defer rl.Stop()

	router := handler.NewRouter(newRouterDeps(cfg, db, svc, rl, prometheus.NewRegistry(), log))

	// ライブ購読はハンドラー側で書き込み期限を解除する
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションと古い監査ログを定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	authService := auth.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresIdentityRepo(db),
		repository.NewPostgresSessionRepo(db),
		auth.NewTokenIssuer(cfg.SessionSecret),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	job := cleanup.NewCleanupJob(authService, db, slog.Default())
	job.RetentionDays = cfg.AuditRetentionDays

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
		slog.Int("audit_retention_days", cfg.AuditRetentionDays),
	)
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runRollback は指定したステップ数だけマイグレーションを戻す。
func runRollback(cfg *config.Config, steps int) error {
	slog.Info("rolling back database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("steps", steps),
	)

	if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	slog.Info("database rollback completed successfully")
	return nil
}

// bootstrapOptions はbootstrap-adminサブコマンドの引数。
type bootstrapOptions struct {
	Email    string
	Password string
	Force    bool
}

// runBootstrapAdmin は最初の管理者を作成する。
// 既に管理者が存在する場合はforceが指定されない限り何もせず正常終了する。
func runBootstrapAdmin(ctx context.Context, cfg *config.Config, opts bootstrapOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := buildServices(db, cfg, slog.Default())
	if err != nil {
		return err
	}
	return bootstrapAdmin(ctx, svc.users, opts, out)
}

// AdminBootstrapper は最初の管理者を作成する。user.Serviceが実装する。
type AdminBootstrapper interface {
	Bootstrap(ctx context.Context, email, password string, force bool) (*model.User, error)
}

func bootstrapAdmin(ctx context.Context, b AdminBootstrapper, opts bootstrapOptions, out io.Writer) error {
	admin, err := b.Bootstrap(ctx, opts.Email, opts.Password, opts.Force)
	if errors.Is(err, user.ErrAdminExists) {
		fmt.Fprintln(out, "an admin already exists; use --force to add another")
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	fmt.Fprintf(out, "admin ready: %s (%s)\n", admin.Email, admin.ID)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
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
