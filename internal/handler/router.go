package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eliteeight/site/internal/metrics"
	"github.com/eliteeight/site/internal/middleware"
	"github.com/eliteeight/site/internal/model"
)

// SessionService は認証ゲート、ログイン、ライブ購読が共有するセッション操作。
// auth.Serviceが実装する。
type SessionService interface {
	AuthServiceInterface
	Watch(ctx context.Context, sessionID string) <-chan struct{}
}

// HealthChecker は依存先の疎通確認を行う。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Cookie            middleware.CookieConfig
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker

	// 認証
	Sessions SessionService

	// ライブ購読
	Snapshots     SnapshotSubscriber
	StreamRecheck time.Duration

	// 管理画面のコレクション
	Collections []CollectionEndpoint
	Deletion    DeletionService
	Leads       LeadServiceInterface
	Users       UserServiceInterface
	Content     SiteContentService
	Dashboard   DashboardService

	// 公開ページ
	Public  PublicContentService
	Contact ContactService
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → SecurityHeaders → CORS
//	管理画面: AdminGate → RateLimit(General) → CSRF
//
// 公開ルート（/api/public/*）と認証ルート（/auth/login, /auth/logout）は管理画面のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, recorder))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.Sessions, AuthHandlerConfig{Cookie: deps.Cookie})
	publicHandler := NewPublicHandler(deps.Public, deps.Contact, recorder)
	streamHandler := NewStreamHandler(deps.Snapshots, deps.Sessions, recorder, deps.StreamRecheck)
	leadHandler := NewLeadHandler(deps.Leads, recorder)
	userHandler := NewUserHandler(deps.Users)
	contentHandler := NewContentHandler(deps.Content, deps.Dashboard, recorder)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/services", publicHandler.Services)
		r.Get("/testimonials", publicHandler.Testimonials)
		r.Get("/team", publicHandler.Team)
		r.Get("/settings", publicHandler.Settings)
		r.Get("/content/hero", publicHandler.Hero)
		// 問い合わせはクライアントIP単位でレート制限する
		r.With(deps.RateLimiter.ContactMiddleware()).Post("/contact", publicHandler.Contact)
	})

	gate := middleware.NewAdminGate(deps.Sessions, middleware.GateConfig{
		Cookie:   deps.Cookie,
		Recorder: recorder,
	})

	r.Route("/auth", func(r chi.Router) {
		// ログイン試行も問い合わせと同じIP単位の制限を受ける
		r.With(deps.RateLimiter.ContactMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.With(gate).Get("/me", authHandler.Me)
	})

	// --- 管理者のみのルート ---
	// ミドルウェアスタック: AdminGate → RateLimit(General) → CSRF
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(gate)
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		for _, endpoint := range deps.Collections {
			h := NewCollectionHandler(endpoint, deps.Deletion, recorder)
			name := endpoint.Name()
			r.Route("/"+name, func(r chi.Router) {
				var list http.HandlerFunc
				if name == model.CollectionLeads {
					list = leadHandler.List
					r.Get("/stats", leadHandler.Stats)
					r.Get("/export.csv", leadHandler.ExportCSV)
					r.Patch("/{id}/status", leadHandler.UpdateStatus)
				}
				h.Routes(r, list, streamHandler.Stream(name))
			})
		}

		r.Route("/users", func(r chi.Router) {
			userHandler.Routes(r, streamHandler.Stream(model.CollectionUsers))
		})

		r.Get("/settings", contentHandler.GetSettings)
		r.Put("/settings", contentHandler.PutSettings)
		r.Get("/content/hero", contentHandler.GetHero)
		r.Put("/content/hero", contentHandler.PutHero)
		r.Get("/dashboard", contentHandler.Dashboard)
	})

	return r
}

// healthHandler はデータベースの疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
