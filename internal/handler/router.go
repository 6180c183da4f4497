package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/mediagate/internal/metrics"
	"github.com/hitoshi/mediagate/internal/middleware"
)

// HealthChecker はデータベース疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 運用エンドポイント
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// メディアカタログ
	MediaService MediaServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → AccessContext → RateLimit(General)
//
// アクセスコンテキストは全ルートで構築され、トークンが無効でも匿名として通過する。
// 認可は各ルートのRequireAuth/RequireAdminゲートで行う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewAccessContextMiddleware(deps.Authenticator))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	mediaHandler := NewMediaHandler(deps.MediaService)
	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

	// 運用エンドポイント
	r.Get("/health", newHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.SetupMetricsRoute(deps.MetricsGatherer))
	}

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証フロー
	// OTPエンドポイントにはアドレス単位のレート制限を追加で適用する
	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.OTPRequestMiddleware()).Post("/otp/request", authHandler.RequestOTP)
		r.With(deps.RateLimiter.OTPRequestMiddleware()).Post("/otp/verify", authHandler.VerifyOTP)
		r.Post("/logout", authHandler.Logout)
		r.Post("/logout/all", authHandler.LogoutAll)
		r.Get("/me", authHandler.Me)
	})

	// メディアカタログ（読み取りは匿名可、可視範囲はアクセスコンテキストで制御）
	r.Route("/api/media", func(r chi.Router) {
		r.Get("/", mediaHandler.ListMedia)
		r.Get("/{id}", mediaHandler.GetMedia)

		// 登録・更新は管理者のみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAdminMiddleware())
			r.Use(csrf)
			r.Post("/", mediaHandler.CreateMedia)
			r.Patch("/{id}", mediaHandler.UpdateMedia)
		})
	})

	r.Get("/api/tags", mediaHandler.ListTags)

	// お気に入り（要ログイン）
	r.Route("/api/favorites", func(r chi.Router) {
		r.Use(middleware.NewRequireAuthMiddleware())
		r.Get("/", mediaHandler.ListFavorites)
		r.With(csrf).Post("/{mediaID}", mediaHandler.AddFavorite)
		r.With(csrf).Delete("/{mediaID}", mediaHandler.RemoveFavorite)
	})

	return r
}

// newHealthHandler はヘルスチェックエンドポイントのハンドラーを返す。
// HealthCheckerがnilの場合はプロセス生存のみを確認する。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}
