package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/henworth/trent-six/internal/metrics"
	"github.com/henworth/trent-six/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	MemberService MemberServiceInterface
	ClanService   ClanServiceInterface
	AuthService   AuthServiceInterface
	AuthConfig    AuthHandlerConfig

	// メトリクス（nilの場合/metricsは公開しない）
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → RateLimit(General)
//
// 認証ルート（/auth/*）と/health、/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	memberHandler := NewMemberHandler(deps.MemberService)
	clanHandler := NewClanHandler(deps.ClanService)

	// --- 運用系ルート ---

	r.Get("/health", healthHandler)

	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証ルート（Bungie OAuthフロー） ---

	if deps.AuthService != nil {
		authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
		r.Route("/auth/bungie", func(r chi.Router) {
			r.Get("/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
		})
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// メンバー参照
		r.Route("/api/members", func(r chi.Router) {
			r.Get("/", memberHandler.ListMembers)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", memberHandler.GetMember)
				r.Get("/games", memberHandler.GetMemberGames)
				r.Get("/history", memberHandler.GetMemberHistory)
			})
		})

		// クラン参照と同期トリガー
		r.Route("/api/clans", func(r chi.Router) {
			r.Get("/", clanHandler.ListClans)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", clanHandler.GetClan)
				r.Get("/games", clanHandler.GetClanGames)

				// POST /api/clans/{id}/sync - 手動同期（同期専用レート制限を追加）
				r.With(deps.RateLimiter.SyncMiddleware()).Post("/sync", clanHandler.SyncClan)
			})
		})
	})

	return r
}

// healthHandler はヘルスチェックに応答する。
// GET /health
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
