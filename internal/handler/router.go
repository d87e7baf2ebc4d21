package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobtrail/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 公開エンドポイント
	Health  HealthChecker
	Metrics http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 応募記録とメモ
	ApplicationService ApplicationServiceInterface
	NoteService        NoteServiceInterface

	// 通知
	NotificationService NotificationServiceInterface

	// プロフィールとファイル
	ProfileService ProfileServiceInterface
	TokenVerifier  TokenVerifier
	ObjectStore    ObjectOpener
	MaxUploadSize  int64

	// 外部APIプロキシ
	JobSearcher JobSearcher
	Analyzer    Analyzer

	// リマインダー
	ReminderRunner ReminderRunner

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General) → CSRF
//
// /health、/metrics、/auth/*、/files/* はセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	validator := NewRequestValidator()
	authHandler := NewAuthHandler(deps.AuthService, deps.ProfileService, deps.AuthConfig)
	appHandler := NewApplicationHandler(deps.ApplicationService, validator)
	noteHandler := NewNoteHandler(deps.NoteService, validator)
	notifHandler := NewNotificationHandler(deps.NotificationService)
	profileHandler := NewProfileHandler(deps.ProfileService, validator, deps.MaxUploadSize)
	fileHandler := NewFileHandler(deps.TokenVerifier, deps.ObjectStore)
	proxyHandler := NewProxyHandler(deps.JobSearcher, deps.Analyzer)
	dashHandler := NewDashboardHandler(deps.ApplicationService, deps.ReminderRunner)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.Health))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/{provider}/login", authHandler.Login)
		r.Get("/{provider}/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Post("/refresh", authHandler.Refresh)
		r.Get("/me", authHandler.Me)
	})

	// 署名付きURLによるファイル配信（トークンで認可する）
	r.Get("/files/{bucket}/*", fileHandler.Serve)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		// 応募記録
		r.Route("/api/applications", func(r chi.Router) {
			r.Get("/", appHandler.List)
			r.Post("/", appHandler.Create)
			r.Get("/export.csv", appHandler.ExportCSV)
			r.Post("/import", appHandler.Import)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", appHandler.Get)
				r.Put("/", appHandler.Update)
				r.Delete("/", appHandler.Delete)
				r.Patch("/status", appHandler.UpdateStatus)
				r.Post("/apply", appHandler.Apply)

				r.Get("/notes", noteHandler.List)
				r.Post("/notes", noteHandler.Create)
			})
		})
		r.Delete("/api/notes/{id}", noteHandler.Delete)

		// 通知
		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notifHandler.List)
			r.Get("/unread-count", notifHandler.UnreadCount)
			r.Get("/stream", notifHandler.Stream)
			r.Post("/read-all", notifHandler.MarkAllRead)
			r.Post("/{id}/read", notifHandler.MarkRead)
		})

		// プロフィール
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
			r.Post("/avatar", profileHandler.UploadAvatar)
			r.Post("/resume", profileHandler.UploadResume)
			r.Get("/files/{bucket}/signed-url", profileHandler.SignedURL)
			r.With(deps.RateLimiter.AnalysisMiddleware()).Post("/analyze-resume", proxyHandler.AnalyzeResume)
		})

		// 外部APIプロキシ（解析系はレート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AnalysisMiddleware())
			r.Post("/api/job-search", proxyHandler.JobSearch)
			r.Post("/api/match", proxyHandler.Match)
		})

		r.Get("/api/analytics", dashHandler.Analytics)
		r.Post("/api/reminders/check", dashHandler.CheckReminders)

		// ユーザー管理
		r.Delete("/api/users/me", userHandler.Withdraw)
	})

	return r
}
