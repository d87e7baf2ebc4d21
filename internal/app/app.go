package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/jobtrail/internal/application"
	"github.com/hitoshi/jobtrail/internal/config"
	"github.com/hitoshi/jobtrail/internal/database"
	"github.com/hitoshi/jobtrail/internal/handler"
	"github.com/hitoshi/jobtrail/internal/logger"
	"github.com/hitoshi/jobtrail/internal/metrics"
	"github.com/hitoshi/jobtrail/internal/middleware"
	"github.com/hitoshi/jobtrail/internal/note"
	"github.com/hitoshi/jobtrail/internal/notification"
	"github.com/hitoshi/jobtrail/internal/profile"
	"github.com/hitoshi/jobtrail/internal/repository"
	"github.com/hitoshi/jobtrail/internal/security"
	"github.com/hitoshi/jobtrail/internal/storage"
	"github.com/hitoshi/jobtrail/internal/user"
	"github.com/hitoshi/jobtrail/internal/worker/cleanup"
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

	if cmd == CommandHelp {
		_, err := io.WriteString(w, Usage())
		return err
	}

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

	slog.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	appRepo := repository.NewPostgresApplicationRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. セキュリティ・ストレージ・通知基盤
	guard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// /files配下の配信トークンはS3利用時も同じ署名鍵で検証する
	tokenSigner := storage.NewSigner(cfg.SessionSecret, cfg.SignedURLTTL, cfg.BaseURL)
	store, signer, err := newObjectStorage(cfg, tokenSigner, log)
	if err != nil {
		return err
	}

	broker, closeBroker, err := newBroker(cfg, log)
	if err != nil {
		return err
	}
	defer closeBroker()

	// 5. ドメインサービスの初期化
	authService := newAuthService(cfg, userRepo, identRepo, sessionRepo)
	notificationService := notification.NewService(notificationRepo, broker, log)
	applicationService := application.NewService(appRepo, guard, notificationService, collector, log)
	noteService := note.NewService(noteRepo, appRepo, sanitizer)
	profileService := profile.NewService(profileRepo, store, signer, cfg.UploadMaxSize, log)
	userService := user.NewService(userRepo, sessionRepo, profileService, log)
	searchService := newSearchService(cfg, guard, sanitizer, collector, log)
	analysisService := newAnalysisService(cfg, profileRepo, appRepo, signer, collector, log)
	profileService.SetResumeAnalyzer(analysisService, collector, analysisTimeout)
	reminderJob := newReminderJob(cfg, noteRepo, notificationService, collector, log)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAnalysis),
	)
	defer rateLimiter.Stop()

	authConfig := handler.AuthHandlerConfig{
		BaseURL:       cfg.BaseURL,
		CookieDomain:  cfg.CookieDomain,
		CookieSecure:  cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}

	deps := &handler.RouterDeps{
		Logger:            log,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		Health:  db,
		Metrics: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig:  authConfig,

		ApplicationService: applicationService,
		NoteService:        noteService,

		NotificationService: notificationService,

		ProfileService: profileService,
		TokenVerifier:  tokenSigner,
		ObjectStore:    store,
		MaxUploadSize:  cfg.UploadMaxSize,

		JobSearcher: searchService,
		Analyzer:    analysisService,

		ReminderRunner: reminderJob,

		UserService: userService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// SSEのストリームは書き込み期限をハンドラー側で解除する
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("APIサーバーを起動します", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("サーバーの待ち受けに失敗しました", slog.String("error", err.Error()))
		}
	}()

	<-stop
	log.Info("APIサーバーを停止します")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	profileService.Wait()

	log.Info("APIサーバーを停止しました")
	return nil
}

// runWorker はワーカーモードで起動する。
// リマインダージョブとクリーンアップジョブを実行し、シグナル受信で停止する。
func runWorker(cfg *config.Config) error {
	log := slog.Default()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	noteRepo := repository.NewPostgresNoteRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)

	// Redis未設定の場合、ワーカーで作成した通知はAPIサーバーのストリームに届かない
	broker, closeBroker, err := newBroker(cfg, log)
	if err != nil {
		return err
	}
	defer closeBroker()
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URLが未設定のため、リマインダー通知はリアルタイム配信されません")
	}

	notificationService := notification.NewService(notificationRepo, broker, log)
	reminderJob := newReminderJob(cfg, noteRepo, notificationService, metrics.Nop{}, log)
	cleanupJob := cleanup.NewCleanupJob(db, log, cfg.NotificationRetentionDays)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		log.Info("ワーカーを停止します")
		cancel()
	}()

	log.Info("ワーカーを起動します",
		slog.Duration("reminder_interval", cfg.ReminderInterval),
		slog.Int("retention_days", cfg.NotificationRetentionDays),
	)

	go cleanupJob.Start(ctx)

	// リマインダージョブをメインgoroutineで実行（ブロッキング）
	reminderJob.Start(ctx, cfg.ReminderInterval)

	log.Info("ワーカーを停止しました")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("マイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("マイグレーションが完了しました", slog.Uint64("version", uint64(version)))
	return nil
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
