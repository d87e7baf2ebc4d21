package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/hitoshi/jobtrail/internal/analysis"
	"github.com/hitoshi/jobtrail/internal/auth"
	"github.com/hitoshi/jobtrail/internal/config"
	"github.com/hitoshi/jobtrail/internal/database"
	"github.com/hitoshi/jobtrail/internal/metrics"
	"github.com/hitoshi/jobtrail/internal/notification"
	"github.com/hitoshi/jobtrail/internal/repository"
	"github.com/hitoshi/jobtrail/internal/search"
	"github.com/hitoshi/jobtrail/internal/security"
	"github.com/hitoshi/jobtrail/internal/storage"
	"github.com/hitoshi/jobtrail/internal/worker/reminder"
)

// 外部APIクライアントのタイムアウト
const (
	analysisTimeout = 90 * time.Second
	// rssMaxSize はRSSフィード1件あたりの読み取り上限（5MiB）。
	rssMaxSize = 5 << 20
)

// newObjectStorage はS3_BUCKET設定時にS3、未設定時にローカルファイルシステムを保存先とする。
// ローカルの場合はfallbackの署名付きURL（/files配下）を使う。
func newObjectStorage(cfg *config.Config, fallback *storage.Signer, log *slog.Logger) (storage.Store, storage.URLSigner, error) {
	if cfg.S3Bucket == "" {
		store, err := storage.NewLocalStore(cfg.StorageRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open storage: %w", err)
		}
		return store, fallback, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := storage.NewS3Client(awsCfg, storage.S3Config{Bucket: cfg.S3Bucket, Endpoint: cfg.S3Endpoint})
	log.Info("オブジェクトの保存先にS3を使用します",
		slog.String("bucket", cfg.S3Bucket),
		slog.Bool("custom_endpoint", cfg.S3Endpoint != ""),
	)
	return storage.NewS3Store(client, cfg.S3Bucket), storage.NewS3Presigner(client, cfg.S3Bucket, cfg.SignedURLTTL), nil
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("データベースに接続しました")
	return db, nil
}

// newBroker はREDIS_URLが設定されていればRedisBrokerを、なければMemoryBrokerを返す。
func newBroker(cfg *config.Config, log *slog.Logger) (notification.Broker, func(), error) {
	if cfg.RedisURL == "" {
		return notification.NewMemoryBroker(log), func() {}, nil
	}

	client, err := notification.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redisに接続しました")
	return notification.NewRedisBroker(client, log), func() { client.Close() }, nil
}

func newAuthService(
	cfg *config.Config,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
) *auth.Service {
	providers := []auth.OAuthProvider{
		auth.NewGoogleProvider(auth.ProviderConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}),
	}
	if cfg.GitHubEnabled() {
		providers = append(providers, auth.NewGitHubProvider(auth.ProviderConfig{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.GitHubRedirectURL,
		}))
	}
	return auth.NewService(providers, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
}

// newSearchService は設定済みの検索ソースを組み立てる。
// SerpApiはAPIキー、RSSはフィードURLが設定されている場合のみ有効にする。
func newSearchService(
	cfg *config.Config,
	guard security.URLGuard,
	sanitizer security.Sanitizer,
	recorder metrics.Recorder,
	log *slog.Logger,
) *search.Service {
	httpClient := &http.Client{Timeout: cfg.SearchTimeout}

	var serp *search.SerpAPI
	if cfg.SerpAPIKey != "" {
		serp = search.NewSerpAPI(httpClient, cfg.SerpAPIKey)
	}

	others := []search.Source{search.NewRemoteOK(httpClient, cfg.RemoteOKEndpoint)}
	if len(cfg.JobRSSFeeds) > 0 {
		others = append(others, search.NewRSS(
			guard.NewSafeClient(cfg.SearchTimeout, rssMaxSize),
			cfg.JobRSSFeeds,
			sanitizer,
		))
	}

	return search.NewService(serp, others, search.Config{Timeout: cfg.SearchTimeout}, recorder, log)
}

// newAnalysisService は履歴書分析とマッチングのサービスを組み立てる。
// APIキー未設定の生成モデルはnilのままにし、呼び出し時に上流エラーとする。
func newAnalysisService(
	cfg *config.Config,
	profiles repository.ProfileRepository,
	apps repository.ApplicationRepository,
	signer analysis.URLSigner,
	recorder metrics.Recorder,
	log *slog.Logger,
) *analysis.Service {
	httpClient := &http.Client{Timeout: analysisTimeout}

	deps := analysis.Deps{
		Profiles:  profiles,
		Apps:      apps,
		Signer:    signer,
		Extractor: analysis.NewPDFCo(httpClient, cfg.PDFCoAPIKey),
		Metrics:   recorder,
		Logger:    log,
	}

	if cfg.HuggingFaceAPIKey != "" {
		deps.ResumeModel = analysis.NewHuggingFace(httpClient, cfg.HuggingFaceAPIKey, cfg.HuggingFaceModel, log)
	} else {
		log.Warn("HUGGINGFACE_API_KEYが未設定のため、履歴書分析は利用できません")
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := analysis.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn("Geminiクライアントの初期化に失敗しました", slog.String("error", err.Error()))
		} else {
			deps.MatchModel = gemini
		}
	} else {
		log.Warn("GEMINI_API_KEYが未設定のため、求人マッチングは利用できません")
	}

	return analysis.NewService(deps)
}

func newReminderJob(
	cfg *config.Config,
	notes repository.NoteRepository,
	notifier reminder.Notifier,
	recorder metrics.Recorder,
	log *slog.Logger,
) *reminder.Job {
	return reminder.NewJob(notes, notifier, newDeliveries(cfg, log), recorder, log)
}

// newDeliveries はAWS設定に応じてSES/SNSの配信チャネルを組み立てる。
// 何も設定されていない場合は空を返し、ジョブ側でログ配信のみとなる。
func newDeliveries(cfg *config.Config, log *slog.Logger) []reminder.Delivery {
	if cfg.AWSRegion == "" || (cfg.SESFromAddress == "" && cfg.SNSTopicARN == "") {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Warn("AWS設定の読み込みに失敗しました", slog.String("error", err.Error()))
		return nil
	}

	var deliveries []reminder.Delivery
	if cfg.SESFromAddress != "" {
		deliveries = append(deliveries, reminder.NewSESDelivery(ses.NewFromConfig(awsCfg), cfg.SESFromAddress))
	}
	if cfg.SNSTopicARN != "" {
		deliveries = append(deliveries, reminder.NewSNSDelivery(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN))
	}
	return deliveries
}
