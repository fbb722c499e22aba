package bootstrap

import (
	"context"
	"os"
	"time"

	"mailsync_server/adapter/out/classifier"
	"mailsync_server/adapter/out/lease"
	"mailsync_server/adapter/out/mongodb"
	"mailsync_server/adapter/out/persistence"
	"mailsync_server/adapter/out/provider"
	"mailsync_server/adapter/out/storage"
	"mailsync_server/config"
	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/core/service/analytics"
	"mailsync_server/core/service/classify"
	"mailsync_server/core/service/fetch"
	"mailsync_server/core/service/sync"
	"mailsync_server/core/service/token"
	"mailsync_server/infra/database"
	"mailsync_server/internal/stream"
	"mailsync_server/pkg/crypto"
	"mailsync_server/pkg/logger"
	"mailsync_server/pkg/metrics"
	"mailsync_server/pkg/snowflake"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	AccountRepo   domain.AccountRepository
	MessageRepo   domain.MessageRepository
	TagRepo       domain.TagRepository
	AnalyticsRepo domain.AnalyticsRepository

	// Outbound adapters
	BodyArchive  out.BodyArchive
	ContentStore out.ContentStore
	Providers    map[domain.Provider]out.MailProvider
	Classifier   out.LabelClassifier
	SyncLease    out.SyncLease

	// Messaging
	Stream   *stream.RedisStream
	Producer *stream.Producer

	// Services
	TokenService    *token.Service
	Fetcher         *fetch.Fetcher
	ClassifyService *classify.Service
	AnalyticsEngine *analytics.Engine
	Orchestrator    *sync.Orchestrator
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Token encryption at rest
	if err := crypto.Init(); err != nil {
		return nil, nil, err
	}

	// Database (pgxpool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the persistence adapters)
	sqlDB, err := database.NewSqlx(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	metrics.RegisterPool("postgres", sqlDB.DB)

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// MongoDB (raw body archive)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				mongoClient.Disconnect(context.Background())
			})

			archive := mongodb.NewBodyArchiveAdapter(
				mongoClient.Database(cfg.MongoDBName), cfg.BodyArchiveTTLDays)
			if err := archive.EnsureIndexes(context.Background()); err != nil {
				logger.Warn("Failed to ensure body archive indexes: %v", err)
			}
			deps.BodyArchive = archive
		}
	}

	// Repositories
	deps.AccountRepo = persistence.NewAccountAdapter(sqlDB)
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.TagRepo = persistence.NewTagAdapter(sqlDB)
	deps.AnalyticsRepo = persistence.NewAnalyticsAdapter(sqlDB)

	// Attachment content store
	store, err := storage.NewDiskStore(cfg.ContentStoreDir)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.ContentStore = store

	// Mail providers
	deps.Providers = provider.NewProviderMap()

	// Classifier backend: HTTP service first, LLM fallback when both are
	// configured.
	var backend out.LabelClassifier
	if cfg.ClassifierURL != "" {
		backend = classifier.NewHTTPClassifier(&classifier.Config{
			BaseURL:     cfg.ClassifierURL,
			MaxAttempts: cfg.ClassifierMaxAttempts,
			Backoff:     cfg.ClassifierBackoff,
			Timeout:     time.Duration(cfg.ClassifierTimeoutSec) * time.Second,
		})
	}
	if cfg.OpenAIAPIKey != "" {
		llm := classifier.NewLLMClassifier(cfg.OpenAIAPIKey, cfg.LLMModel,
			time.Duration(cfg.LLMTimeoutSec)*time.Second)
		if backend != nil {
			backend = classifier.NewFallbackClassifier(backend, llm)
		} else {
			backend = llm
		}
	}
	deps.Classifier = backend

	// Sync lease (Redis). Without Redis overlapping runs are possible;
	// dedup keeps them harmless.
	if deps.Redis != nil {
		deps.SyncLease = lease.NewRedisLease(deps.Redis, cfg.WorkerID, cfg.SyncLeaseTTL)
	}

	// Messaging (Redis Streams)
	if deps.Redis != nil {
		deps.Stream = stream.NewRedisStream(deps.Redis, "mailsync-workers")
		deps.Stream.Tune(cfg.ConsumerBatchSize, cfg.ConsumerBlockMS)
		deps.Producer = stream.NewProducer(deps.Stream)
	}

	// Services
	deps.TokenService = token.NewService(oauthConfigs(cfg), deps.AccountRepo.UpdateTokens)

	ids, err := snowflake.NewGenerator(int64(os.Getpid() % 1024))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Fetcher = fetch.NewFetcher(deps.Providers, deps.ContentStore, ids)

	deps.ClassifyService = classify.NewService(deps.Classifier, deps.TagRepo, deps.MessageRepo)
	deps.AnalyticsEngine = analytics.NewEngine(deps.AnalyticsRepo)

	deps.Orchestrator = sync.NewOrchestrator(
		deps.AccountRepo,
		deps.MessageRepo,
		deps.TokenService,
		deps.Fetcher,
		deps.ClassifyService,
		deps.AnalyticsEngine,
		deps.BodyArchive,
		deps.SyncLease,
		cfg.SyncPageLimit,
	)

	return deps, cleanup, nil
}

// oauthConfigs builds the per-provider OAuth configs the token service
// refreshes against.
func oauthConfigs(cfg *config.Config) map[domain.Provider]*oauth2.Config {
	configs := make(map[domain.Provider]*oauth2.Config)

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		configs[domain.ProviderGoogle] = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.readonly",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		}
	}

	if cfg.MicrosoftClientID != "" && cfg.MicrosoftClientSecret != "" {
		configs[domain.ProviderOutlook] = &oauth2.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  cfg.MicrosoftRedirectURL,
			Scopes: []string{
				"https://graph.microsoft.com/Mail.Read",
				"offline_access",
			},
			Endpoint: microsoft.AzureADEndpoint(cfg.MicrosoftTenantID),
		}
	}

	return configs
}
