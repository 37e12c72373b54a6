package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"career-compass/internal/config"
	"career-compass/internal/db"
	apihttp "career-compass/internal/http"
	"career-compass/internal/llm"
	"career-compass/internal/modules"
	"career-compass/internal/repository"
	"career-compass/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	local, err := repository.NewSQLiteStore(cfg.LocalDBPath)
	if err != nil {
		logger.Fatal("local store", zap.Error(err))
	}
	defer local.Close()

	deviceToken, err := local.DeviceToken(ctx)
	if err != nil {
		logger.Fatal("device token", zap.Error(err))
	}

	var remote repository.Backend
	if cfg.RemoteEnabled() {
		pool, err := db.NewPool(ctx, &cfg.StorageConfig)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Ping(ctx, pool); err != nil {
			logger.Fatal("db ping", zap.Error(err))
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		remote = repository.NewPgStore(pool)
	} else {
		logger.Warn("DATABASE_URL not configured, account storage disabled")
	}

	catalog, err := modules.Load(cfg.ModulesFile)
	if err != nil {
		logger.Fatal("module catalog", zap.Error(err))
	}

	var insightsCache service.InsightsCacheStore = service.NewMemoryInsightsCache()
	analysisLimiter := service.NewMemoryAnalysisRateLimiter(cfg.AnalysisRateWindow, cfg.AnalysisRateLimit)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory insights cache", zap.Error(err))
		} else {
			insightsCache = service.NewRedisInsightsCache(redisClient)
			analysisLimiter = service.NewRedisAnalysisRateLimiter(redisClient, cfg.AnalysisRateWindow, cfg.AnalysisRateLimit)
		}
		cancel()
		defer redisClient.Close()
	}

	storage := repository.NewStorageRouter(local, remote, deviceToken)
	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	analyzer := service.NewLLMAnalyzer(llmClient, logger)

	snapshotSvc := service.NewValueSnapshotService(analyzer, storage, logger)
	insightsSvc := service.NewInsightsService(analyzer, storage, insightsCache, cfg.InsightsCacheTTL, logger)
	sessionMgr := service.NewSessionManager(storage, catalog, logger)
	accountSvc := service.NewAccountService(storage, insightsSvc, logger)
	migrationSvc := service.NewMigrationService(local, remote, logger)

	tracker := service.NewIdentityTracker(deviceToken)
	if account, err := local.MigratedAccount(ctx); err != nil {
		logger.Warn("read migrated account", zap.Error(err))
	} else if account != "" {
		// La instancia ya migro: arranca autenticada con esa cuenta.
		if _, err := tracker.Authenticate(account); err != nil {
			logger.Warn("restore identity", zap.Error(err))
		}
	}
	verifier := service.NewTokenVerifier(cfg.AuthJWTSecret, cfg.AuthJWTIssuer)
	if !verifier.Enabled() {
		logger.Warn("AUTH_JWT_SECRET not configured, instance stays anonymous")
	}

	router := apihttp.NewRouter(logger, apihttp.RouterDeps{
		Tracker:    tracker,
		Verifier:   verifier,
		AdminToken: cfg.AdminToken,
		Identity:   apihttp.NewIdentityHandler(logger, tracker, verifier, migrationSvc),
		Sessions:   apihttp.NewSessionHandler(logger, catalog, sessionMgr, snapshotSvc, analysisLimiter),
		Insights:   apihttp.NewInsightsHandler(logger, snapshotSvc, insightsSvc, analysisLimiter),
		Accounts:   apihttp.NewAccountHandler(logger, accountSvc),
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.Bool("remote_enabled", remote != nil),
		zap.Int("modules", len(catalog.All())),
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
