// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/sahilsz/node-docker/internal/auth"
	"github.com/sahilsz/node-docker/internal/config"
	"github.com/sahilsz/node-docker/internal/database"
	"github.com/sahilsz/node-docker/internal/logging"
	"github.com/sahilsz/node-docker/internal/posts"
	"github.com/sahilsz/node-docker/internal/session"
	"github.com/sahilsz/node-docker/internal/users"
)

const (
	serviceName = "node-docker-api"
	version     = "0.1.0"

	shutdownTimeout = 10 * time.Second
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Setup(serviceName, version, cfg.LogFormat, nil)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logging.LogError(context.Background(), logger, "server stopped", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.GinMode)

	// 接続は起動時だけリトライし、以降の再接続は各ドライバのプールに任せる
	policy := database.RetryPolicy{MaxRetries: uint64(cfg.ConnectRetries), Backoff: cfg.ConnectBackoff}
	mongoClient, err := database.ConnectMongo(ctx, cfg.MongoURI, policy, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = mongoClient.Disconnect(context.Background())
	}()

	rdb, err := database.ConnectRedis(ctx, cfg.RedisURL, policy, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	db := mongoClient.Database(cfg.MongoDatabase)
	userStore := users.NewMongoStore(db)
	if err := userStore.EnsureIndexes(ctx); err != nil {
		return err
	}
	postStore := posts.NewMongoStore(db)
	if err := postStore.EnsureIndexes(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		recorder auth.AuditRecorder
		activity auth.ActivityLister
	)
	if cfg.AuditEnabled {
		manager, auditStore, err := setupAudit(ctx, cfg, db, logger)
		if err != nil {
			return err
		}
		manager.StartWorkers()
		defer manager.Shutdown()
		recorder = manager
		activity = auditStore
	}

	authService := auth.NewService(
		userStore,
		session.NewStore(rdb),
		auth.NewBcryptHasher(cfg.BcryptCost),
		auth.Options{
			SessionTTL: cfg.SessionTTL,
			Audit:      recorder,
			Metrics:    auth.NewMetrics(registry),
			Logger:     logger,
		},
	)

	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(logger))

	// CORSミドルウェアの設定（セッションクッキーを送れるよう credentials を許可）
	if origins := cfg.AllowedOrigins(); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", logging.RequestIDHeader}
		corsConfig.ExposeHeaders = []string{logging.RequestIDHeader}
		router.Use(cors.New(corsConfig))
	}

	router.Use(auth.SessionMiddleware(auth.CookieOptions{
		Secret: []byte(cfg.SessionSecret),
		TTL:    authService.SessionTTL(),
		Secure: cfg.GinMode == gin.ReleaseMode,
	}))

	setupRoutes(router, routeDeps{
		auth:     authService,
		activity: activity,
		posts:    postStore,
		mongo:    mongoClient,
		redis:    rdb,
		registry: registry,
		logger:   logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting API server", "addr", srv.Addr, "mode", cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routeDeps struct {
	auth     *auth.Service
	activity auth.ActivityLister
	posts    posts.Store
	mongo    *mongo.Client
	redis    *redis.Client
	registry *prometheus.Registry
	logger   *slog.Logger
}

// setupRoutes はルーティングの配線を行います。
func setupRoutes(router *gin.Engine, deps routeDeps) {
	router.GET("/health", healthHandler(deps.mongo, deps.redis))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{})))

	guard := auth.NewGuard(deps.auth, deps.logger)

	auth.NewHandler(deps.auth, deps.activity, deps.logger).
		Register(router.Group("/users"), guard)

	// 読み取りは公開、書き込みはログイン必須
	posts.NewHandler(deps.posts, deps.logger).
		Register(router.Group("/posts"), guard.RequireLogin())
}

// healthHandler はヘルスチェックエンドポイントのハンドラーです。
func healthHandler(mongoClient *mongo.Client, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"mongo": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := mongoClient.Ping(ctx, nil); err != nil {
			checks["mongo"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":  map[bool]string{true: "ok", false: "degraded"}[status == http.StatusOK],
			"service": serviceName,
			"version": version,
			"checks":  checks,
		})
	}
}
