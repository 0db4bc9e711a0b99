package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/promptgist/promptgist/handlers"
	"github.com/promptgist/promptgist/internal/config"
	"github.com/promptgist/promptgist/internal/database"
	"github.com/promptgist/promptgist/internal/document/handler"
	"github.com/promptgist/promptgist/internal/document/repository"
	"github.com/promptgist/promptgist/internal/document/service"
	"github.com/promptgist/promptgist/internal/oidc"
	"github.com/promptgist/promptgist/internal/realtime"
	"github.com/promptgist/promptgist/internal/sessions"
	"github.com/promptgist/promptgist/internal/storage"
	"github.com/promptgist/promptgist/internal/tokens"
	"github.com/promptgist/promptgist/internal/users"
	"github.com/promptgist/promptgist/pkg/logger"
	"github.com/promptgist/promptgist/pkg/metrics"
	"github.com/promptgist/promptgist/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v minio=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.CORS())

	// Redis backs the event bus, sessions, the token blacklist and the shared
	// rate limiter. Everything degrades to in-process state without it.
	var rdb redis.UniversalClient
	if addr := cfg.Redis.Addr(); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", addr, err)
			_ = client.Close()
		} else {
			logger.Infof("connected to Redis: %s", addr)
			rdb = client
			defer func() { _ = client.Close() }()
		}
	}

	var mongoClient *mongo.Client
	var db *mongo.Database
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, time.Second)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		mongoClient = client
		db = client.Database(cfg.MongoDB.Database)
		defer func() { _ = client.Disconnect(context.Background()) }()
		logger.Infof("connected to MongoDB database %q", cfg.MongoDB.Database)
	}

	// documents
	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer)
	var publisher realtime.Publisher = realtime.NewLocalBus(hub)
	var bus *realtime.RedisBus
	if rdb != nil {
		bus = realtime.NewRedisBus(rdb, cfg.Realtime.ChannelPrefix, xid.New().String(), hub)
		publisher = bus
	}

	var archive service.Archiver
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.NewMinIOStorage(cfg.MinIO)
		if err != nil {
			logger.Warnf("version archive disabled: %v", err)
		} else {
			archive = storage.NewVersionArchive(store, cfg.MinIO.URLExpiry)
		}
	}

	opts := service.Options{
		Publisher:    publisher,
		Archiver:     archive,
		PublicOrigin: cfg.Share.PublicOrigin,
		CacheSize:    cfg.Cache.Documents,
	}
	var docs *service.DocumentService
	if db != nil {
		docs, err = service.NewMongoService(db, opts)
	} else {
		opts.Repo = repository.NewMemoryRepo()
		docs, err = service.New(opts)
	}
	if err != nil {
		logger.Fatalf("document service: %v", err)
	}
	if bus != nil {
		bus.OnRemote = func(ev realtime.Event) { docs.Invalidate(ev.DocumentID) }
		if err := bus.Listen(ctx); err != nil {
			logger.Fatalf("realtime subscribe: %v", err)
		}
		defer func() { _ = bus.Close() }()
	}

	// users and sessions
	var userRepo users.UserRepository = users.NewMemoryUserRepository()
	var sessionRepo sessions.Repository = sessions.NewMemoryRepository()
	if db != nil {
		ur := users.NewMongoUserRepository(db.Collection("users"))
		if err := ur.EnsureIndexes(ctx); err != nil {
			logger.Warnf("users indexes: %v", err)
		}
		userRepo = ur
		sr := sessions.NewMongoRepository(db.Collection("sessions"))
		if err := sr.EnsureIndexes(ctx); err != nil {
			logger.Warnf("sessions indexes: %v", err)
		}
		sessionRepo = sr
	}
	if rdb != nil {
		sessionRepo = sessions.NewRedisRepository(rdb, "session:")
	}
	userSvc := users.NewService(userRepo)
	sessionsSvc := sessions.NewService(sessionRepo)
	blacklist := sessions.NewBlacklist(rdb)

	// Bearer tokens are either ours or ID tokens from Keycloak.
	issuer := tokens.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	var idTokens middleware.Verifier
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		ver, err := oidc.NewVerifier(ctx, cfg.Keycloak.Issuer(), cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			idTokens = ver
		}
	}
	if idTokens == nil && cfg.Keycloak.AllowInsecure {
		logger.Warnf("enabling insecure OIDC verifier (integration mode)")
		idTokens = oidc.NewInsecureVerifier()
	}
	verifier := middleware.FirstOf(issuer, idTokens)

	var limit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limit = middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			limit = middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}
	group := func(path string, hs ...gin.HandlerFunc) *gin.RouterGroup {
		if limit != nil {
			hs = append(hs, limit)
		}
		return r.Group(path, hs...)
	}

	auth := handlers.NewAuthHandler(cfg, userSvc, sessionsSvc, handlers.AuthOptions{
		Issuer:    issuer,
		IDTokens:  idTokens,
		Blacklist: blacklist,
	})
	auth.Register(group("/"))

	api := group("/api", middleware.AuthMiddleware(verifier, blacklist))
	api.GET("/v1/me", auth.Me)
	handler.RegisterDocumentRoutes(api, docs, hub)

	handlers.RegisterSwagger(r)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: 200 only when every configured dependency answers
	r.GET("/ready", func(c *gin.Context) {
		rctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}
		if mongoClient != nil {
			deps["mongo"] = mongoClient.Ping(rctx, nil) == nil
			ready = ready && deps["mongo"]
		}
		if rdb != nil {
			deps["redis"] = rdb.Ping(rctx).Err() == nil
			ready = ready && deps["redis"]
		}
		if cfg.Keycloak.URL != "" {
			deps["oidc"] = idTokens != nil
			ready = ready && deps["oidc"]
		}
		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// no WriteTimeout: live document feeds are long-lived
	}
	go func() {
		logger.Infof("starting PromptGist on %s (store=%s bus=%s)", addr, storeName(db), busName(bus))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}

func storeName(db *mongo.Database) string {
	if db == nil {
		return "memory"
	}
	return "mongo"
}

func busName(b *realtime.RedisBus) string {
	if b == nil {
		return "local"
	}
	return "redis"
}
