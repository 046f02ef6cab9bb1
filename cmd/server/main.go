package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/govlink/govlink/internal/activity"
	"github.com/govlink/govlink/internal/config"
	"github.com/govlink/govlink/internal/db"
	"github.com/govlink/govlink/internal/es"
	"github.com/govlink/govlink/internal/logging"
	"github.com/govlink/govlink/internal/mail"
	"github.com/govlink/govlink/internal/metrics"
	"github.com/govlink/govlink/internal/middleware/csrf"
	loggingmw "github.com/govlink/govlink/internal/middleware/logging"
	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/mykafka"
	"github.com/govlink/govlink/internal/partition"
	"github.com/govlink/govlink/internal/ratelimit"
	"github.com/govlink/govlink/internal/repo"
	"github.com/govlink/govlink/internal/service"
	"github.com/govlink/govlink/internal/tokens"
	httpserver "github.com/govlink/govlink/internal/transport/http"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppEnv)
	slog.SetDefault(logger)
	ctx := context.Background()

	parts := partition.DefaultRegistry().All()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store init: %v", err)
	}
	if err := store.Migrate(ctx, parts); err != nil {
		log.Fatalf("store migrate: %v", err)
	}

	tm, err := tokens.NewManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, tokens.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		log.Fatal(err)
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemory(cfg.RateLimitAttempts, cfg.RateLimitWindow)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		limiter = ratelimit.NewRedis(rdb, cfg.RateLimitAttempts, cfg.RateLimitWindow)
		logger.Info("ratelimit_backend", "backend", "redis")
	}

	var (
		sinks  activity.Multi
		mailer mail.Sender = &mail.LogSender{Log: logger}
		prod   *mykafka.Producer
	)
	if len(cfg.KafkaBrokers) > 0 {
		prod, err = mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Fatal(err)
		}
		sinks = append(sinks, &activity.KafkaSink{Pub: prod, Topic: cfg.KafkaActivityTopic})
		mailer = &mail.KafkaSender{Pub: prod, Topic: cfg.KafkaMailTopic}
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS is empty, mail links go to the log")
	}

	var search *activity.ElasticSink
	if cfg.ESURL != "" {
		esClient, err := es.NewClient(ctx, es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword})
		if err != nil {
			log.Fatal(err)
		}
		search = &activity.ElasticSink{ES: esClient, Index: cfg.ESActivityIndex}
		sinks = append(sinks, search)
	}

	var sink activity.Sink = activity.Nop{}
	var async *activity.Async
	if len(sinks) > 0 {
		async = activity.NewAsync(sinks, logger, 1024)
		sink = async
	}

	metrics.Init()

	deps := service.Deps{Store: store, Tokens: tm, Activity: sink, Mail: mailer}
	var svcs []*service.AuthService
	for _, p := range parts {
		svcs = append(svcs, service.NewAuthService(p, deps,
			service.WithLockout(cfg.LoginMaxFailures, cfg.LoginLockDuration),
			service.WithPublicBaseURL(cfg.PublicBaseURL),
		))
	}
	seedSuperadmin(ctx, logger, cfg, svcs)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpserver.ErrorHandler
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), metrics.Instrument(), loggingmw.RequestLogger(logger))
	if cfg.CSRFEnabled {
		e.Use(csrf.Middleware(csrf.Config{
			Secure:    cfg.Production(),
			SkipPaths: []string{"/health/live", "/health/ready", "/metrics"},
		}))
	}

	routes := httpserver.Deps{
		Store:         store,
		Services:      svcs,
		Limiter:       limiter,
		SecureCookies: cfg.Production(),
	}
	if search != nil {
		routes.Activity = search
	}
	httpserver.Register(e, &routes)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("http_listen", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	go func() {
		<-quit
		log.Println("force exit")
		os.Exit(1)
	}()

	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if async != nil {
		async.Close()
	}
	if prod != nil {
		if err := prod.Close(); err != nil {
			log.Printf("kafka close error: %v", err)
		}
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}
	if err := closeStore(shutdownCtx); err != nil {
		log.Printf("store close error: %v", err)
	}

	log.Println("shutdown complete")
}

func openStore(ctx context.Context, cfg config.Config) (repo.Store, func(context.Context) error, error) {
	switch cfg.StoreDriver {
	case "mongo":
		r, err := repo.NewMongoRepo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "postgres":
		gdb, err := db.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewGormRepo(gdb), closeGorm(gdb), nil
	case "sqlite":
		gdb, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewGormRepo(gdb), closeGorm(gdb), nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func closeGorm(gdb *gorm.DB) func(context.Context) error {
	return func(context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}

func seedSuperadmin(ctx context.Context, l *slog.Logger, cfg config.Config, svcs []*service.AuthService) {
	if cfg.SeedSuperadminEmail == "" || cfg.SeedSuperadminPassword == "" {
		return
	}
	for _, svc := range svcs {
		if svc.Partition().Name != partition.Admin {
			continue
		}
		pr, created, err := svc.Seed(ctx, cfg.SeedSuperadminEmail, cfg.SeedSuperadminPassword, models.RoleSuperadmin)
		if err != nil {
			log.Fatalf("seed superadmin: %v", err)
		}
		if created {
			l.Info("superadmin_seeded", "principal_id", pr.ID)
		}
	}
}
