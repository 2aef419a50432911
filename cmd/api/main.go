package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledger-config/internal/auth"
	"ledger-config/internal/bulk"
	"ledger-config/internal/cache"
	"ledger-config/internal/catalog"
	"ledger-config/internal/config"
	"ledger-config/internal/database"
	"ledger-config/internal/entity"
	"ledger-config/internal/events"
	"ledger-config/internal/metrics"
	"ledger-config/internal/process"
	"ledger-config/pkg/logger"
	"ledger-config/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

const bulkSlotTTL = 30 * time.Minute

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadEnvFiles(".env"); err != nil {
		slog.Warn("env file not loaded", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := database.NewMigrator(db, log).Apply(rootCtx, database.Schema); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	opts := entity.Options{}
	bulkOpts := bulkOptions{maxUploadBytes: cfg.Bulk.MaxUploadBytes}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		opts.Cache = cache.NewRecordCache(rdb, cfg.Redis.CacheTTL)
		bulkOpts.cap, err = utils.NewConcurrencyCap(rdb, "ledger-config:bulk:", cfg.Bulk.MaxConcurrent, bulkSlotTTL)
		if err != nil {
			log.Error("bulk cap init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("redis disabled: no record cache, no bulk concurrency cap")
	}

	if pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic); pub != nil {
		defer func() {
			if err := pub.Close(); err != nil {
				log.Error("kafka publisher close failed", "err", err)
			}
		}()
		opts.Observers = append(opts.Observers, pub)
		log.Info("publishing change events", "topic", cfg.Kafka.Topic)
	}

	cat, err := catalog.New(entity.NewPostgresStore(db), opts)
	if err != nil {
		log.Error("catalog init failed", "err", err)
		os.Exit(1)
	}

	processes := process.NewService(process.NewPostgresRepo(db))
	bulkOpts.engine = bulk.NewEngine(processes, cfg.Bulk.LogDir, cfg.Bulk.Workers)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	registerRoutes(r, routeDeps{
		db:        db,
		authMW:    auth.RequireAccessToken(authManager),
		catalog:   cat,
		processes: processes,
		bulk:      bulkOpts,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
