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

	"coincall-platform/internal/audit"
	"coincall-platform/internal/auth"
	"coincall-platform/internal/billing"
	"coincall-platform/internal/calls"
	"coincall-platform/internal/config"
	"coincall-platform/internal/httpapi"
	"coincall-platform/internal/metrics"
	"coincall-platform/internal/pricing"
	"coincall-platform/internal/realtime"
	"coincall-platform/internal/reporting"
	"coincall-platform/internal/wallet"
	"coincall-platform/pkg/logger"
	"coincall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: "coincall-api",
	})
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
	}

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.DB.ConnMaxIdleTime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := utils.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("migrations applied")
	}
	if err := metrics.RegisterDBStats(db, cfg.DB.Name); err != nil {
		log.Warn("db stats collector not registered", "err", err)
	}

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		return err
	}
	defer rdb.Close()

	priceSvc := pricing.NewService(pricing.RateCard{
		VoicePerMinute:         cfg.Billing.RateVoiceCoins,
		VideoPerMinute:         cfg.Billing.RateVideoCoins,
		MinimumBillableSeconds: cfg.Billing.MinBillableSeconds,
	})
	walletSvc := wallet.NewService(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	txRepo := billing.NewPostgresRepo(db)

	// The hub reads history through the billing service, which publishes through
	// the hub; the late binding breaks the cycle.
	var history lateHistory
	hub := realtime.NewHub(rdb, &history, realtime.Options{
		SessionSeenCapacity: cfg.Realtime.SessionSeenCapacity,
		SessionSeenTTL:      cfg.Ingest.SeenTTL,
		SyncLimit:           cfg.Realtime.SyncLimit,
		MaxConnsPerUser:     cfg.Realtime.MaxConnsPerUser,
		AllowedOrigins:      cfg.Realtime.AllowedOrigins,
	}, log)

	billingSvc := billing.NewService(billing.Deps{
		Claims:    billing.NewRedisClaimStore(rdb, cfg.Ingest.ClaimTTL),
		Repo:      txRepo,
		Wallet:    walletSvc,
		Publisher: hub,
		Auditor:   auditSvc,
		Estimator: priceSvc,
		Seen:      calls.NewBoundedSeenSet(cfg.Ingest.SeenCapacity, cfg.Ingest.SeenTTL),
	})
	history.src = billingSvc

	h := httpapi.Handlers{
		Auth:    authManager,
		Calls:   billingSvc,
		Wallet:  walletSvc,
		Pricing: priceSvc,
		Reports: reporting.NewService(billingSvc, walletSvc),
		Audit:   auditSvc,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	registerRoutes(r, routeDeps{
		handlers:  h,
		authMW:    auth.RequireAccessToken(authManager),
		ws:        realtime.NewHandler(hub),
		devLogin:  cfg.Auth.DevLogin,
		minimumFn: priceSvc.MinimumToStart,
		health: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type lateHistory struct {
	src realtime.HistorySource
}

func (l *lateHistory) History(ctx context.Context, userID string, limit int) ([]calls.Transaction, error) {
	return l.src.History(ctx, userID, limit)
}
