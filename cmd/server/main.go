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

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/photoshare/internal/audit"
	"github.com/Skotchmaster/photoshare/internal/cache"
	"github.com/Skotchmaster/photoshare/internal/config"
	"github.com/Skotchmaster/photoshare/internal/events"
	"github.com/Skotchmaster/photoshare/internal/hash"
	"github.com/Skotchmaster/photoshare/internal/httpserver"
	"github.com/Skotchmaster/photoshare/internal/logging"
	authmw "github.com/Skotchmaster/photoshare/internal/middleware/auth"
	"github.com/Skotchmaster/photoshare/internal/repo"
	"github.com/Skotchmaster/photoshare/internal/service"
	"github.com/Skotchmaster/photoshare/internal/tokens"
	"github.com/Skotchmaster/photoshare/internal/worker"
)

type publisher interface {
	service.EventPublisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	initCtx = logging.IntoContext(initCtx, logger)

	db, err := config.OpenDB(initCtx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := repo.Migrate(initCtx, db); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}
	store := repo.New(db)

	var (
		ledger service.Ledger
		rdb    *redis.Client
	)
	switch cfg.LedgerBackend {
	case config.LedgerRedis:
		rdb, err = cache.NewRedisClient(initCtx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis init error: %v", err)
		}
		ledger = cache.NewLedger(rdb)
	default:
		ledger = repo.NewLedger(db)
	}

	var bus publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		bus = events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	sinks := audit.Tee{audit.LogSink{L: logger.With("component", "audit")}}
	var auditLog service.AuditReader
	if cfg.ESURL != "" {
		esClient, err := audit.NewESClient(initCtx, cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			logger.Warn("audit_es_unavailable", "error", err)
		} else {
			es := &audit.ESSink{Client: esClient, Index: cfg.AuditIndex}
			if err := es.EnsureIndex(initCtx); err != nil {
				logger.Warn("audit_index_setup_failed", "index", cfg.AuditIndex, "error", err)
			}
			sinks = append(sinks, es)
			auditLog = es
		}
	}

	signer, err := tokens.NewSigner(tokens.Config{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		EmailTTL:      cfg.EmailTTL,
		Issuer:        cfg.ServiceName,
	})
	if err != nil {
		log.Fatalf("token signer: %v", err)
	}

	creds := &service.CredentialStore{
		Users:                store,
		Hasher:               hash.New(cfg.BcryptCost),
		RequireVerifiedEmail: cfg.RequireEmailVerification,
	}
	tokenSvc := &service.TokenService{
		Signer: signer,
		Chains: store,
		Users:  store,
		Ledger: ledger,
		Audit:  sinks,
		Events: bus,
	}
	authSvc := &service.AuthService{
		Credentials:   creds,
		Tokens:        tokenSvc,
		Events:        bus,
		PublicBaseURL: cfg.PublicBaseURL,
	}
	adminSvc := &service.AdminService{
		Users:    store,
		Tokens:   tokenSvc,
		Audit:    sinks,
		AuditLog: auditLog,
		Events:   bus,
	}

	if cfg.AdminEmail != "" {
		u, created, err := creds.EnsureAdmin(initCtx, cfg.AdminEmail, cfg.AdminUsername, cfg.AdminPassword)
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		if created {
			logger.Info("admin_bootstrapped", "user_id", u.ID, "email", u.Email)
		}
	}

	e := echo.New()
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:  &httpserver.AuthHTTP{Svc: authSvc},
		UsersHandler: &httpserver.UsersHTTP{Auth: authSvc, Admin: adminSvc},
		AdminHandler: &httpserver.AdminHTTP{Svc: adminSvc},
		Guard:        authmw.New(tokenSvc),
		Logger:       logger,
		Ready: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return err
			}
			if rdb != nil {
				return cache.Ping(ctx, rdb)
			}
			return nil
		},
		CORSOrigins:  cfg.CORSOrigins,
		EmailRateRPS: cfg.EmailRateRPS,
		CSRF:         cfg.CSRF,
	})

	workerCtx, stopWorkers := context.WithCancel(logging.IntoContext(context.Background(), logger))
	pruner := &worker.PruneLoop{Target: tokenSvc, Interval: cfg.PruneInterval, Logger: logger}
	go pruner.Run(workerCtx)

	go func() {
		if err := e.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("echo start: %v", err)
		}
	}()
	logger.Info("server_started", "addr", cfg.ServerAddr, "ledger", cfg.LedgerBackend)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")
	stopWorkers()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo_shutdown_failed", "error", err)
	}
	if err := bus.Close(); err != nil {
		logger.Error("kafka_close_failed", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("redis_close_failed", "error", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db_close_failed", "error", err)
		}
	}

	logger.Info("shutdown_complete")
}
