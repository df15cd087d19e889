// Command api runs the qarzhy back-office HTTP service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"qarzhy.org/internal/auth"
	"qarzhy.org/internal/config"
	"qarzhy.org/internal/httpapi"
	"qarzhy.org/internal/idempotency"
	"qarzhy.org/internal/loan"
	"qarzhy.org/internal/obs"
	"qarzhy.org/internal/sequence"
	"qarzhy.org/migrations"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	obs.Init()
	log := obs.Logger()
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		db        *sql.DB
		authStore auth.Store
		loanStore loan.Store
		idemStore idempotency.Store
	)
	if cfg.DevMode && cfg.DatabaseURL == "" {
		log.Warn("running with in-memory stores; all state is lost on restart")
		authStore = auth.NewMemoryStore()
		loanStore = loan.NewMemoryStore()
		idemStore = idempotency.NewMemoryStore()
	} else {
		db, err = openDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrate(db); err != nil {
			return err
		}
		authStore = auth.NewPGStore(db)
		loanStore = loan.NewPGStore(db, sequence.NewPGAllocator())
		idemStore = idempotency.NewPGStore(db)
	}

	authSvc, err := auth.NewService(authStore, cfg.JWTSecret,
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithBcryptCost(cfg.BcryptCost),
	)
	if err != nil {
		return err
	}
	loanSvc := loan.NewService(loanStore)

	opts := []httpapi.Option{
		httpapi.WithVersion(version),
		httpapi.WithIdempotencyTTL(cfg.IdempotencyTTL),
		httpapi.WithRateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
	}
	if db != nil {
		opts = append(opts, httpapi.WithDB(db))
	}
	api := httpapi.New(authSvc, authStore, loanSvc, idemStore, opts...)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
