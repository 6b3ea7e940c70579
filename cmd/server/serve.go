package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/DimBertolami/latestbot/internal/api"
	"github.com/DimBertolami/latestbot/internal/config"
	"github.com/DimBertolami/latestbot/internal/credentials"
	"github.com/DimBertolami/latestbot/internal/crypto"
	"github.com/DimBertolami/latestbot/internal/engine"
	"github.com/DimBertolami/latestbot/internal/exchange"
	"github.com/DimBertolami/latestbot/internal/export"
	"github.com/DimBertolami/latestbot/internal/pricing"
	"github.com/DimBertolami/latestbot/internal/risk"
	"github.com/DimBertolami/latestbot/internal/store"
	"github.com/DimBertolami/latestbot/internal/strategy"
)

const appID = "paper-trading"

// serveOptions override the environment when set on the command line.
type serveOptions struct {
	port       string
	configPath string
}

func (o *serveOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.port, "port", "", "listen port (default $PORT or 5001)")
	cmd.Flags().StringVar(&o.configPath, "config", "", "trading config file (default $PAPER_CONFIG)")
}

func serve(ctx context.Context, opts serveOptions) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	env := config.LoadEnv()
	if opts.port != "" {
		env.Port = opts.port
	}
	if opts.configPath != "" {
		env.ConfigPath = opts.configPath
	}

	// --- Configuration ---
	cfgStore, err := config.Open(env.ConfigPath)
	if err != nil {
		slog.Warn("continuing with default configuration", "err", err)
	}
	cfg := cfgStore.Get()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	// --- Credentials ---
	creds := credentials.NewManager(cfgStore,
		exchange.NewDialer(exchange.Options{Testnet: cfg.Testnet}),
		credentials.WithBackup(filepath.Join(filepath.Dir(env.ConfigPath), credentials.BackupFileName), newSealer(env.EncryptionKey)),
	)
	if creds.Configured() {
		creds.Connect(ctx)
	} else if src, ok := creds.Recover(ctx); ok {
		slog.Info("recovered API keys", "source", string(src))
	} else {
		slog.Warn("no API keys configured, prices will be synthetic once trading starts with allow_synthetic")
	}

	// --- Trade journal ---
	journal, cleanup, err := openJournal(ctx, env)
	if err != nil {
		return err
	}
	defer cleanup()

	// --- Engine ---
	hub := api.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	eng := engine.New(cfgStore, pricing.NewSource(creds), creds,
		engine.WithStore(journal),
		engine.WithSignal(strategy.NewThreshold(cfg.StrategySettings)),
		engine.WithLimits(risk.NewLimits(cfg.StrategySettings)),
		engine.WithNotifier(hub),
	)
	if err := eng.Restore(ctx); err != nil {
		slog.Error("failed to restore ledger from journal, starting fresh", "err", err)
	}

	exporter := export.NewWriter(env.StatusFile)
	if err := exporter.Write(eng.Status(ctx)); err != nil {
		slog.Error("status export failed", "path", exporter.Path(), "err", err)
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + env.Port,
		Handler:      api.NewRouter(api.NewHandler(eng, exporter), hub),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("paper-trading listening", "port", env.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		eng.Stop()
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down paper-trading...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	eng.Stop()
	if err := exporter.Write(eng.Status(shutdownCtx)); err != nil {
		slog.Error("status export failed", "path", exporter.Path(), "err", err)
	}
	slog.Info("paper-trading stopped")
	return nil
}

// newSealer protects the key backup with PAPER_ENCRYPTION_KEY, or a
// machine-bound key when none is set. Nil means plain-text backups.
func newSealer(encoded string) *crypto.Sealer {
	var (
		key []byte
		err error
	)
	if encoded != "" {
		key, err = crypto.KeyFromBase64(encoded)
	} else {
		key, err = crypto.MachineKey(appID)
	}
	if err == nil {
		var s *crypto.Sealer
		if s, err = crypto.NewSealer(key); err == nil {
			return s
		}
	}
	slog.Warn("API key backup will not be encrypted", "err", err)
	return nil
}

// openJournal picks PostgreSQL (optionally behind Redis), then SQLite,
// then memory.
func openJournal(ctx context.Context, env config.Env) (store.Store, func(), error) {
	var cleanup []func()
	done := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	switch {
	case env.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, env.DatabaseURL)
		if err != nil {
			return nil, done, fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			done()
			return nil, func() {}, fmt.Errorf("migrate trade journal: %w", err)
		}
		slog.Info("connected to PostgreSQL")

		var st store.Store = pg
		if env.RedisURL != "" {
			opt, err := redis.ParseURL(env.RedisURL)
			if err != nil {
				done()
				return nil, func() {}, fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
		return st, done, nil

	case env.SQLitePath != "":
		lite, err := store.OpenSQLite(env.SQLitePath)
		if err != nil {
			return nil, done, err
		}
		cleanup = append(cleanup, func() { lite.Close() })
		slog.Info("using SQLite trade journal", "path", env.SQLitePath)
		return lite, done, nil
	}

	slog.Warn("DATABASE_URL and SQLITE_PATH not set, using in-memory journal (trades will not persist)")
	return store.NewMemoryStore(), done, nil
}
