package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/certforge/certmailer/internal/api"
	"github.com/certforge/certmailer/internal/batch"
	"github.com/certforge/certmailer/internal/certstore"
	"github.com/certforge/certmailer/internal/config"
	"github.com/certforge/certmailer/internal/gmail"
	"github.com/certforge/certmailer/internal/pkg/logger"
	"github.com/certforge/certmailer/internal/sendlog"
	"github.com/certforge/certmailer/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("loading config failed", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logger.DEBUG)
	}

	certs, err := buildResolver(cfg)
	if err != nil {
		logger.Error("building certificate resolver failed", "error", err)
		os.Exit(1)
	}

	executor := batch.NewExecutor(certs, dispatcherFactory(cfg.Gmail))

	var sessions *session.Store
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		sessions = session.NewStore(rdb, cfg.Redis.SessionTTL())
		logger.Info("session store enabled", "redis_addr", cfg.Redis.Addr)
	}

	var history *sendlog.Log
	if cfg.SendLog.Enabled {
		db, err := sql.Open("postgres", cfg.SendLog.DatabaseURL)
		if err != nil {
			logger.Error("opening send log database failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		history = sendlog.New(db)
		logger.Info("send log enabled")
	}

	server := api.NewServer(api.NewHandlers(cfg.Pacing, executor, sessions, history))

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server exited", "error", err)
		os.Exit(1)
	case sig := <-done:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// buildResolver picks the certificate source configured for this
// deployment.
func buildResolver(cfg *config.Config) (certstore.Resolver, error) {
	switch cfg.Certificates.Source {
	case "s3":
		return certstore.NewS3(context.Background(),
			cfg.Certificates.S3Bucket, cfg.Certificates.S3Region, cfg.Certificates.GetAWSProfile())
	default:
		return certstore.NewLocal(cfg.Certificates.DefaultDir), nil
	}
}

// dispatcherFactory builds per-batch Gmail clients honoring the
// configured base URL and retry policy.
func dispatcherFactory(cfg config.GmailConfig) batch.DispatcherFactory {
	return func(token string) batch.Dispatcher {
		opts := []gmail.Option{gmail.WithTimeout(cfg.Timeout())}
		if cfg.BaseURL != "" {
			opts = append(opts, gmail.WithBaseURL(cfg.BaseURL))
		}
		if cfg.RetryTransient {
			opts = append(opts, gmail.WithTransientRetry(cfg.MaxRetries))
		}
		return gmail.NewClient(token, opts...)
	}
}
