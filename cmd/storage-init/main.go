// Command storage-init creates or upgrades the database schema and exits.
// Deployments run it once before starting the API with AUTO_MIGRATE=false.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard-api/config"
	"taskboard-api/logging"
	"taskboard-api/storage"
)

const (
	maxAttempts  = 10
	retryBackoff = 3 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if _, err := logging.New(cfg.Log); err != nil {
		log.Fatalf("logging: %v", err)
	}
	log.Info("storage init starting")

	if cfg.StoreDriver == config.DriverMemory {
		log.Info("memory store has no schema; nothing to do")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DatabaseURL
	if cfg.StoreDriver == config.DriverSQLite {
		dsn = cfg.SQLitePath
	}
	if err := migrate(ctx, storage.Options{Driver: cfg.StoreDriver, DSN: dsn, MaxConns: 1}); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Info("storage init complete")
}

// migrate retries while the database is still starting up.
func migrate(ctx context.Context, opts storage.Options) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = migrateOnce(ctx, opts); err == nil {
			return nil
		}
		log.WithError(err).WithField("attempt", attempt).Warn("schema migration failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff):
		}
	}
	return err
}

func migrateOnce(ctx context.Context, opts storage.Options) error {
	st, err := storage.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Migrate(ctx)
}
