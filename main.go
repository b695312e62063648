package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard-api/api"
	"taskboard-api/config"
	"taskboard-api/domain"
	"taskboard-api/logging"
	"taskboard-api/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	base, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	var store domain.Store = storage.NewBreaker(base, storage.BreakerSettings{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	})

	var rc *redis.Client
	if cfg.RedisURL != "" {
		rc = redis.NewClient(redisOptions(cfg.RedisURL))
		defer rc.Close()
		store = storage.NewCache(store, rc, cfg.CacheTTL)
	}

	auth, err := newAuth(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	var issuer domain.TokenIssuer
	if auth.CanIssue() {
		issuer = auth
	}
	broker := api.NewBroker()
	svc := api.Services{
		Users:    domain.NewUserService(store, api.BcryptHasher{Cost: cfg.BcryptCost}, issuer),
		Projects: domain.NewProjectService(store, store),
		Tasks:    domain.NewTaskService(store, store, domain.NewPositionManager(store)),
		Auth:     auth,
		Health:   store,
		Notifier: broker,
		Broker:   broker,
	}
	if rc != nil {
		svc.Dedup = api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
		svc.Notifier = api.NewRedisNotifier(rc, cfg.UpdatesChannel)
		go api.SubscribeUpdates(ctx, rc, cfg.UpdatesChannel, broker)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware())
	if cfg.MetricsEnabled {
		e.Use(echoprometheus.NewMiddleware("taskboard"))
		e.GET("/metrics", echoprometheus.NewHandler())
	}

	api.Register(e, svc, logger)

	go func() {
		logger.WithFields(log.Fields{"port": cfg.Port, "store": cfg.StoreDriver, "redis": rc != nil}).Info("listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}

func openStore(ctx context.Context, cfg config.Config) (domain.Store, func(), error) {
	var dsn string
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return storage.NewMemory(), func() {}, nil
	case config.DriverSQLite:
		dsn = cfg.SQLitePath
	default:
		dsn = cfg.DatabaseURL
	}
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	st, err := storage.Open(openCtx, storage.Options{
		Driver:      cfg.StoreDriver,
		DSN:         dsn,
		MaxConns:    cfg.DBMaxConns,
		AutoMigrate: cfg.AutoMigrate,
	})
	if err != nil {
		return nil, nil, err
	}
	return st, func() {
		if err := st.Close(); err != nil {
			log.WithError(err).Warn("close storage")
		}
	}, nil
}

func newAuth(cfg config.Config) (*api.Auth, error) {
	ac := api.AuthConfig{
		Secret:      []byte(cfg.JWTSecret),
		Audience:    cfg.JWTAudience,
		Issuer:      cfg.JWTIssuer,
		TokenTTL:    cfg.JWTTTL,
		KeyCacheTTL: cfg.JWKSCacheTTL,
	}
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				log.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			return nil, err
		}
		ac.JWKS = jwks
	}
	return api.NewAuth(ac)
}

// redisOptions accepts a redis:// URL or the "host:port,password=...,ssl=true"
// connection string form.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}
