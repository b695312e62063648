// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds every runtime setting of the service.
type Config struct {
	Port string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	DBMaxConns  int
	AutoMigrate bool

	RedisURL       string
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
	UpdatesChannel string

	JWTSecret    string
	JWTTTL       time.Duration
	JWTIssuer    string
	JWTAudience  string
	JWKSURL      string
	JWKSCacheTTL time.Duration
	BcryptCost   int

	CORSAllowedOrigins []string
	MetricsEnabled     bool

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	Log LogConfig
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}

	cfg := Config{
		Port:           r.str("PORT", "8080"),
		StoreDriver:    strings.ToLower(r.str("STORE_DRIVER", DriverPostgres)),
		SQLitePath:     r.str("SQLITE_PATH", "taskboard.db"),
		DBMaxConns:     r.integer("DB_MAX_CONNS", 10),
		AutoMigrate:    r.boolean("AUTO_MIGRATE", true),
		RedisURL:       r.str("REDIS_URL", ""),
		CacheTTL:       r.duration("CACHE_TTL", 5*time.Minute),
		IdempotencyTTL: r.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		UpdatesChannel: r.str("UPDATES_CHANNEL", "taskboard:project-updates"),

		JWTSecret:    r.str("JWT_SECRET", ""),
		JWTTTL:       r.duration("JWT_TTL", 7*24*time.Hour),
		JWTIssuer:    r.str("JWT_ISSUER", ""),
		JWTAudience:  r.str("JWT_AUDIENCE", ""),
		JWKSURL:      r.str("AUTH_JWKS_URL", ""),
		JWKSCacheTTL: r.duration("JWKS_CACHE_TTL", 15*time.Minute),
		BcryptCost:   r.integer("BCRYPT_COST", 10),

		CORSAllowedOrigins: r.list("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MetricsEnabled:     r.boolean("METRICS_ENABLED", false),

		BreakerMaxFailures: uint32(r.integer("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: r.duration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		Log: LogConfig{
			Level:      r.str("LOG_LEVEL", "info"),
			Format:     strings.ToLower(r.str("LOG_FORMAT", "json")),
			File:       r.str("LOG_FILE", ""),
			MaxSizeMB:  r.integer("LOG_MAX_SIZE_MB", 10),
			MaxBackups: r.integer("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: r.integer("LOG_MAX_AGE_DAYS", 28),
		},
	}
	if r.boolean("DEBUG", false) {
		cfg.Log.Level = "debug"
	}
	cfg.DatabaseURL = r.str("DATABASE_URL", "")
	if cfg.DatabaseURL == "" && cfg.StoreDriver == DriverPostgres {
		cfg.DatabaseURL = postgresDSN(r)
	}

	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL or DB_HOST/DB_NAME is required for the postgres driver"))
		}
	case DriverSQLite, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unsupported value %q", c.StoreDriver))
	}
	if c.JWTSecret == "" && c.JWKSURL == "" {
		errs = append(errs, errors.New("JWT_SECRET or AUTH_JWKS_URL is required"))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST: %d is outside 4..31", c.BcryptCost))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.DBMaxConns < 1 {
		errs = append(errs, errors.New("DB_MAX_CONNS must be positive"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: unsupported value %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// postgresDSN assembles a DSN from the discrete DB_* variables.
func postgresDSN(r reader) string {
	host := r.str("DB_HOST", "")
	name := r.str("DB_NAME", "")
	if host == "" || name == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + r.str("DB_PORT", "5432"),
		Path:   "/" + name,
	}
	if user := r.str("DB_USER", ""); user != "" {
		if pass, ok := r.lookup("DB_PASSWORD"); ok {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	q := url.Values{}
	q.Set("sslmode", r.str("DB_SSLMODE", "disable"))
	u.RawQuery = q.Encode()
	return u.String()
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return def
	}
	return v
}

func (r *reader) boolean(key string, def bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return def
	}
	return v
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return v
}

func (r *reader) list(key string, def []string) []string {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
