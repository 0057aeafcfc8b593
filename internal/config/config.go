package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LedgerDB    = "db"
	LedgerRedis = "redis"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ServiceName string
	ServerAddr  string
	LogLevel    string

	DBDriver    string
	DatabaseURL string

	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	EmailTTL      time.Duration
	BcryptCost    int

	RequireEmailVerification bool

	LedgerBackend string
	RedisURL      string

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	AuditIndex string

	PruneInterval time.Duration
	PublicBaseURL string
	CORSOrigins   []string
	EmailRateRPS  float64
	CSRF          bool

	AdminEmail    string
	AdminUsername string
	AdminPassword string
}

// Load reads .env (if present) and the process environment. All problems
// are reported together.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		ServiceName: EnvDefault("SERVICE_NAME", "photoshare-auth"),
		ServerAddr:  EnvDefault("SERVER_ADDR", ":8080"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DBDriver:    strings.ToLower(EnvDefault("DB_DRIVER", DriverPostgres)),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:     []byte(os.Getenv("JWT_SECRET")),
		RefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),

		LedgerBackend: strings.ToLower(EnvDefault("LEDGER_BACKEND", LedgerDB)),
		RedisURL:      os.Getenv("REDIS_URL"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "auth-events"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		AuditIndex: EnvDefault("AUDIT_INDEX", "auth-audit"),

		PublicBaseURL: strings.TrimRight(EnvDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		CORSOrigins:   CSV(os.Getenv("CORS_ORIGINS")),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminUsername: EnvDefault("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	var err error
	cfg.AccessTTL, err = EnvDurationDefault("ACCESS_TTL", 15*time.Minute)
	collect(err)
	cfg.RefreshTTL, err = EnvDurationDefault("REFRESH_TTL", 7*24*time.Hour)
	collect(err)
	cfg.EmailTTL, err = EnvDurationDefault("EMAIL_TTL", 12*time.Hour)
	collect(err)
	cfg.PruneInterval, err = EnvDurationDefault("PRUNE_INTERVAL", 10*time.Minute)
	collect(err)
	cfg.RequireEmailVerification, err = EnvBoolDefault("REQUIRE_EMAIL_VERIFICATION", false)
	collect(err)
	cfg.BcryptCost, err = EnvIntDefault("BCRYPT_COST", 10)
	collect(err)
	cfg.EmailRateRPS, err = EnvFloatDefault("EMAIL_RATE_RPS", 0.2)
	collect(err)
	cfg.CSRF, err = EnvBoolDefault("CSRF_ENABLED", true)
	collect(err)

	if len(cfg.JWTSecret) == 0 {
		collect(errors.New("missing required env JWT_SECRET"))
	}
	if len(cfg.RefreshSecret) == 0 {
		collect(errors.New("missing required env JWT_REFRESH_SECRET"))
	}
	if len(cfg.JWTSecret) > 0 && string(cfg.JWTSecret) == string(cfg.RefreshSecret) {
		collect(errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if cfg.PruneInterval <= 0 {
		collect(fmt.Errorf("PRUNE_INTERVAL must be positive, got %s", cfg.PruneInterval))
	}
	if cfg.DatabaseURL == "" {
		collect(errors.New("missing required env DATABASE_URL"))
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		collect(fmt.Errorf("ACCESS_TTL (%s) must be shorter than REFRESH_TTL (%s)", cfg.AccessTTL, cfg.RefreshTTL))
	}
	switch cfg.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		collect(fmt.Errorf("DB_DRIVER: unsupported driver %q", cfg.DBDriver))
	}
	switch cfg.LedgerBackend {
	case LedgerDB:
	case LedgerRedis:
		if cfg.RedisURL == "" {
			collect(errors.New("LEDGER_BACKEND=redis requires REDIS_URL"))
		}
	default:
		collect(fmt.Errorf("LEDGER_BACKEND: unsupported backend %q", cfg.LedgerBackend))
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		collect(errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}
