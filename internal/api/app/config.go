package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Cache drivers selectable through CACHE_DRIVER.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
)

type Config struct {
	Env                  string        `env:"ENV" envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`

	// Dev switches to loopback rate-limit IPs, insecure cookies and http URLs.
	Dev bool `env:"DEV" envDefault:"false"`
	// Hostname is the public host used in signed URLs and redirect checks.
	Hostname string `env:"HOSTNAME" envDefault:"localhost:8080"`

	AuthURL      string `env:"AUTH_URL"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURI  string `env:"REDIRECT_URI"`
	APIAudience  string `env:"API_AUDIENCE"`

	AuthSecret                 string `env:"AUTH_SECRET"`
	ObjectStorageSigningSecret string `env:"OBJECT_STORAGE_SIGNING_SECRET"`
	// RateLimitSkipSecret is optional. Empty disables the bypass header.
	RateLimitSkipSecret string `env:"RATE_LIMIT_SKIP_SECRET"`

	SessionCookie string `env:"SESSION_COOKIE" envDefault:"kz_session"`

	CacheDriver       string `env:"CACHE_DRIVER" envDefault:"memory"`
	RedisURL          string `env:"REDIS_URL"`
	CacheDatabaseFile string `env:"CACHE_DATABASE_FILE" envDefault:"cache.db"`

	ObjectsDatabaseFile string        `env:"OBJECTS_DATABASE_FILE" envDefault:"objects.db"`
	MaxFileSize         int64         `env:"MAX_FILE_SIZE" envDefault:"104857600"`
	ObjectLinkTTL       time.Duration `env:"OBJECT_LINK_TTL" envDefault:"30m"`

	RateLimitAnonRequests int           `env:"RATE_LIMIT_ANON_REQUESTS" envDefault:"5"`
	RateLimitAuthRequests int           `env:"RATE_LIMIT_AUTH_REQUESTS" envDefault:"50"`
	RateLimitWindow       time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitIPHeader     string        `env:"RATE_LIMIT_IP_HEADER" envDefault:"CF-Connecting-IP"`

	IdPRequestsPerSecond float64 `env:"IDP_REQUESTS_PER_SECOND" envDefault:"10"`
}

// LoadConfig reads a .env file when present, then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	required := []struct{ name, value string }{
		{"AUTH_URL", c.AuthURL},
		{"CLIENT_ID", c.ClientID},
		{"CLIENT_SECRET", c.ClientSecret},
		{"REDIRECT_URI", c.RedirectURI},
		{"API_AUDIENCE", c.APIAudience},
		{"AUTH_SECRET", c.AuthSecret},
		{"OBJECT_STORAGE_SIGNING_SECRET", c.ObjectStorageSigningSecret},
	}
	var errs []error
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if c.AuthSecret != "" && c.AuthSecret == c.ObjectStorageSigningSecret {
		errs = append(errs, errors.New("AUTH_SECRET and OBJECT_STORAGE_SIGNING_SECRET must differ"))
	}

	switch c.CacheDriver {
	case CacheMemory, CacheSQLite:
	case CacheRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when CACHE_DRIVER is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_DRIVER %q", c.CacheDriver))
	}

	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}
