package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Port          string `env:"PORT"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`
	LogLevel      string `env:"LOG_LEVEL"`

	StoreDriver   string `env:"STORE_DRIVER"`
	DatabaseURL   string `env:"DATABASE_URL"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES"`

	ReportTimezone     string `env:"REPORT_TIMEZONE"`
	DefaultTaxRate     string `env:"DEFAULT_TAX_RATE"`
	TopProductsLimit   int    `env:"TOP_PRODUCTS_LIMIT"`
	SessionIdleMinutes int    `env:"SESSION_IDLE_MINUTES"`
}

// Load reads an optional .env file, then the process environment, and fills
// defaults for anything left unset.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyDefaults()

	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.TaxRate(); err != nil {
		return Config{}, err
	}
	switch cfg.StoreDriver {
	case DriverMemory, DriverPostgres, DriverMongo:
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Port = orDefault(c.Port, "8080")
	c.AllowedOrigin = orDefault(c.AllowedOrigin, "http://127.0.0.1:3000")
	c.LogLevel = orDefault(strings.ToLower(c.LogLevel), "info")
	c.MongoDatabase = orDefault(c.MongoDatabase, "kedaipos")
	c.AuthSecret = strings.TrimSpace(c.AuthSecret)
	c.DefaultTaxRate = orDefault(c.DefaultTaxRate, "15")

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver == "" {
		switch {
		case c.DatabaseURL != "":
			c.StoreDriver = DriverPostgres
		case c.MongoURI != "":
			c.StoreDriver = DriverMongo
		default:
			c.StoreDriver = DriverMemory
		}
	}

	if c.AccessTokenTTLMinutes < 1 {
		c.AccessTokenTTLMinutes = 480
	}
	if c.TopProductsLimit < 1 {
		c.TopProductsLimit = 5
	}
	if c.SessionIdleMinutes < 1 {
		c.SessionIdleMinutes = 60
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location is the zone used to bucket sales into days and hours. Empty means
// the server's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.ReportTimezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", c.ReportTimezone, err)
	}
	return loc, nil
}

func (c Config) TaxRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.DefaultTaxRate)
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("invalid DEFAULT_TAX_RATE %q", c.DefaultTaxRate)
	}
	return rate, nil
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func orDefault(val string, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}
