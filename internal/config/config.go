package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	JWTExpiryM  int    `env:"JWT_EXPIRY_M" envDefault:"60"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Bounded retry for optimistic-concurrency conflicts and transient
	// store failures: LedgerRetryMaxAttempts total attempts, exponential
	// backoff starting at LedgerRetryInitialMS and doubling.
	LedgerRetryMaxAttempts int `env:"LEDGER_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	LedgerRetryInitialMS   int `env:"LEDGER_RETRY_INITIAL_MS" envDefault:"1000"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) JWTExpiry() time.Duration {
	return time.Duration(c.JWTExpiryM) * time.Minute
}

func (c *Config) LedgerRetryInitial() time.Duration {
	return time.Duration(c.LedgerRetryInitialMS) * time.Millisecond
}
