// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Env            string        `env:"AGGUI_ENV,default=development"`
	Addr           string        `env:"AGGUI_ADDR,default=:8081"`
	APIRoot        string        `env:"AGGUI_API_ROOT,default=http://localhost:8080/api"`
	NotifyURL      string        `env:"AGGUI_NOTIFY_URL,default=ws://localhost:8080/aggregator/websocket"`
	PageSize       int           `env:"AGGUI_PAGE_SIZE,default=2"`
	PropsKey       string        `env:"AGGUI_PROPS_KEY"`
	SessionTTL     time.Duration `env:"AGGUI_SESSION_TTL,default=30m"`
	RequestTimeout time.Duration `env:"AGGUI_REQUEST_TIMEOUT,default=10s"`
	RetryCount     int           `env:"AGGUI_RETRY_COUNT,default=2"`
	FetchParallel  int           `env:"AGGUI_FETCH_PARALLELISM,default=8"`
}

// Load reads the given .env files (missing files are skipped) and decodes
// the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.APIRoot == "" {
		return errors.New("config: AGGUI_API_ROOT is required")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("config: page size must be positive, got %d", c.PageSize)
	}
	if c.FetchParallel < 1 {
		return fmt.Errorf("config: fetch parallelism must be positive, got %d", c.FetchParallel)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("config: retry count must not be negative, got %d", c.RetryCount)
	}
	return nil
}

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool {
	return c.Env == "prod" || c.Env == "production"
}
