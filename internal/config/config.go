// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	App struct {
		Name    string `envconfig:"APP_NAME" default:"pharmstock"`
		Env     string `envconfig:"APP_ENV" default:"development"`
		Port    int    `envconfig:"PORT" default:"8080"`
		Version string `envconfig:"APP_VERSION" default:"dev"`
	}

	// StorageDriver selects the backing store: "postgres" or "memory".
	// The memory driver keeps everything in-process and is meant for
	// local development and tests.
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"pharmstock"`
		SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
		MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
		MinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	}

	Server struct {
		ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
		WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
		IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	}

	Log struct {
		Level string `envconfig:"LOG_LEVEL" default:"info"`
	}
}

// ConnectionString builds the postgres DSN.
func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}
