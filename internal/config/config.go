// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds the settings of the API server and the importer.
// Every field comes from an environment variable; a .env file is honoured.
type Config struct {
	Port     string `env:"PORT" env-default:"8080"`
	Env      string `env:"GO_ENV" env-default:"development"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`

	Database DatabaseConfig
	HTTP     HTTPConfig
	Ingest   IngestConfig
}

// DatabaseConfig holds PostgreSQL pool settings
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxConns        int32         `env:"DB_MAX_CONNS" env-default:"10"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" env-default:"30m"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" env-default:"true"`
}

// HTTPConfig holds API server settings
type HTTPConfig struct {
	ReadTimeout      time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout     time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	QueryTimeout     time.Duration `env:"QUERY_TIMEOUT" env-default:"8s"`
	CORSAllowOrigins string        `env:"CORS_ALLOW_ORIGINS" env-default:"*"`
}

// IngestConfig holds the ArcGIS importer settings
type IngestConfig struct {
	ArcGISURL string        `env:"ARCGIS_URL" env-default:"https://services.arcgis.com/ZOyb2t4B0UYuYNYH/ArcGIS/rest/services/SDOT_Collisions_All_Years/FeatureServer/0/query"`
	BatchSize int           `env:"INGEST_BATCH_SIZE" env-default:"1000"`
	Timeout   time.Duration `env:"INGEST_TIMEOUT" env-default:"30s"`
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that have no usable default
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, errors.New("DB_MAX_CONNS must be positive"))
	}
	if c.HTTP.QueryTimeout <= 0 {
		errs = append(errs, errors.New("QUERY_TIMEOUT must be positive"))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, errors.New("INGEST_BATCH_SIZE must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
