package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the application configuration, loaded from a TOML file with
// defaults applied before validation.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Oracle     OracleConfig     `toml:"oracle"`
	Matcher    MatcherConfig    `toml:"matcher"`
	Simulation SimulationConfig `toml:"simulation"`
	Logging    LoggingConfig    `toml:"logging"`
	Tracing    TracingConfig    `toml:"tracing"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"gte=1,lte=65535"`
	// PDFReports enables the headless-Chromium report endpoint.
	PDFReports bool `toml:"pdf_reports"`
}

type StorageConfig struct {
	// Path is the SQLite database file; empty keeps runs in memory only.
	Path string `toml:"path"`
}

type CatalogConfig struct {
	CatalogPath string `toml:"catalog_path" validate:"required"`
	PatternPath string `toml:"pattern_path" validate:"required"`
}

type OracleConfig struct {
	Model             string  `toml:"model" validate:"required"`
	MaxTokens         int     `toml:"max_tokens" validate:"gt=0"`
	MaxAttempts       int     `toml:"max_attempts" validate:"gte=1,lte=10"`
	ChunkSize         int     `toml:"chunk_size" validate:"gt=0"`
	Concurrency       int     `toml:"concurrency" validate:"gt=0"`
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
}

type MatcherConfig struct {
	AcceptThreshold  float64 `toml:"accept_threshold" validate:"gte=0,lte=1"`
	StrongMargin     float64 `toml:"strong_margin" validate:"gte=0,lte=1"`
	StrongMultiplier float64 `toml:"strong_multiplier" validate:"gte=1"`
}

type SimulationConfig struct {
	Iterations int `toml:"iterations" validate:"gte=100"`
	// Seed pins simulation randomness for reproducible runs; 0 draws a
	// fresh seed per run.
	Seed int64 `toml:"seed"`
}

type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"oneof=json console"`
}

type TracingConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8085,
		},
		Storage: StorageConfig{Path: "stratscope.db"},
		Catalog: CatalogConfig{
			CatalogPath: "catalog/catalog.yaml",
			PatternPath: "catalog/patterns.yaml",
		},
		Oracle: OracleConfig{
			Model:             "claude-sonnet-4-20250514",
			MaxTokens:         2048,
			MaxAttempts:       3,
			ChunkSize:         20,
			Concurrency:       4,
			RequestsPerSecond: 2,
		},
		Matcher: MatcherConfig{
			AcceptThreshold:  0.6,
			StrongMargin:     0.1,
			StrongMultiplier: 1.2,
		},
		Simulation: SimulationConfig{Iterations: 1000},
		Logging:    LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads the TOML file at path over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		blob, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(blob, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
