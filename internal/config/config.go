// Package config loads application settings from a YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crossref-matcher/internal/match"
)

// DefaultThreshold is the acceptance threshold used when a caller gives none.
const DefaultThreshold = 0.4

// DatabaseConfig selects the audit store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver         string `yaml:"driver"`
	DSN            string `yaml:"dsn"`
	MaxConnections int    `yaml:"max_connections"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	APIKey          string        `yaml:"api_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ExportEnabled   bool          `yaml:"export_enabled"`
	ReviewEnabled   bool          `yaml:"review_enabled"`
	MaxUploadValues int           `yaml:"max_upload_values"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the complete application configuration.
type Config struct {
	Threshold float64        `yaml:"threshold"`
	Matching  match.Config   `yaml:"matching"`
	Database  DatabaseConfig `yaml:"database"`
	Server    ServerConfig   `yaml:"server"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// Default returns a configuration that works out of the box with an embedded
// SQLite store.
func Default() Config {
	return Config{
		Threshold: DefaultThreshold,
		Matching:  match.DefaultConfig(),
		Database: DatabaseConfig{
			Driver:         "sqlite",
			DSN:            "crossref.db",
			MaxConnections: 10,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ExportEnabled:   true,
			ReviewEnabled:   true,
			MaxUploadValues: 200000,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (optional),
// then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := decodeStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides cfg with any of the recognised environment variables.
func ApplyEnv(cfg *Config) {
	cfg.Threshold = GetEnvFloat("MATCH_THRESHOLD", cfg.Threshold)

	m := &cfg.Matching
	m.EnableCache = GetEnvBool("MATCH_ENABLE_CACHE", m.EnableCache)
	m.EnableParallel = GetEnvBool("MATCH_ENABLE_PARALLEL", m.EnableParallel)
	m.MaxWorkers = GetEnvInt("MATCH_MAX_WORKERS", m.MaxWorkers)
	m.ChunkSize = GetEnvInt("MATCH_CHUNK_SIZE", m.ChunkSize)
	m.TopK = GetEnvInt("MATCH_TOP_K", m.TopK)
	m.TieMargin = GetEnvFloat("MATCH_TIE_MARGIN", m.TieMargin)
	m.IncludeUnmatched = GetEnvBool("MATCH_INCLUDE_UNMATCHED", m.IncludeUnmatched)
	m.FallbackToText = GetEnvBool("MATCH_FALLBACK_TO_TEXT", m.FallbackToText)
	m.Debug = GetEnvBool("MATCH_DEBUG", m.Debug)

	cfg.Database.Driver = GetEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = GetEnv("DB_DSN", cfg.Database.DSN)
	cfg.Database.MaxConnections = GetEnvInt("DB_MAX_CONNECTIONS", cfg.Database.MaxConnections)

	cfg.Server.Host = GetEnv("WEB_HOST", cfg.Server.Host)
	cfg.Server.Port = GetEnvInt("WEB_PORT", cfg.Server.Port)
	cfg.Server.APIKey = GetEnv("WEB_API_KEY", cfg.Server.APIKey)
	cfg.Server.ReadTimeout = GetEnvDuration("WEB_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = GetEnvDuration("WEB_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Logging.Level = GetEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Development = GetEnvBool("LOG_DEVELOPMENT", cfg.Logging.Development)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	errs := []error{c.Matching.Validate()}
	if err := match.ValidateThreshold(c.Threshold); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", match.ErrInvalidConfig, err))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("%w: unsupported database driver %q", match.ErrInvalidConfig, c.Database.Driver))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: server port %d out of range", match.ErrInvalidConfig, c.Server.Port))
	}
	return errors.Join(errs...)
}

// EngineConfig returns the matcher settings.
func (c Config) EngineConfig() match.Config {
	return c.Matching
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SaveMatching writes a matcher profile so it can be reused with LoadMatching.
func SaveMatching(path string, m match.Config) error {
	if err := m.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("# crossref-matcher matching profile\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode matching profile: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode matching profile: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write matching profile %s: %w", path, err)
	}
	return nil
}

// LoadMatching reads a profile written by SaveMatching. Keys absent from the file
// keep their defaults.
func LoadMatching(path string) (match.Config, error) {
	m := match.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return match.Config{}, fmt.Errorf("failed to read matching profile %s: %w", path, err)
	}
	if err := decodeStrict(data, &m); err != nil {
		return match.Config{}, fmt.Errorf("failed to parse matching profile %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return match.Config{}, err
	}
	return m, nil
}
