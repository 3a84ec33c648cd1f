package web

import (
	"time"

	"github.com/crossref-matcher/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Features  FeatureConfig
	Threshold float64
	// MaxUploadValues caps the number of sources or targets per request; 0 disables it.
	MaxUploadValues int
	MaxBodyBytes    int64
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// APIKey is required in X-API-Key on /api routes when set.
	APIKey string
}

// FeatureConfig contains feature toggles
type FeatureConfig struct {
	ExportEnabled bool
	ReviewEnabled bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return FromAppConfig(config.Default())
}

// FromAppConfig derives the server settings from the application configuration.
func FromAppConfig(cfg config.Config) *Config {
	return &Config{
		Server: ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{APIKey: cfg.Server.APIKey},
		Features: FeatureConfig{
			ExportEnabled: cfg.Server.ExportEnabled,
			ReviewEnabled: cfg.Server.ReviewEnabled,
		},
		Threshold:       cfg.Threshold,
		MaxUploadValues: cfg.Server.MaxUploadValues,
		MaxBodyBytes:    64 << 20,
	}
}
