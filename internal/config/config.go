// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/tracklink/tracklink/internal/model"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Tracking token signing. An empty secret disables verification.
	TrackEventSigningSecret string        `env:"TRACK_EVENT_SIGNING_SECRET" envDefault:""`
	TrackEventTokenTTL      time.Duration `env:"TRACK_EVENT_TOKEN_TTL" envDefault:"12h"`

	// Meta ads API. The pixel and access token are the environment-level
	// fallback; per-release overrides live in the releases table.
	MetaAPIBaseURL   string `env:"META_API_BASE_URL" envDefault:"https://graph.facebook.com"`
	MetaPixelID      string `env:"META_PIXEL_ID" envDefault:""`
	MetaAccessToken  string `env:"FB_ACCESS_TOKEN" envDefault:""`
	MetaAdsReadToken string `env:"META_ADS_READ_TOKEN" envDefault:""`

	// Rate limiting for the track-event endpoint (per IP)
	RateLimitTrackEnabled bool `env:"RATE_LIMIT_TRACK_ENABLED" envDefault:"true"`
	RateLimitTrackRPS     int  `env:"RATE_LIMIT_TRACK_RPS" envDefault:"50"`
	RateLimitTrackBurst   int  `env:"RATE_LIMIT_TRACK_BURST" envDefault:"20"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// DefaultAdsCredentials is the environment-level pixel/token fallback used
// when a release carries no override.
func (c *Config) DefaultAdsCredentials() model.AdsCredentials {
	return model.AdsCredentials{
		PixelID:     c.MetaPixelID,
		AccessToken: c.MetaAccessToken,
	}
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
