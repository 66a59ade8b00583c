package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tracklink/tracklink/internal/cache"
	"github.com/tracklink/tracklink/internal/model"
	"github.com/tracklink/tracklink/internal/repository"
)

// ConfigSource loads a release configuration by landing page path.
type ConfigSource interface {
	GetConfigByPath(ctx context.Context, path string) (*model.ReleaseConfig, error)
}

// ReleaseCache is the shared cache fronting release config loads.
type ReleaseCache interface {
	GetRelease(ctx context.Context, path string) (*model.ReleaseConfig, error)
	SetRelease(ctx context.Context, path string, cfg *model.ReleaseConfig) error
	IsNegativelyCached(ctx context.Context, path string) (bool, error)
	SetNegativeCache(ctx context.Context, path string) error
}

// CachedCredentialSource resolves ads credentials through the shared
// release cache before touching the database. A cached config with both
// pixel and token answers directly; anything incomplete falls through to
// the database lookup, which also covers the artist level. Paths with no
// release are negative-cached so unknown slugs do not hammer Postgres,
// and cache failures degrade to the database.
type CachedCredentialSource struct {
	cache    ReleaseCache
	configs  ConfigSource
	fallback CredentialSource
	logger   *slog.Logger
}

// NewCachedCredentialSource layers releaseCache over configs, with
// fallback handling incomplete or missing release credentials.
func NewCachedCredentialSource(releaseCache ReleaseCache, configs ConfigSource, fallback CredentialSource, logger *slog.Logger) *CachedCredentialSource {
	return &CachedCredentialSource{
		cache:    releaseCache,
		configs:  configs,
		fallback: fallback,
		logger:   logger.With("component", "ingest.credsource"),
	}
}

// GetCredentials implements CredentialSource.
func (c *CachedCredentialSource) GetCredentials(ctx context.Context, artistSlug, songSlug string) (model.AdsCredentials, error) {
	path := "/" + artistSlug + "/" + songSlug

	cfg, err := c.cache.GetRelease(ctx, path)
	switch {
	case err == nil:
		if cfg.PixelID != "" && cfg.AccessToken != "" {
			return model.AdsCredentials{PixelID: cfg.PixelID, AccessToken: cfg.AccessToken}, nil
		}
		// Release known but credentials incomplete; the artist level
		// lives in the database.
		return c.fallback.GetCredentials(ctx, artistSlug, songSlug)
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn("release cache read failed", "path", path, "error", err)
	}

	if neg, negErr := c.cache.IsNegativelyCached(ctx, path); negErr == nil && neg {
		return c.fallback.GetCredentials(ctx, artistSlug, songSlug)
	}

	loaded, err := c.configs.GetConfigByPath(ctx, path)
	if err != nil {
		if errors.Is(err, repository.ErrReleaseNotFound) {
			if negErr := c.cache.SetNegativeCache(ctx, path); negErr != nil {
				c.logger.Warn("negative cache write failed", "path", path, "error", negErr)
			}
		}
		return c.fallback.GetCredentials(ctx, artistSlug, songSlug)
	}

	if cacheErr := c.cache.SetRelease(ctx, path, loaded); cacheErr != nil {
		c.logger.Warn("release cache write failed", "path", path, "error", cacheErr)
	}
	if loaded.PixelID != "" && loaded.AccessToken != "" {
		return model.AdsCredentials{PixelID: loaded.PixelID, AccessToken: loaded.AccessToken}, nil
	}
	return c.fallback.GetCredentials(ctx, artistSlug, songSlug)
}
