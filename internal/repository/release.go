package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tracklink/tracklink/internal/model"
)

// Common errors for release repository operations.
var (
	ErrReleaseNotFound = errors.New("release not found")
	ErrInvalidPath     = errors.New("invalid release path")
)

// ReleaseRepository provides database access for release configuration.
type ReleaseRepository struct {
	repo *Repository
}

// NewReleaseRepository creates a new ReleaseRepository.
func NewReleaseRepository(repo *Repository) *ReleaseRepository {
	return &ReleaseRepository{repo: repo}
}

// SplitPath decomposes a landing page path into its artist and song slugs.
func SplitPath(path string) (artistSlug, songSlug string, err error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidPath
	}
	return parts[0], parts[1], nil
}

// GetConfigByPath loads the release configuration for a landing page path.
func (r *ReleaseRepository) GetConfigByPath(ctx context.Context, path string) (*model.ReleaseConfig, error) {
	artistSlug, songSlug, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT artist_slug, song_slug, deep_link_uri, web_url, pixel_id, access_token, routing, tracking
		FROM releases
		WHERE artist_slug = $1 AND song_slug = $2
	`

	var (
		cfg         model.ReleaseConfig
		deepLink    *string
		pixelID     *string
		accessToken *string
		routing     []byte
		tracking    []byte
	)
	err = r.repo.pool.QueryRow(ctx, query, artistSlug, songSlug).Scan(
		&cfg.ArtistSlug,
		&cfg.SongSlug,
		&deepLink,
		&cfg.WebURL,
		&pixelID,
		&accessToken,
		&routing,
		&tracking,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReleaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get release config: %w", err)
	}

	cfg.DeepLinkURI = derefString(deepLink)
	cfg.PixelID = derefString(pixelID)
	cfg.AccessToken = derefString(accessToken)

	if err := json.Unmarshal(routing, &cfg.Routing); err != nil {
		return nil, fmt.Errorf("unmarshal routing overrides: %w", err)
	}
	if err := json.Unmarshal(tracking, &cfg.Tracking); err != nil {
		return nil, fmt.Errorf("unmarshal tracking overrides: %w", err)
	}

	return &cfg, nil
}

// GetCredentials resolves ads credentials for a release: the release's own
// pixel and token first, then the artist-level override. Missing rows are
// not an error; the caller falls through to the environment default.
func (r *ReleaseRepository) GetCredentials(ctx context.Context, artistSlug, songSlug string) (model.AdsCredentials, error) {
	query := `
		SELECT pixel_id, access_token
		FROM releases
		WHERE artist_slug = $1 AND song_slug = $2
	`

	var pixelID, accessToken *string
	err := r.repo.pool.QueryRow(ctx, query, artistSlug, songSlug).Scan(&pixelID, &accessToken)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.AdsCredentials{}, fmt.Errorf("failed to get release credentials: %w", err)
	}

	creds := model.AdsCredentials{
		PixelID:     derefString(pixelID),
		AccessToken: derefString(accessToken),
	}
	if creds.PixelID != "" && creds.AccessToken != "" {
		return creds, nil
	}

	artistQuery := `
		SELECT pixel_id, access_token
		FROM artists
		WHERE slug = $1
	`

	var artistPixel, artistToken *string
	err = r.repo.pool.QueryRow(ctx, artistQuery, artistSlug).Scan(&artistPixel, &artistToken)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.AdsCredentials{}, fmt.Errorf("failed to get artist credentials: %w", err)
	}

	if creds.PixelID == "" {
		creds.PixelID = derefString(artistPixel)
	}
	if creds.AccessToken == "" {
		creds.AccessToken = derefString(artistToken)
	}

	return creds, nil
}

// UpsertRelease writes a release row. Used by tests and the bootstrap script.
func (r *ReleaseRepository) UpsertRelease(ctx context.Context, id string, cfg *model.ReleaseConfig) error {
	routing, err := json.Marshal(cfg.Routing)
	if err != nil {
		return fmt.Errorf("marshal routing overrides: %w", err)
	}
	tracking, err := json.Marshal(cfg.Tracking)
	if err != nil {
		return fmt.Errorf("marshal tracking overrides: %w", err)
	}

	query := `
		INSERT INTO releases (id, artist_slug, song_slug, deep_link_uri, web_url, pixel_id, access_token, routing, tracking, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (artist_slug, song_slug) DO UPDATE SET
			deep_link_uri = EXCLUDED.deep_link_uri,
			web_url = EXCLUDED.web_url,
			pixel_id = EXCLUDED.pixel_id,
			access_token = EXCLUDED.access_token,
			routing = EXCLUDED.routing,
			tracking = EXCLUDED.tracking,
			updated_at = NOW()
	`

	_, err = r.repo.pool.Exec(ctx, query,
		id,
		cfg.ArtistSlug,
		cfg.SongSlug,
		nullableString(cfg.DeepLinkURI),
		cfg.WebURL,
		nullableString(cfg.PixelID),
		nullableString(cfg.AccessToken),
		routing,
		tracking,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert release: %w", err)
	}
	return nil
}

// UpsertArtist writes an artist-level credentials row.
func (r *ReleaseRepository) UpsertArtist(ctx context.Context, slug, pixelID, accessToken string) error {
	query := `
		INSERT INTO artists (slug, pixel_id, access_token, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (slug) DO UPDATE SET
			pixel_id = EXCLUDED.pixel_id,
			access_token = EXCLUDED.access_token,
			updated_at = NOW()
	`

	_, err := r.repo.pool.Exec(ctx, query, slug, nullableString(pixelID), nullableString(accessToken))
	if err != nil {
		return fmt.Errorf("failed to upsert artist: %w", err)
	}
	return nil
}
