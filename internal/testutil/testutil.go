package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tracklink/tracklink/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetReleasesSchema drops and recreates the releases schema for tests.
func ResetReleasesSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000001_releases")
}

// ResetEventsSchema drops and recreates the events schema for tests.
func ResetEventsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	return resetSchema(ctx, pool, "000002_events")
}

func resetSchema(ctx context.Context, pool *pgxpool.Pool, migration string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	downSQL, err := os.ReadFile(filepath.Join(root, "migrations", migration+".down.sql"))
	if err != nil {
		return fmt.Errorf("read down migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(downSQL)); err != nil {
		return fmt.Errorf("apply down migration: %w", err)
	}

	upSQL, err := os.ReadFile(filepath.Join(root, "migrations", migration+".up.sql"))
	if err != nil {
		return fmt.Errorf("read up migration: %w", err)
	}
	if _, err := pool.Exec(ctx, string(upSQL)); err != nil {
		return fmt.Errorf("apply up migration: %w", err)
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestEvent creates a landing event with sensible defaults.
func NewTestEvent(t testing.TB, name model.EventName, requestPath string) *model.Event {
	t.Helper()
	now := time.Now().UTC()
	return &model.Event{
		ID:          ulid.Make().String(),
		EventID:     UniqueID("ev"),
		Name:        name,
		RequestPath: requestPath,
		Attribution: map[string]string{"utm_source": "test"},
		Context:     model.EventContext{OS: "ios", InAppBrowser: "none", IsMobile: true},
		Route: model.EventRoute{
			Strategy:        "deep-link-first",
			DeepLinkDelayMs: 180,
			FallbackDelayMs: 1200,
			Reason:          "mobile-browser",
		},
		Identity:      model.Identity{AnonymousID: UniqueID("anon"), SessionID: UniqueID("sess")},
		UserAgent:     "test-agent",
		ForwardStatus: model.ForwardQueued,
		CreatedAt:     now,
	}
}

// NewTestRelease creates a release configuration with sensible defaults.
func NewTestRelease(t testing.TB, artistSlug, songSlug string) *model.ReleaseConfig {
	t.Helper()
	return &model.ReleaseConfig{
		ArtistSlug:  artistSlug,
		SongSlug:    songSlug,
		DeepLinkURI: "musicapp://song/" + songSlug,
		WebURL:      fmt.Sprintf("https://music.example.com/%s/%s", artistSlug, songSlug),
	}
}

// UniqueSlug generates a unique slug for tests.
func UniqueSlug(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
