package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/tracklink/tracklink/internal/cache"
	"github.com/tracklink/tracklink/internal/model"
	"github.com/tracklink/tracklink/internal/repository"
)

type fakeReleaseCache struct {
	entries map[string]*model.ReleaseConfig
	neg     map[string]bool
	getErr  error

	sets    []string
	negSets []string
}

func newFakeReleaseCache() *fakeReleaseCache {
	return &fakeReleaseCache{
		entries: make(map[string]*model.ReleaseConfig),
		neg:     make(map[string]bool),
	}
}

func (f *fakeReleaseCache) GetRelease(_ context.Context, path string) (*model.ReleaseConfig, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if cfg, ok := f.entries[path]; ok {
		return cfg, nil
	}
	return nil, cache.ErrCacheMiss
}

func (f *fakeReleaseCache) SetRelease(_ context.Context, path string, cfg *model.ReleaseConfig) error {
	f.entries[path] = cfg
	f.sets = append(f.sets, path)
	return nil
}

func (f *fakeReleaseCache) IsNegativelyCached(_ context.Context, path string) (bool, error) {
	return f.neg[path], nil
}

func (f *fakeReleaseCache) SetNegativeCache(_ context.Context, path string) error {
	f.neg[path] = true
	f.negSets = append(f.negSets, path)
	return nil
}

type fakeConfigs struct {
	configs map[string]*model.ReleaseConfig
	loads   int
}

func (f *fakeConfigs) GetConfigByPath(_ context.Context, path string) (*model.ReleaseConfig, error) {
	f.loads++
	if cfg, ok := f.configs[path]; ok {
		return cfg, nil
	}
	return nil, repository.ErrReleaseNotFound
}

func newCachedSource(rc *fakeReleaseCache, configs *fakeConfigs, fallback *fakeCreds) *CachedCredentialSource {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCachedCredentialSource(rc, configs, fallback, logger)
}

func TestCachedCredentialSource_CacheHit(t *testing.T) {
	rc := newFakeReleaseCache()
	rc.entries["/novae/midnight"] = &model.ReleaseConfig{
		ArtistSlug: "novae", SongSlug: "midnight",
		PixelID: "px-cached", AccessToken: "tok-cached",
	}
	configs := &fakeConfigs{}
	fallback := &fakeCreds{}
	src := newCachedSource(rc, configs, fallback)

	creds, err := src.GetCredentials(context.Background(), "novae", "midnight")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds.PixelID != "px-cached" || creds.AccessToken != "tok-cached" {
		t.Errorf("creds = %+v", creds)
	}
	if configs.loads != 0 {
		t.Errorf("config loads = %d, want 0 on cache hit", configs.loads)
	}
	if fallback.lookups != 0 {
		t.Errorf("fallback lookups = %d, want 0 on cache hit", fallback.lookups)
	}
}

func TestCachedCredentialSource_MissLoadsAndCaches(t *testing.T) {
	rc := newFakeReleaseCache()
	configs := &fakeConfigs{configs: map[string]*model.ReleaseConfig{
		"/novae/midnight": {
			ArtistSlug: "novae", SongSlug: "midnight",
			PixelID: "px-db", AccessToken: "tok-db",
		},
	}}
	fallback := &fakeCreds{}
	src := newCachedSource(rc, configs, fallback)

	creds, err := src.GetCredentials(context.Background(), "novae", "midnight")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds.PixelID != "px-db" {
		t.Errorf("creds = %+v", creds)
	}
	if len(rc.sets) != 1 || rc.sets[0] != "/novae/midnight" {
		t.Errorf("cache writes = %v", rc.sets)
	}

	// Second resolve is served from cache.
	if _, err := src.GetCredentials(context.Background(), "novae", "midnight"); err != nil {
		t.Fatalf("second GetCredentials: %v", err)
	}
	if configs.loads != 1 {
		t.Errorf("config loads = %d, want 1", configs.loads)
	}
}

func TestCachedCredentialSource_NegativeCachesMissingRelease(t *testing.T) {
	rc := newFakeReleaseCache()
	configs := &fakeConfigs{}
	fallback := &fakeCreds{creds: model.AdsCredentials{PixelID: "px-artist", AccessToken: "tok-artist"}}
	src := newCachedSource(rc, configs, fallback)

	creds, err := src.GetCredentials(context.Background(), "novae", "unreleased")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds.PixelID != "px-artist" {
		t.Errorf("creds = %+v, want artist fallthrough", creds)
	}
	if len(rc.negSets) != 1 || rc.negSets[0] != "/novae/unreleased" {
		t.Errorf("negative cache writes = %v", rc.negSets)
	}

	// Negative entry short-circuits the config load but the artist level
	// is still consulted.
	if _, err := src.GetCredentials(context.Background(), "novae", "unreleased"); err != nil {
		t.Fatalf("second GetCredentials: %v", err)
	}
	if configs.loads != 1 {
		t.Errorf("config loads = %d, want 1", configs.loads)
	}
	if fallback.lookups != 2 {
		t.Errorf("fallback lookups = %d, want 2", fallback.lookups)
	}
}

func TestCachedCredentialSource_IncompleteConfigFallsThrough(t *testing.T) {
	rc := newFakeReleaseCache()
	rc.entries["/novae/midnight"] = &model.ReleaseConfig{
		ArtistSlug: "novae", SongSlug: "midnight",
		PixelID: "px-release", // no access token on the release
	}
	fallback := &fakeCreds{creds: model.AdsCredentials{PixelID: "px-release", AccessToken: "tok-artist"}}
	src := newCachedSource(rc, &fakeConfigs{}, fallback)

	creds, err := src.GetCredentials(context.Background(), "novae", "midnight")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds.AccessToken != "tok-artist" {
		t.Errorf("creds = %+v, want artist token", creds)
	}
	if fallback.lookups != 1 {
		t.Errorf("fallback lookups = %d, want 1", fallback.lookups)
	}
}

func TestCachedCredentialSource_CacheErrorDegradesToDatabase(t *testing.T) {
	rc := newFakeReleaseCache()
	rc.getErr = context.DeadlineExceeded
	configs := &fakeConfigs{configs: map[string]*model.ReleaseConfig{
		"/novae/midnight": {
			ArtistSlug: "novae", SongSlug: "midnight",
			PixelID: "px-db", AccessToken: "tok-db",
		},
	}}
	src := newCachedSource(rc, configs, &fakeCreds{})

	creds, err := src.GetCredentials(context.Background(), "novae", "midnight")
	if err != nil {
		t.Fatalf("GetCredentials: %v", err)
	}
	if creds.PixelID != "px-db" {
		t.Errorf("creds = %+v, want database result despite cache failure", creds)
	}
}
