//go:build integration

package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tracklink/tracklink/internal/cache"
)

// TestIPRateLimitConcurrency verifies IP-based rate limiting under
// concurrent load. This test requires Redis to be running.
func TestIPRateLimitConcurrency(t *testing.T) {
	ctx := context.Background()

	redisURL := "redis://localhost:6379"
	cacheClient, err := cache.New(ctx, redisURL)
	if err != nil {
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}
	defer cacheClient.Close()

	_ = cacheClient.Client().FlushDB(ctx).Err()

	testIP := "192.168.1.100"
	rps := 5
	burst := 3

	var allowed, rejected int64
	var wg sync.WaitGroup

	// 30 concurrent requests
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := cacheClient.CheckIPRateLimit(ctx, testIP, rps, burst)
			if err != nil {
				t.Errorf("CheckIPRateLimit error: %v", err)
				return
			}
			if result.Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}

	wg.Wait()

	t.Logf("IP rate limit: %d allowed, %d rejected", allowed, rejected)

	if allowed > int64(burst+rps) {
		t.Errorf("Too many requests allowed: %d (expected <= %d)", allowed, burst+rps)
	}
	if rejected == 0 {
		t.Error("Expected some requests to be rejected")
	}
}

// TestRateLimitIPMiddleware verifies the middleware end to end: below the
// limit requests pass, beyond it clients get 429 with a Retry-After header.
func TestRateLimitIPMiddleware(t *testing.T) {
	ctx := context.Background()

	cacheClient, err := cache.New(ctx, "redis://localhost:6379")
	if err != nil {
		t.Skipf("Skipping integration test: Redis not available: %v", err)
	}
	defer cacheClient.Close()

	_ = cacheClient.Client().FlushDB(ctx).Err()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limited := RateLimitIP(RateLimitConfig{
		Logger:       logger,
		Cache:        cacheClient,
		TrackEnabled: true,
		TrackRPS:     1,
		TrackBurst:   2,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var got429 bool
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/track-event", nil)
		req.Header.Set("X-Real-IP", "198.51.100.7")
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)

		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			if rec.Header().Get("Retry-After") == "" {
				t.Error("429 without Retry-After header")
			}
		}
	}

	if !got429 {
		t.Error("Expected the burst to be exhausted")
	}
}

// TestRateLimitDisabled verifies the middleware is a no-op when disabled.
func TestRateLimitDisabled(t *testing.T) {
	limited := RateLimitIP(RateLimitConfig{TrackEnabled: false})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/track-event", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
}
