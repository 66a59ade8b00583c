package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access for the landing pages and
// dashboards that call this API from the browser.
type CORSConfig struct {
	// AllowedOrigins lists origins permitted to call the API. Supports
	// wildcard subdomains ("*.example.com"). Empty denies all
	// cross-origin requests.
	AllowedOrigins []string

	// AllowedMethods for preflight responses.
	AllowedMethods []string

	// AllowedHeaders for preflight responses.
	AllowedHeaders []string

	// ExposedHeaders the browser may read from responses.
	ExposedHeaders []string

	// AllowCredentials permits cookies on cross-origin requests.
	// Required for _fbp/_fbc capture when the landing page lives on a
	// different origin than the API.
	AllowCredentials bool

	// MaxAge in seconds for caching preflight results.
	MaxAge int
}

// DefaultCORSConfig returns defaults matching the public surface: event
// posts and analytics reads only.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type",
			"X-Request-ID",
			"Accept",
			"Accept-Language",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
			"Retry-After",
		},
		AllowCredentials: false,
		MaxAge:           86400,
	}
}

// CORS answers preflights and stamps allow headers for whitelisted
// origins. Disallowed preflights get 403; disallowed actual requests
// pass through without CORS headers and the browser blocks the read.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")

	exact := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		exact[strings.ToLower(origin)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Same-origin request.
				next.ServeHTTP(w, r)
				return
			}

			if !originAllowed(origin, exact, cfg.AllowedOrigins) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if exposed != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposed)
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, exact map[string]bool, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}

	normalized := strings.ToLower(origin)
	if exact[normalized] {
		return true
	}

	host := normalized
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	for _, pattern := range allowed {
		if !strings.HasPrefix(pattern, "*.") {
			continue
		}
		// "*.example.com" matches any subdomain of example.com but never
		// the bare domain or a partial match like notexample.com.
		suffix := strings.ToLower(pattern[1:])
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}
