// Package middleware provides the HTTP middleware chain for the API:
// request correlation, logging, panic recovery, security headers, CORS,
// body limits, and the track-event rate limiter.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey carries the per-request correlation id.
	RequestIDKey contextKey = "request_id"
	// TraceIDKey carries an upstream trace id when a proxy supplies one.
	TraceIDKey contextKey = "trace_id"
)

const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

// RequestID tags every request with a correlation id, honoring an
// incoming X-Request-ID so ids survive proxy hops, and echoes it back
// on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		w.Header().Set(RequestIDHeader, id)

		if trace := r.Header.Get(TraceIDHeader); trace != "" {
			ctx = context.WithValue(ctx, TraceIDKey, trace)
			w.Header().Set(TraceIDHeader, trace)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation id, or "" outside the middleware.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// GetTraceID returns the upstream trace id, or "" when none was supplied.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}
