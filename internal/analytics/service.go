package analytics

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/tracklink/tracklink/internal/model"
)

const (
	// PageSize is the number of rows fetched per repository page.
	PageSize = 1000

	// MaxRows caps the rows scanned per aggregation. At the ceiling the
	// aggregators return a partial result rather than an error.
	MaxRows = 250000

	// DefaultLimit is the row limit when the caller gives none.
	DefaultLimit = 50

	// MinLimit and MaxLimit clamp a caller-supplied row limit.
	MinLimit = 10
	MaxLimit = 200
)

// EventSource is the read side of the event log needed by the aggregators.
type EventSource interface {
	CountEvents(ctx context.Context, scope Scope, start, end time.Time, name model.EventName) (int64, error)
	FirstEventAt(ctx context.Context, scope Scope, name model.EventName) (time.Time, bool, error)
	ListEventsPage(ctx context.Context, scope Scope, start, end time.Time, names []model.EventName, offset, limit int) ([]*model.Event, error)
}

// NameLookup resolves ad object ids to display names, best-effort.
type NameLookup interface {
	ObjectName(ctx context.Context, id, readToken string) string
}

// Service runs the analytics aggregations against an event source.
type Service struct {
	source    EventSource
	names     NameLookup
	readToken string
	logger    *slog.Logger
}

// NewService creates a Service. names and readToken are optional; without
// them campaign rows keep whatever names the attribution carried.
func NewService(source EventSource, names NameLookup, readToken string, logger *slog.Logger) *Service {
	return &Service{
		source:    source,
		names:     names,
		readToken: readToken,
		logger:    logger.With("component", "analytics.service"),
	}
}

// collect walks the event log page by page, feeding each row to fn. It
// returns truncated=true when the row ceiling was hit before the range was
// exhausted.
func (s *Service) collect(ctx context.Context, scope Scope, r Range, names []model.EventName, fn func(*model.Event)) (bool, error) {
	offset := 0
	for {
		limit := PageSize
		if remaining := MaxRows - offset; remaining < limit {
			limit = remaining
		}
		if limit <= 0 {
			return true, nil
		}

		page, err := s.source.ListEventsPage(ctx, scope, r.Start, r.End, names, offset, limit)
		if err != nil {
			return false, err
		}
		for _, event := range page {
			fn(event)
		}
		if len(page) < limit {
			return false, nil
		}
		offset += len(page)
	}
}

// ClampLimit normalizes a caller-supplied row limit. Zero means unset.
func ClampLimit(raw int) int {
	if raw == 0 {
		return DefaultLimit
	}
	if raw < MinLimit {
		return MinLimit
	}
	if raw > MaxLimit {
		return MaxLimit
	}
	return raw
}

// ratePct is numerator/denominator as a percentage with two decimals.
// A zero denominator yields 0.
func ratePct(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return math.Round(float64(numerator)/float64(denominator)*10000) / 100
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
