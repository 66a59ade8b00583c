package analytics

import (
	"context"
	"fmt"
	"sort"

	"github.com/tracklink/tracklink/internal/model"
)

// RouteHealthRow is one (os, in-app browser, strategy, reason) bucket.
// A combination with many attempts and few successes means that client
// environment is failing to open the native app.
type RouteHealthRow struct {
	Key          string `json:"key"`
	OS           string `json:"os"`
	InAppBrowser string `json:"inAppBrowser"`
	Strategy     string `json:"strategy"`
	Reason       string `json:"reason"`

	Click        int64 `json:"click"`
	OpenAttempt  int64 `json:"openAttempt"`
	OpenSuccess  int64 `json:"openSuccess"`
	OpenFallback int64 `json:"openFallback"`

	OpenSuccessRatePct float64 `json:"openSuccessRatePct"`
	FallbackRatePct    float64 `json:"fallbackRatePct"`
}

// RouteHealthReport is the per-environment open funnel breakdown.
type RouteHealthReport struct {
	Rows      []RouteHealthRow `json:"rows"`
	Truncated bool             `json:"truncated,omitempty"`
}

// RouteHealth groups open-funnel events by the client environment and
// routing decision recorded on each event.
func (s *Service) RouteHealth(ctx context.Context, scope Scope, r Range) (*RouteHealthReport, error) {
	names := []model.EventName{
		model.EventClick,
		model.EventOpenAttempt,
		model.EventOpenSuccess,
		model.EventOpenFallback,
	}

	buckets := make(map[string]*RouteHealthRow)
	truncated, err := s.collect(ctx, scope, r, names, func(event *model.Event) {
		os := orUnknown(event.Context.OS)
		inApp := orUnknown(event.Context.InAppBrowser)
		strategy := orUnknown(event.Route.Strategy)
		reason := event.Route.Reason
		key := os + "::" + inApp + "::" + strategy + "::" + reason

		row, ok := buckets[key]
		if !ok {
			row = &RouteHealthRow{
				Key:          key,
				OS:           os,
				InAppBrowser: inApp,
				Strategy:     strategy,
				Reason:       reason,
			}
			buckets[key] = row
		}

		switch event.Name {
		case model.EventClick:
			row.Click++
		case model.EventOpenAttempt:
			row.OpenAttempt++
		case model.EventOpenSuccess:
			row.OpenSuccess++
		case model.EventOpenFallback:
			row.OpenFallback++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	rows := make([]RouteHealthRow, 0, len(buckets))
	for _, row := range buckets {
		row.OpenSuccessRatePct = ratePct(row.OpenSuccess, row.Click)
		row.FallbackRatePct = ratePct(row.OpenFallback, row.Click)
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OpenSuccess != rows[j].OpenSuccess {
			return rows[i].OpenSuccess > rows[j].OpenSuccess
		}
		return rows[i].Click > rows[j].Click
	})

	return &RouteHealthReport{Rows: rows, Truncated: truncated}, nil
}
