package analytics

import (
	"context"
	"fmt"

	"github.com/tracklink/tracklink/internal/model"
)

// DayBucket is one business-timezone day of funnel counts.
type DayBucket struct {
	Day          string  `json:"day"`
	View         int64   `json:"view"`
	Click        int64   `json:"click"`
	OpenSuccess  int64   `json:"openSuccess"`
	Qualified    int64   `json:"qualified"`
	OpenFallback int64   `json:"openFallback"`

	ClickRatePct       float64 `json:"clickRatePct"`
	OpenSuccessRatePct float64 `json:"openSuccessRatePct"`
	QualifiedRatePct   float64 `json:"qualifiedRatePct"`
}

// TimeseriesReport is the per-day funnel breakdown over a range.
type TimeseriesReport struct {
	Series    []DayBucket `json:"series"`
	Truncated bool        `json:"truncated,omitempty"`
}

// Timeseries buckets the funnel events by business day. Every day in the
// range appears in the series, zero-filled when nothing happened.
func (s *Service) Timeseries(ctx context.Context, scope Scope, r Range) (*TimeseriesReport, error) {
	days := EnumerateDays(r)
	buckets := make(map[string]*DayBucket, len(days))
	series := make([]DayBucket, len(days))
	for i, day := range days {
		series[i] = DayBucket{Day: day}
		buckets[day] = &series[i]
	}

	names := []model.EventName{
		model.EventView,
		model.EventClick,
		model.EventOpenSuccess,
		model.EventQualified,
		model.EventOpenFallback,
	}

	truncated, err := s.collect(ctx, scope, r, names, func(event *model.Event) {
		bucket, ok := buckets[DayKey(event.CreatedAt)]
		if !ok {
			return
		}
		switch event.Name {
		case model.EventView:
			bucket.View++
		case model.EventClick:
			bucket.Click++
		case model.EventOpenSuccess:
			bucket.OpenSuccess++
		case model.EventQualified:
			bucket.Qualified++
		case model.EventOpenFallback:
			bucket.OpenFallback++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	for i := range series {
		series[i].ClickRatePct = ratePct(series[i].Click, series[i].View)
		series[i].OpenSuccessRatePct = ratePct(series[i].OpenSuccess, series[i].Click)
		series[i].QualifiedRatePct = ratePct(series[i].Qualified, series[i].Click)
	}

	return &TimeseriesReport{Series: series, Truncated: truncated}, nil
}
