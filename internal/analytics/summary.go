package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/tracklink/tracklink/internal/model"
)

// FunnelTotals are the per-range counts of the five funnel events.
type FunnelTotals struct {
	View         int64 `json:"view"`
	Click        int64 `json:"click"`
	OpenSuccess  int64 `json:"openSuccess"`
	Qualified    int64 `json:"qualified"`
	OpenFallback int64 `json:"openFallback"`
}

// SummaryRates are the derived funnel conversion rates, in percent.
type SummaryRates struct {
	ClickRatePct       float64 `json:"clickRatePct"`
	OpenSuccessRatePct float64 `json:"openSuccessRatePct"`
	QualifiedRatePct   float64 `json:"qualifiedRatePct"`
}

// SummaryWindows records the effective window start used for each
// first-seen-adjusted rate, for display alongside the numbers.
type SummaryWindows struct {
	OpenSuccessRateStart time.Time `json:"openSuccessRateStart"`
	QualifiedRateStart   time.Time `json:"qualifiedRateStart"`
}

// SummaryReport is the scope+range funnel overview.
type SummaryReport struct {
	Totals  FunnelTotals   `json:"totals"`
	Rates   SummaryRates   `json:"rates"`
	Windows SummaryWindows `json:"windows"`
}

// Summary counts the funnel events in range and derives the three rates.
//
// The openSuccess and qualified rates are computed over a window starting at
// the later of the range start and the first time that event was ever seen
// for the scope. Counting from the raw range start would dilute a freshly
// launched event type with the historical period where it could not occur.
func (s *Service) Summary(ctx context.Context, scope Scope, r Range) (*SummaryReport, error) {
	totals := FunnelTotals{}
	counts := []struct {
		name model.EventName
		dest *int64
	}{
		{model.EventView, &totals.View},
		{model.EventClick, &totals.Click},
		{model.EventOpenSuccess, &totals.OpenSuccess},
		{model.EventQualified, &totals.Qualified},
		{model.EventOpenFallback, &totals.OpenFallback},
	}
	for _, c := range counts {
		n, err := s.source.CountEvents(ctx, scope, r.Start, r.End, c.name)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.name, err)
		}
		*c.dest = n
	}

	openSuccessStart, err := s.rateWindowStart(ctx, scope, r, model.EventOpenSuccess)
	if err != nil {
		return nil, err
	}
	qualifiedStart, err := s.rateWindowStart(ctx, scope, r, model.EventQualified)
	if err != nil {
		return nil, err
	}

	clickForOpen, err := s.source.CountEvents(ctx, scope, openSuccessStart, r.End, model.EventClick)
	if err != nil {
		return nil, fmt.Errorf("count clicks in open window: %w", err)
	}
	openForRate, err := s.source.CountEvents(ctx, scope, openSuccessStart, r.End, model.EventOpenSuccess)
	if err != nil {
		return nil, fmt.Errorf("count opens in open window: %w", err)
	}
	clickForQualified, err := s.source.CountEvents(ctx, scope, qualifiedStart, r.End, model.EventClick)
	if err != nil {
		return nil, fmt.Errorf("count clicks in qualified window: %w", err)
	}
	qualifiedForRate, err := s.source.CountEvents(ctx, scope, qualifiedStart, r.End, model.EventQualified)
	if err != nil {
		return nil, fmt.Errorf("count qualified in qualified window: %w", err)
	}

	return &SummaryReport{
		Totals: totals,
		Rates: SummaryRates{
			ClickRatePct:       ratePct(totals.Click, totals.View),
			OpenSuccessRatePct: ratePct(openForRate, clickForOpen),
			QualifiedRatePct:   ratePct(qualifiedForRate, clickForQualified),
		},
		Windows: SummaryWindows{
			OpenSuccessRateStart: openSuccessStart,
			QualifiedRateStart:   qualifiedStart,
		},
	}, nil
}

func (s *Service) rateWindowStart(ctx context.Context, scope Scope, r Range, name model.EventName) (time.Time, error) {
	first, ok, err := s.source.FirstEventAt(ctx, scope, name)
	if err != nil {
		return time.Time{}, fmt.Errorf("first %s: %w", name, err)
	}
	if ok && first.After(r.Start) {
		return first, nil
	}
	return r.Start, nil
}
