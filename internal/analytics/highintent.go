package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tracklink/tracklink/internal/model"
)

// Audience tiers, highest intent first.
const (
	TierQualified = "qualified"
	TierWarm      = "warm"
	TierClicker   = "clicker"
)

// AudienceRow is one visitor's funnel history inside the range.
type AudienceRow struct {
	AudienceKey     string     `json:"audienceKey"`
	LastSeenAt      time.Time  `json:"lastSeenAt"`
	LastQualifiedAt *time.Time `json:"lastQualifiedAt"`

	UTMSource   string `json:"utmSource"`
	UTMCampaign string `json:"utmCampaign"`
	UTMContent  string `json:"utmContent"`
	UTMTerm     string `json:"utmTerm"`

	View        int64 `json:"view"`
	Click       int64 `json:"click"`
	OpenSuccess int64 `json:"openSuccess"`
	Qualified   int64 `json:"qualified"`

	AudienceTier string `json:"audienceTier"`
}

// HighIntentReport lists the visitors showing open or qualify signals.
type HighIntentReport struct {
	Rows      []AudienceRow `json:"rows"`
	Truncated bool          `json:"truncated,omitempty"`
}

// HighIntent groups events per visitor and keeps only those with a
// qualifying signal, ranked by qualified count then recency.
func (s *Service) HighIntent(ctx context.Context, scope Scope, r Range, limit int) (*HighIntentReport, error) {
	limit = ClampLimit(limit)

	names := []model.EventName{
		model.EventView,
		model.EventClick,
		model.EventOpenSuccess,
		model.EventQualified,
	}

	buckets := make(map[string]*AudienceRow)
	truncated, err := s.collect(ctx, scope, r, names, func(event *model.Event) {
		key := audienceKey(event)
		if key == "" {
			return
		}

		row, ok := buckets[key]
		if !ok {
			row = &AudienceRow{
				AudienceKey: key,
				LastSeenAt:  event.CreatedAt,
				UTMSource:   orUnknown(event.Attribution["utm_source"]),
				UTMCampaign: orUnknown(event.Attribution["utm_campaign"]),
				UTMContent:  orUnknown(event.Attribution["utm_content"]),
				UTMTerm:     orUnknown(event.Attribution["utm_term"]),
			}
			buckets[key] = row
		}

		if event.CreatedAt.After(row.LastSeenAt) {
			row.LastSeenAt = event.CreatedAt
		}

		switch event.Name {
		case model.EventView:
			row.View++
		case model.EventClick:
			row.Click++
		case model.EventOpenSuccess:
			row.OpenSuccess++
		case model.EventQualified:
			row.Qualified++
			if row.LastQualifiedAt == nil || event.CreatedAt.After(*row.LastQualifiedAt) {
				at := event.CreatedAt
				row.LastQualifiedAt = &at
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	rows := make([]AudienceRow, 0, len(buckets))
	for _, row := range buckets {
		if row.Qualified == 0 && !(row.Click > 0 && row.OpenSuccess > 0) {
			continue
		}
		row.AudienceTier = audienceTier(row)
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Qualified != rows[j].Qualified {
			return rows[i].Qualified > rows[j].Qualified
		}
		return rows[i].LastSeenAt.After(rows[j].LastSeenAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	return &HighIntentReport{Rows: rows, Truncated: truncated}, nil
}

// audienceKey identifies a visitor across events: anonymous id when the
// client kept one, else a browser/click cookie, else the event's own id.
func audienceKey(event *model.Event) string {
	if v := strings.TrimSpace(event.Identity.AnonymousID); v != "" {
		return v
	}
	if v := strings.TrimSpace(event.FBP); v != "" {
		return v
	}
	if v := strings.TrimSpace(event.FBC); v != "" {
		return v
	}
	return strings.TrimSpace(event.EventID)
}

func audienceTier(row *AudienceRow) string {
	switch {
	case row.Qualified > 0:
		return TierQualified
	case row.OpenSuccess > 0 && row.Click > 0:
		return TierWarm
	default:
		return TierClicker
	}
}
