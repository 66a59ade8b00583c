package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tracklink/tracklink/internal/capi"
	"github.com/tracklink/tracklink/internal/model"
)

const (
	// MaxNameLookups caps the external name lookups per call.
	MaxNameLookups = 20

	maxDisplayNameLength = 180
)

// CampaignRow is one (ad set, ad) bucket of funnel counts.
type CampaignRow struct {
	Key       string `json:"key"`
	UTMSource string `json:"utmSource"`
	UTMMedium string `json:"utmMedium"`
	AdSetID   string `json:"adSetId"`
	AdID      string `json:"adId"`
	AdSetName string `json:"adSetName"`
	AdName    string `json:"adName"`

	View         int64 `json:"view"`
	Click        int64 `json:"click"`
	OpenSuccess  int64 `json:"openSuccess"`
	Qualified    int64 `json:"qualified"`
	OpenFallback int64 `json:"openFallback"`

	ClickRatePct       float64 `json:"clickRatePct"`
	OpenSuccessRatePct float64 `json:"openSuccessRatePct"`
	QualifiedRatePct   float64 `json:"qualifiedRatePct"`
}

// CampaignsReport is the campaign breakdown over a range.
type CampaignsReport struct {
	Rows      []CampaignRow `json:"rows"`
	Truncated bool          `json:"truncated,omitempty"`
}

// Campaigns groups funnel events by (ad set, ad) identity derived from the
// attribution, ranks the groups, and best-effort resolves display names for
// numeric ids through the ads API.
func (s *Service) Campaigns(ctx context.Context, scope Scope, r Range, limit int) (*CampaignsReport, error) {
	limit = ClampLimit(limit)

	names := []model.EventName{
		model.EventView,
		model.EventClick,
		model.EventOpenSuccess,
		model.EventQualified,
		model.EventOpenFallback,
	}

	buckets := make(map[string]*CampaignRow)
	truncated, err := s.collect(ctx, scope, r, names, func(event *model.Event) {
		attr := event.Attribution
		adSetID := adSetID(attr)
		adID := adID(attr)
		key := adSetID + "::" + adID

		row, ok := buckets[key]
		if !ok {
			row = &CampaignRow{
				Key:       key,
				UTMSource: orUnknown(attr["utm_source"]),
				UTMMedium: orUnknown(attr["utm_medium"]),
				AdSetID:   adSetID,
				AdID:      adID,
				AdSetName: adSetName(attr),
				AdName:    adName(attr),
			}
			buckets[key] = row
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
		case model.EventOpenFallback:
			row.OpenFallback++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	rows := make([]CampaignRow, 0, len(buckets))
	for _, row := range buckets {
		row.ClickRatePct = ratePct(row.Click, row.View)
		row.OpenSuccessRatePct = ratePct(row.OpenSuccess, row.Click)
		row.QualifiedRatePct = ratePct(row.Qualified, row.Click)
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Qualified != rows[j].Qualified {
			return rows[i].Qualified > rows[j].Qualified
		}
		if rows[i].OpenSuccess != rows[j].OpenSuccess {
			return rows[i].OpenSuccess > rows[j].OpenSuccess
		}
		return rows[i].Click > rows[j].Click
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	s.enrichNames(ctx, rows)

	return &CampaignsReport{Rows: rows, Truncated: truncated}, nil
}

// enrichNames fills empty ad-set/ad names whose id looks like a Meta object
// id. Failures leave the name blank.
func (s *Service) enrichNames(ctx context.Context, rows []CampaignRow) {
	if s.names == nil || s.readToken == "" {
		return
	}

	adSetIDs := make([]string, 0, MaxNameLookups)
	adIDs := make([]string, 0, MaxNameLookups)
	seenAdSet := make(map[string]bool)
	seenAd := make(map[string]bool)
	for _, row := range rows {
		if row.AdSetName == "" && capi.LooksLikeMetaID(row.AdSetID) && !seenAdSet[row.AdSetID] && len(adSetIDs) < MaxNameLookups {
			seenAdSet[row.AdSetID] = true
			adSetIDs = append(adSetIDs, row.AdSetID)
		}
		if row.AdName == "" && capi.LooksLikeMetaID(row.AdID) && !seenAd[row.AdID] && len(adIDs) < MaxNameLookups {
			seenAd[row.AdID] = true
			adIDs = append(adIDs, row.AdID)
		}
	}

	adSetNames := make(map[string]string, len(adSetIDs))
	for _, id := range adSetIDs {
		if name := s.names.ObjectName(ctx, id, s.readToken); name != "" {
			adSetNames[id] = name
		}
	}
	adNames := make(map[string]string, len(adIDs))
	for _, id := range adIDs {
		if name := s.names.ObjectName(ctx, id, s.readToken); name != "" {
			adNames[id] = name
		}
	}

	for i := range rows {
		if rows[i].AdSetName == "" {
			rows[i].AdSetName = adSetNames[rows[i].AdSetID]
		}
		if rows[i].AdName == "" {
			rows[i].AdName = adNames[rows[i].AdID]
		}
	}
}

func adSetID(attr map[string]string) string {
	if v := strings.TrimSpace(attr["adset_id"]); v != "" {
		return v
	}
	if v := strings.TrimSpace(attr["utm_term"]); v != "" {
		return v
	}
	return "unknown"
}

func adID(attr map[string]string) string {
	if v := strings.TrimSpace(attr["ad_id"]); v != "" {
		return v
	}
	if v := strings.TrimSpace(attr["utm_content"]); v != "" {
		return v
	}
	return "unknown"
}

// adSetName prefers an explicit name key, then a human-readable utm_term.
func adSetName(attr map[string]string) string {
	for _, key := range []string{"adset_name", "ad_set_name", "utm_adset_name", "utm_adset", "adset", "ad_set"} {
		if v := strings.TrimSpace(attr[key]); v != "" {
			return truncateName(v)
		}
	}
	if term := strings.TrimSpace(attr["utm_term"]); term != "" && !capi.LooksLikeMetaID(term) {
		return truncateName(term)
	}
	return ""
}

func adName(attr map[string]string) string {
	for _, key := range []string{"ad_name", "utm_ad_name", "utm_ad", "ad"} {
		if v := strings.TrimSpace(attr[key]); v != "" {
			return truncateName(v)
		}
	}
	if content := strings.TrimSpace(attr["utm_content"]); content != "" && !capi.LooksLikeMetaID(content) {
		return truncateName(content)
	}
	return ""
}

// truncateName caps a display name without splitting a rune mid-sequence.
func truncateName(name string) string {
	if len(name) <= maxDisplayNameLength {
		return name
	}
	cut := maxDisplayNameLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
