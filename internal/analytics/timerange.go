package analytics

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// BusinessZone is the fixed timezone all day boundaries are computed in.
// The label operates in UTC+8 regardless of where the server runs.
var BusinessZone = time.FixedZone("UTC+8", 8*60*60)

const (
	// DefaultDays is the window used when no range is given.
	DefaultDays = 7

	// MaxCustomRangeDays bounds a custom range.
	MaxCustomRangeDays = 180

	dayKeyLayout = "2006-01-02"
)

// Range preset names.
const (
	RangeToday     = "today"
	RangeYesterday = "yesterday"
	RangeWeek      = "week"
	RangeMonth     = "month"
	RangeCustom    = "custom"
)

var legacyDayOptions = map[int]bool{7: true, 14: true, 30: true}

// Range is a half-open [Start, End) query window. StartDate and EndDate are
// the inclusive display bounds as business-timezone day keys.
type Range struct {
	Preset    string    `json:"range"`
	Days      int       `json:"days"`
	Start     time.Time `json:"startIso"`
	End       time.Time `json:"endIso"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
}

// ResolveRange maps query parameters to a window aligned on business-day
// boundaries. Presets: today, yesterday, week, month, custom. A bare legacy
// days parameter keeps the old rolling-window behavior.
func ResolveRange(query url.Values, now time.Time) Range {
	preset := strings.ToLower(strings.TrimSpace(query.Get("range")))

	if preset == "" && query.Get("days") != "" {
		return rollingRange(resolveLegacyDays(query), now)
	}

	dayStart := startOfBusinessDay(now)

	switch preset {
	case RangeToday, "day":
		return dayAlignedRange(RangeToday, dayStart, 1)
	case RangeYesterday:
		return dayAlignedRange(RangeYesterday, dayStart.AddDate(0, 0, -1), 1)
	case RangeMonth, "last_30d":
		return dayAlignedRange(RangeMonth, dayStart.AddDate(0, 0, -29), 30)
	case RangeCustom:
		if r, ok := customRange(query); ok {
			return r
		}
	}

	// week is also the default
	return dayAlignedRange(RangeWeek, dayStart.AddDate(0, 0, -6), DefaultDays)
}

// EnumerateDays lists every business-day key covered by the range, in order.
func EnumerateDays(r Range) []string {
	start, err := time.ParseInLocation(dayKeyLayout, r.StartDate, BusinessZone)
	if err != nil {
		return nil
	}
	days := make([]string, 0, r.Days)
	for i := 0; i < r.Days; i++ {
		days = append(days, start.AddDate(0, 0, i).Format(dayKeyLayout))
	}
	return days
}

// DayKey buckets a timestamp into its business-timezone day.
func DayKey(t time.Time) string {
	return t.In(BusinessZone).Format(dayKeyLayout)
}

func startOfBusinessDay(t time.Time) time.Time {
	local := t.In(BusinessZone)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, BusinessZone)
}

func dayAlignedRange(preset string, start time.Time, days int) Range {
	end := start.AddDate(0, 0, days)
	return Range{
		Preset:    preset,
		Days:      days,
		Start:     start,
		End:       end,
		StartDate: start.Format(dayKeyLayout),
		EndDate:   end.AddDate(0, 0, -1).Format(dayKeyLayout),
	}
}

func customRange(query url.Values) (Range, bool) {
	start, err := time.ParseInLocation(dayKeyLayout, strings.TrimSpace(query.Get("start_date")), BusinessZone)
	if err != nil {
		return Range{}, false
	}
	endInclusive, err := time.ParseInLocation(dayKeyLayout, strings.TrimSpace(query.Get("end_date")), BusinessZone)
	if err != nil {
		return Range{}, false
	}
	if endInclusive.Before(start) {
		return Range{}, false
	}

	days := int(endInclusive.Sub(start).Hours()/24) + 1
	if days > MaxCustomRangeDays {
		days = MaxCustomRangeDays
	}
	r := dayAlignedRange(RangeCustom, start, days)
	return r, true
}

func resolveLegacyDays(query url.Values) int {
	raw, err := strconv.Atoi(strings.TrimSpace(query.Get("days")))
	if err != nil || !legacyDayOptions[raw] {
		return DefaultDays
	}
	return raw
}

func rollingRange(days int, now time.Time) Range {
	start := now.Add(-time.Duration(days) * 24 * time.Hour)
	return Range{
		Preset:    presetForDays(days),
		Days:      days,
		Start:     start,
		End:       now,
		StartDate: DayKey(start),
		EndDate:   DayKey(now.Add(-time.Millisecond)),
	}
}

func presetForDays(days int) string {
	switch days {
	case 1:
		return RangeToday
	case 7:
		return RangeWeek
	case 30:
		return RangeMonth
	default:
		return RangeCustom
	}
}
