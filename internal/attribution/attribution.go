// Package attribution extracts marketing identifiers and a stable anonymous
// visitor identity from the browsing environment.
package attribution

import (
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// MaxValueLength caps every attribution value.
const MaxValueLength = 200

// ParamKeys is the fixed allow-list of marketing parameters that may be
// captured. Anything outside this list is dropped.
var ParamKeys = []string{
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_content",
	"utm_term",
	"campaign_id",
	"adset_id",
	"ad_id",
	"fbclid",
	"gclid",
	"ttclid",
	"msclkid",
}

// Collect reads the allow-listed parameters from the page query first and the
// referrer query second; the first non-empty value wins. The result is a flat,
// immutable string mapping with length-capped values.
func Collect(pageQuery url.Values, referrer string) map[string]string {
	result := make(map[string]string)

	var refQuery url.Values
	if referrer != "" {
		if parsed, err := url.Parse(referrer); err == nil {
			refQuery = parsed.Query()
		}
	}

	for _, key := range ParamKeys {
		value := strings.TrimSpace(pageQuery.Get(key))
		if value == "" && refQuery != nil {
			value = strings.TrimSpace(refQuery.Get(key))
		}
		if value == "" {
			continue
		}
		result[key] = capValue(value)
	}

	return result
}

// ClickIDFromCookies extracts the known ad-click id from request cookies,
// independent of the query-string capture.
func ClickIDFromCookies(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if c.Name == "fbclid" && c.Value != "" {
			return capValue(strings.TrimSpace(c.Value))
		}
	}
	return ""
}

// capValue enforces MaxValueLength on a rune boundary so captured values
// stay valid UTF-8.
func capValue(value string) string {
	if len(value) <= MaxValueLength {
		return value
	}
	cut := MaxValueLength
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
