package model

import "strings"

// RoutingOverrides are optional per-release tuning knobs for the routing
// planner. Nil pointers mean "use the planner default".
type RoutingOverrides struct {
	PreferWebOnDesktop    *bool `json:"prefer_web_on_desktop,omitempty"`
	DeepLinkDelayMs       *int  `json:"deep_link_delay_ms,omitempty"`
	FallbackDelayMs       *int  `json:"fallback_delay_ms,omitempty"`
	InAppFallbackExtraMs  *int  `json:"in_app_fallback_extra_ms,omitempty"`
	SuccessSignalWindowMs *int  `json:"success_signal_window_ms,omitempty"`
}

// TrackingOverrides are optional per-release tracking knobs.
type TrackingOverrides struct {
	QualifiedCooldownMs *int `json:"qualified_cooldown_ms,omitempty"`
}

// ReleaseConfig is the link configuration for one landing page.
// It is owned by the admin collaborator and read-only here.
type ReleaseConfig struct {
	ArtistSlug string `json:"artist_slug"`
	SongSlug   string `json:"song_slug"`

	DeepLinkURI string `json:"deep_link_uri,omitempty"`
	WebURL      string `json:"web_url"`

	// Per-release ads credentials; empty falls through to the artist-level
	// override, then the environment default.
	PixelID     string `json:"pixel_id,omitempty"`
	AccessToken string `json:"access_token,omitempty"`

	Routing  RoutingOverrides  `json:"routing,omitempty"`
	Tracking TrackingOverrides `json:"tracking,omitempty"`
}

// HasDeepLink reports whether a usable deep link is configured.
func (r *ReleaseConfig) HasDeepLink() bool {
	return strings.TrimSpace(r.DeepLinkURI) != ""
}

// AdsCredentials are the resolved pixel id and access token for one path.
type AdsCredentials struct {
	PixelID     string
	AccessToken string
}
