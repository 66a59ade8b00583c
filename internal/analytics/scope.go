// Package analytics aggregates persisted landing events into the admin
// reporting views: summary, timeseries, campaigns, route health and
// high-intent audiences.
package analytics

import (
	"net/url"
	"strings"
)

// Mode selects how a scope filters event paths.
type Mode string

const (
	// ModeArtist matches every path under the artist prefix.
	ModeArtist Mode = "artist"

	// ModeSong matches one exact page path.
	ModeSong Mode = "song"
)

// ReasonScopeNotSelected is returned in place of data when neither an
// artist nor a song has been picked.
const ReasonScopeNotSelected = "scope_not_selected"

// Scope is the artist/song filter applied to every analytics query.
type Scope struct {
	Mode       Mode   `json:"mode"`
	ArtistSlug string `json:"artistSlug"`
	SongSlug   string `json:"songSlug"`
}

// ParseScope reads scope parameters from a query string. Slugs are trimmed
// of surrounding slashes so callers can pass either "artist" or "/artist/".
func ParseScope(query url.Values) Scope {
	mode := ModeArtist
	if strings.EqualFold(strings.TrimSpace(query.Get("mode")), string(ModeSong)) {
		mode = ModeSong
	}
	return Scope{
		Mode:       mode,
		ArtistSlug: strings.Trim(strings.TrimSpace(query.Get("artist_slug")), "/"),
		SongSlug:   strings.Trim(strings.TrimSpace(query.Get("song_slug")), "/"),
	}
}

// Ready reports whether the scope identifies something to query.
func (s Scope) Ready() bool {
	if s.Mode == ModeSong {
		return s.SongSlug != ""
	}
	return s.ArtistSlug != ""
}

// SongPath is the exact request path matched in song mode.
func (s Scope) SongPath() string {
	return "/" + s.SongSlug
}

// ArtistPrefix is the request path prefix matched in artist mode.
func (s Scope) ArtistPrefix() string {
	return "/" + s.ArtistSlug + "/"
}
