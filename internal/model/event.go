// Package model defines domain entities for the application.
package model

import "time"

// EventName identifies a funnel stage emitted by the landing page.
type EventName string

// Funnel event names. The set is closed; ingestion rejects anything else.
const (
	EventView         EventName = "SmartLinkView"
	EventClick        EventName = "SmartLinkClick"
	EventRouteChosen  EventName = "SmartLinkRouteChosen"
	EventOpenAttempt  EventName = "SmartLinkOpenAttempt"
	EventOpenFallback EventName = "SmartLinkOpenFallback"
	EventOpenSuccess  EventName = "SmartLinkOpenSuccess"
	EventQualified    EventName = "SmartLinkQualified"
)

// AllEventNames lists every valid funnel event, in funnel order.
var AllEventNames = []EventName{
	EventView,
	EventClick,
	EventRouteChosen,
	EventOpenAttempt,
	EventOpenFallback,
	EventOpenSuccess,
	EventQualified,
}

// ValidEventName reports whether name is one of the known funnel events.
func ValidEventName(name string) bool {
	for _, n := range AllEventNames {
		if string(n) == name {
			return true
		}
	}
	return false
}

// ForwardStatus is the terminal outcome of the ads-API forward attempt.
// An event row is created with StatusQueued and updated exactly once.
type ForwardStatus string

const (
	ForwardQueued             ForwardStatus = "queued"
	ForwardOK                 ForwardStatus = "ok"
	ForwardError              ForwardStatus = "error"
	ForwardSkippedNoPixel     ForwardStatus = "skipped_missing_pixel"
	ForwardSkippedNoToken     ForwardStatus = "skipped_missing_token"
	ForwardSkippedNoEventName ForwardStatus = "skipped_no_event_name"
	ForwardSkippedInternal    ForwardStatus = "skipped_internal_only"
	ForwardSkippedInvalid     ForwardStatus = "skipped_invalid_event"
	ForwardSkippedBadToken    ForwardStatus = "skipped_invalid_signature"
)

// Identity is the client-generated visitor identity. The anonymous id is
// stable across sessions; the session id is stable within one session.
type Identity struct {
	AnonymousID string `json:"anonymousId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
}

// EventContext is the routing context snapshot attached to an event.
type EventContext struct {
	OS           string `json:"os,omitempty"`
	InAppBrowser string `json:"in_app_browser,omitempty"`
	IsMobile     bool   `json:"is_mobile,omitempty"`
}

// EventRoute is the routing plan snapshot attached to an event.
type EventRoute struct {
	Strategy            string `json:"strategy,omitempty"`
	DeepLinkDelayMs     int    `json:"deep_link_delay_ms,omitempty"`
	FallbackDelayMs     int    `json:"fallback_delay_ms,omitempty"`
	SuccessSignalWindow int    `json:"success_signal_window_ms,omitempty"`
	Reason              string `json:"reason,omitempty"`
	OpenTarget          string `json:"open_target,omitempty"`
	FallbackTarget      string `json:"fallback_target,omitempty"`
	AudienceTier        string `json:"audience_tier,omitempty"`
}

// Event is the persisted unit of the marketing funnel.
type Event struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Client correlation id; hashed before leaving the server

	Name        EventName `json:"event_name"`
	RequestPath string    `json:"request_path"` // Normalized slug path, basis for analytics scoping

	TestEventCode  string `json:"test_event_code,omitempty"`
	EventSourceURL string `json:"event_source_url,omitempty"`

	Attribution map[string]string `json:"attribution,omitempty"` // utm_* and click ids, immutable
	Context     EventContext      `json:"context"`
	Route       EventRoute        `json:"route"`
	Identity    Identity          `json:"identity"`

	// Request metadata captured server-side
	UserAgent string `json:"user_agent,omitempty"` // truncated 500 chars
	ClientIP  string `json:"client_ip,omitempty"`
	FBP       string `json:"fbp,omitempty"` // _fbp cookie
	FBC       string `json:"fbc,omitempty"` // _fbc cookie (or synthesized from fbclid)

	ForwardStatus ForwardStatus `json:"forward_status"`
	ForwardError  string        `json:"forward_error,omitempty"` // truncated response body on error

	CreatedAt time.Time `json:"created_at"`
}
