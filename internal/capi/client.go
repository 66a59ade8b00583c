// Package capi is the server-side client for the Meta conversions API.
// Forwarding is best-effort: one call per event, no retries.
package capi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tracklink/tracklink/internal/model"
)

const (
	// DefaultBaseURL is the Meta graph API origin.
	DefaultBaseURL = "https://graph.facebook.com"

	// EventsAPIVersion is the conversions API version.
	EventsAPIVersion = "v18.0"

	// LookupAPIVersion is the version used for ad object name lookups.
	LookupAPIVersion = "v22.0"

	// LookupTimeout time-boxes each best-effort name lookup.
	LookupTimeout = 1200 * time.Millisecond

	// MaxErrorBodyLength caps the diagnostic body persisted on failure.
	MaxErrorBodyLength = 500

	clientTimeout         = 10 * time.Second
	dialTimeout           = 5 * time.Second
	tlsHandshakeTimeout   = 5 * time.Second
	responseHeaderTimeout = 8 * time.Second
)

// APIError is a non-2xx response from the conversions API. The body is
// truncated for persistence as the forward error.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ads api status %d: %s", e.Status, e.Body)
}

// UserData is the standard user matching block sent with each event.
type UserData struct {
	ClientUserAgent string `json:"client_user_agent,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	FBP             string `json:"fbp,omitempty"`
	FBC             string `json:"fbc,omitempty"`
	ExternalID      string `json:"external_id,omitempty"`
}

// EventInput describes one event to forward.
type EventInput struct {
	EventName      string
	EventID        string
	EventTime      time.Time
	EventSourceURL string
	TestEventCode  string
	UserData       UserData
}

type serverEvent struct {
	EventName      string   `json:"event_name"`
	EventTime      int64    `json:"event_time"`
	ActionSource   string   `json:"action_source"`
	EventSourceURL string   `json:"event_source_url,omitempty"`
	EventID        string   `json:"event_id,omitempty"`
	UserData       UserData `json:"user_data"`
}

type eventsRequest struct {
	Data          []serverEvent `json:"data"`
	TestEventCode string        `json:"test_event_code,omitempty"`
}

// Client calls the Meta graph API.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

// New creates a Client with conservative timeouts. An empty baseURL selects
// the production graph origin; tests point it at a local server.
func New(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: &http.Client{
			Timeout: clientTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   tlsHandshakeTimeout,
				ResponseHeaderTimeout: responseHeaderTimeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger.With("component", "capi.client"),
	}
}

// SendEvent forwards one event. The event id is one-way hashed before being
// used as the external id, so the raw client correlation id never leaves
// the server.
func (c *Client) SendEvent(ctx context.Context, creds model.AdsCredentials, input EventInput) error {
	userData := input.UserData
	if userData.ExternalID == "" && input.EventID != "" {
		userData.ExternalID = HashExternalID(input.EventID)
	}

	body := eventsRequest{
		Data: []serverEvent{{
			EventName:      input.EventName,
			EventTime:      input.EventTime.Unix(),
			ActionSource:   "website",
			EventSourceURL: input.EventSourceURL,
			EventID:        input.EventID,
			UserData:       userData,
		}},
		TestEventCode: input.TestEventCode,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal events request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events?access_token=%s",
		c.baseURL, EventsAPIVersion, url.PathEscape(creds.PixelID), url.QueryEscape(creds.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("events request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodyLength))
		return &APIError{Status: resp.StatusCode, Body: string(detail)}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// ObjectName looks up the display name of an ad object (ad set or ad) by id.
// Best-effort: any failure, non-2xx, or timeout yields an empty string.
func (c *Client) ObjectName(ctx context.Context, id, readToken string) string {
	if id == "" || readToken == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/%s?fields=name&access_token=%s",
		c.baseURL, LookupAPIVersion, url.PathEscape(id), url.QueryEscape(readToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}

	name := strings.TrimSpace(payload.Name)
	if len(name) > 180 {
		cut := 180
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return name
}

// HashExternalID one-way hashes a client correlation id for the ads API.
func HashExternalID(eventID string) string {
	sum := sha256.Sum256([]byte(eventID))
	return hex.EncodeToString(sum[:])
}

// SynthesizeFBC builds a click-id cookie value from a raw fbclid, used when
// the browser never set the _fbc cookie itself.
func SynthesizeFBC(fbclid string, now time.Time) string {
	if fbclid == "" {
		return ""
	}
	return fmt.Sprintf("fb.1.%d.%s", now.Unix(), fbclid)
}

var metaIDPattern = regexp.MustCompile(`^\d{8,24}$`)

// LooksLikeMetaID reports whether a value is shaped like a numeric Meta
// object id rather than a human-readable name.
func LooksLikeMetaID(value string) bool {
	return metaIDPattern.MatchString(strings.TrimSpace(value))
}
