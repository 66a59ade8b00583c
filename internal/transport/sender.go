// Package transport ships funnel events to the ingestion endpoint with
// best-effort, at-most-one-attempt delivery that survives page-unload races.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/tracklink/tracklink/internal/dispatch"
	"github.com/tracklink/tracklink/internal/model"
)

// SendTimeout bounds the fallback HTTP delivery attempt.
const SendTimeout = 5 * time.Second

// Beacon is the browser-style fire-and-forget primitive. It reports whether
// the payload was queued for delivery.
type Beacon func(endpoint string, body []byte) bool

// Payload is the wire format accepted by POST /track-event.
type Payload struct {
	EventName         string            `json:"eventName"`
	EventID           string            `json:"eventId"`
	TestEventCode     string            `json:"testEventCode,omitempty"`
	EventSourceURL    string            `json:"eventSourceUrl,omitempty"`
	TrackingAuthToken string            `json:"trackingAuthToken,omitempty"`
	Attribution       map[string]string `json:"attribution,omitempty"`
	Context           model.EventContext `json:"context"`
	Route             model.EventRoute   `json:"route"`
	Identity          model.Identity     `json:"identity"`
	ForwardToFacebook bool               `json:"forwardToFacebook"`
}

// Sender builds and delivers event payloads. It implements
// dispatch.EventSink. Send never fails the caller: delivery errors are
// logged and swallowed, and there are no retries.
type Sender struct {
	endpoint       string
	beacon         Beacon
	client         *http.Client
	logger         *slog.Logger
	authToken      string
	testEventCode  string
	eventSourceURL string
	attribution    map[string]string
	identity       model.Identity

	// inflight tracks async fallback deliveries so tests can drain them.
	inflight chan struct{}
}

// Config carries the per-page-load payload context for a Sender.
type Config struct {
	Endpoint       string
	Beacon         Beacon
	Client         *http.Client
	AuthToken      string
	TestEventCode  string
	EventSourceURL string
	Attribution    map[string]string
	Identity       model.Identity
}

// NewSender creates a Sender for one page session.
func NewSender(cfg Config, logger *slog.Logger) *Sender {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: SendTimeout}
	}
	return &Sender{
		endpoint:       cfg.Endpoint,
		beacon:         cfg.Beacon,
		client:         client,
		logger:         logger.With("component", "transport.sender"),
		authToken:      cfg.AuthToken,
		testEventCode:  cfg.TestEventCode,
		eventSourceURL: cfg.EventSourceURL,
		attribution:    cfg.Attribution,
		identity:       cfg.Identity,
		inflight:       make(chan struct{}, 64),
	}
}

// Emit implements dispatch.EventSink.
func (s *Sender) Emit(name model.EventName, opts dispatch.EmitOptions) {
	eventID := opts.EventID
	if eventID == "" {
		eventID = NewEventID(strings.ToLower(string(name)))
	}

	payload := Payload{
		EventName:         string(name),
		EventID:           eventID,
		TestEventCode:     s.testEventCode,
		EventSourceURL:    s.eventSourceURL,
		TrackingAuthToken: s.authToken,
		Attribution:       s.attribution,
		Context:           opts.Context,
		Route:             opts.Route,
		Identity:          s.identity,
		ForwardToFacebook: opts.ForwardToFacebook,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode event payload", "event_name", name, "error", err)
		return
	}

	if s.beacon != nil && s.beacon(s.endpoint, body) {
		return
	}

	// Beacon unavailable or refused the payload: non-blocking HTTP fallback.
	select {
	case s.inflight <- struct{}{}:
	default:
		s.logger.Warn("event dropped, too many in-flight deliveries", "event_name", name)
		return
	}

	go func() {
		defer func() { <-s.inflight }()

		ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			s.logger.Warn("failed to build event request", "event_name", name, "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.logger.Warn("event delivery failed", "event_name", name, "error", err)
			return
		}
		resp.Body.Close()
	}()
}

// Drain blocks until no fallback deliveries are in flight, or the context
// expires. Intended for tests and page teardown.
func (s *Sender) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if len(s.inflight) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// NewEventID generates a correlation id with an event-name prefix.
func NewEventID(prefix string) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, time.Now().UnixMilli(), rand.Intn(100000))
}
