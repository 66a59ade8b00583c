// Package ingest is the server-side event pipeline: validate, verify,
// persist, then forward to the ads API with a terminal status per event.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/tracklink/tracklink/internal/attribution"
	"github.com/tracklink/tracklink/internal/capi"
	"github.com/tracklink/tracklink/internal/metrics"
	"github.com/tracklink/tracklink/internal/model"
	"github.com/tracklink/tracklink/internal/repository"
	"github.com/tracklink/tracklink/internal/tracking"
)

const (
	// MaxUserAgentLength caps the stored user agent.
	MaxUserAgentLength = 500

	// MaxFieldLength caps free-form string fields from the client.
	MaxFieldLength = 500

	// MaxForwardErrorLength caps the persisted forward error.
	MaxForwardErrorLength = 500
)

// Rejection errors. The handler maps these to 400/401 responses.
var (
	ErrMissingEventName = errors.New("missing event name")
	ErrUnknownEventName = errors.New("unknown event name")
	ErrInvalidToken     = errors.New("invalid tracking token")
)

// EventStore is the write side of the event log.
type EventStore interface {
	Insert(ctx context.Context, event *model.Event) error
	UpdateForwardStatus(ctx context.Context, id string, status model.ForwardStatus, forwardError string) error
}

// CredentialSource resolves per-release ads credentials.
type CredentialSource interface {
	GetCredentials(ctx context.Context, artistSlug, songSlug string) (model.AdsCredentials, error)
}

// Forwarder sends one event to the ads API.
type Forwarder interface {
	SendEvent(ctx context.Context, creds model.AdsCredentials, input capi.EventInput) error
}

// Request is one track-event submission after HTTP decoding. The handler
// fills the client-reported fields from the body and the server-captured
// fields from headers and cookies.
type Request struct {
	EventName         string
	EventID           string
	TestEventCode     string
	EventSourceURL    string
	TrackingAuthToken string
	RequestPath       string
	ForwardToFacebook bool

	Attribution map[string]string
	Context     model.EventContext
	Route       model.EventRoute
	Identity    model.Identity

	// Server-captured request metadata
	UserAgent string
	ClientIP  string
	FBP       string
	FBC       string
	FBCLID    string
}

// Result reports the persisted event and its terminal forward status.
type Result struct {
	EventLogID string
	Status     model.ForwardStatus
}

// Service runs the ingestion pipeline.
type Service struct {
	store     EventStore
	creds     CredentialSource
	forwarder Forwarder
	signer    *tracking.Signer
	credCache *CredentialCache

	defaultCreds model.AdsCredentials

	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates an ingestion Service. defaultCreds is the
// environment-level credential fallback and may be empty.
func NewService(store EventStore, creds CredentialSource, forwarder Forwarder, signer *tracking.Signer, defaultCreds model.AdsCredentials, recorder metrics.Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Service{
		store:        store,
		creds:        creds,
		forwarder:    forwarder,
		signer:       signer,
		credCache:    NewCredentialCache(0),
		defaultCreds: defaultCreds,
		metrics:      recorder,
		logger:       logger.With("component", "ingest.service"),
		now:          time.Now,
	}
}

// Track runs one event through the pipeline. A returned rejection error
// means nothing was persisted; any other outcome yields a Result whose
// status is the event's terminal forward status. Persistence failures are
// logged and swallowed so the landing page response never depends on them.
func (s *Service) Track(ctx context.Context, req Request) (*Result, error) {
	s.normalize(&req)

	if req.EventName == "" {
		s.metrics.IncEventRejected(string(model.ForwardSkippedNoEventName))
		return nil, ErrMissingEventName
	}
	if !model.ValidEventName(req.EventName) {
		s.metrics.IncEventRejected(string(model.ForwardSkippedInvalid))
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventName, req.EventName)
	}

	if s.signer.Enabled() {
		// A token is only as good as the path it binds to. With no
		// resolvable path the binding cannot be checked, so the request
		// is rejected rather than waved through.
		if req.RequestPath == "" {
			s.metrics.IncEventRejected(string(model.ForwardSkippedBadToken))
			return nil, fmt.Errorf("%w: unresolved request path", ErrInvalidToken)
		}
		verdict := s.signer.Verify(req.TrackingAuthToken, req.RequestPath)
		if !verdict.OK {
			s.metrics.IncEventRejected(string(model.ForwardSkippedBadToken))
			return nil, fmt.Errorf("%w: %s", ErrInvalidToken, verdict.Reason)
		}
	}

	creds := s.resolveCredentials(ctx, req.RequestPath)

	event := s.buildEvent(req)
	persisted := true
	if err := s.store.Insert(ctx, event); err != nil {
		persisted = false
		s.logger.Error("persist event failed", "event_name", event.Name, "path", event.RequestPath, "error", err)
	}

	status, forwardErr := s.forward(ctx, creds, req, event)

	if persisted {
		if err := s.store.UpdateForwardStatus(ctx, event.ID, status, forwardErr); err != nil {
			s.logger.Error("update forward status failed", "event_log_id", event.ID, "status", status, "error", err)
		}
	}
	s.metrics.IncEventIngested(string(status))

	return &Result{EventLogID: event.ID, Status: status}, nil
}

// forward decides and executes the ads-API call, returning exactly one
// terminal status.
func (s *Service) forward(ctx context.Context, creds model.AdsCredentials, req Request, event *model.Event) (model.ForwardStatus, string) {
	if !req.ForwardToFacebook {
		return model.ForwardSkippedInternal, ""
	}
	if creds.PixelID == "" {
		return model.ForwardSkippedNoPixel, ""
	}
	if creds.AccessToken == "" {
		return model.ForwardSkippedNoToken, ""
	}

	started := s.now()
	err := s.forwarder.SendEvent(ctx, creds, capi.EventInput{
		EventName:      string(event.Name),
		EventID:        event.EventID,
		EventTime:      event.CreatedAt,
		EventSourceURL: event.EventSourceURL,
		TestEventCode:  event.TestEventCode,
		UserData: capi.UserData{
			ClientUserAgent: event.UserAgent,
			ClientIPAddress: event.ClientIP,
			FBP:             event.FBP,
			FBC:             event.FBC,
		},
	})
	s.metrics.ObserveForwardDuration(s.now().Sub(started))

	if err != nil {
		s.logger.Warn("ads forward failed", "event_name", event.Name, "event_log_id", event.ID, "error", err)
		return model.ForwardError, truncate(err.Error(), MaxForwardErrorLength)
	}
	return model.ForwardOK, ""
}

// resolveCredentials looks up ads credentials for a path: release override,
// artist override, environment default, through the in-memory TTL cache.
// Lookup failures degrade to the environment default.
func (s *Service) resolveCredentials(ctx context.Context, path string) model.AdsCredentials {
	if creds, ok := s.credCache.Get(path); ok {
		s.metrics.IncReleaseCacheHit()
		return creds
	}
	s.metrics.IncReleaseCacheMiss()

	creds := s.defaultCreds
	artistSlug, songSlug, err := repository.SplitPath(path)
	if err == nil {
		resolved, lookupErr := s.creds.GetCredentials(ctx, artistSlug, songSlug)
		if lookupErr != nil {
			s.logger.Warn("credential lookup failed", "path", path, "error", lookupErr)
		} else {
			if resolved.PixelID != "" {
				creds.PixelID = resolved.PixelID
			}
			if resolved.AccessToken != "" {
				creds.AccessToken = resolved.AccessToken
			}
		}
	}

	s.credCache.Set(path, creds)
	return creds
}

func (s *Service) normalize(req *Request) {
	req.EventName = strings.TrimSpace(req.EventName)
	req.EventID = truncate(strings.TrimSpace(req.EventID), MaxFieldLength)
	req.TestEventCode = truncate(strings.TrimSpace(req.TestEventCode), MaxFieldLength)
	req.EventSourceURL = truncate(strings.TrimSpace(req.EventSourceURL), MaxFieldLength)
	req.RequestPath = tracking.NormalizePath(req.RequestPath)
	if req.RequestPath == "" {
		req.RequestPath = pathFromSourceURL(req.EventSourceURL)
	}
	req.UserAgent = truncate(req.UserAgent, MaxUserAgentLength)
	req.FBP = truncate(strings.TrimSpace(req.FBP), MaxFieldLength)
	req.FBC = truncate(strings.TrimSpace(req.FBC), MaxFieldLength)
	req.FBCLID = truncate(strings.TrimSpace(req.FBCLID), MaxFieldLength)

	if len(req.Attribution) > 0 {
		clean := make(map[string]string, len(req.Attribution))
		for _, key := range attribution.ParamKeys {
			if value := strings.TrimSpace(req.Attribution[key]); value != "" {
				clean[key] = truncate(value, attribution.MaxValueLength)
			}
		}
		req.Attribution = clean
	}

	// Synthesize a click-id cookie value when the browser never set one.
	if req.FBC == "" && req.FBCLID != "" {
		req.FBC = capi.SynthesizeFBC(req.FBCLID, s.now())
	}
}

func (s *Service) buildEvent(req Request) *model.Event {
	now := s.now()
	eventID := req.EventID
	if eventID == "" {
		eventID = fmt.Sprintf("sl-%d-%s", now.UnixMilli(), strings.ToLower(ulid.Make().String()[20:]))
	}
	return &model.Event{
		ID:             ulid.Make().String(),
		EventID:        eventID,
		Name:           model.EventName(req.EventName),
		RequestPath:    req.RequestPath,
		TestEventCode:  req.TestEventCode,
		EventSourceURL: req.EventSourceURL,
		Attribution:    req.Attribution,
		Context:        req.Context,
		Route:          req.Route,
		Identity:       req.Identity,
		UserAgent:      req.UserAgent,
		ClientIP:       req.ClientIP,
		FBP:            req.FBP,
		FBC:            req.FBC,
		ForwardStatus:  model.ForwardQueued,
		CreatedAt:      now,
	}
}

// pathFromSourceURL recovers the landing page path when the client did not
// report one: the wire body carries only the full page URL.
func pathFromSourceURL(sourceURL string) string {
	if sourceURL == "" {
		return ""
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	return tracking.NormalizePath(u.Path)
}

// truncate caps s at max bytes, backing up to a rune boundary so stored
// values stay valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
