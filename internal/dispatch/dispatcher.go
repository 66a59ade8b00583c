// Package dispatch drives the navigation attempt for one landing-page
// session: deep link timer, web fallback timer, success detection via the
// page-hidden signal, and a safety timeout bounding listener lifetime.
package dispatch

import (
	"sync"
	"time"

	"github.com/tracklink/tracklink/internal/model"
	"github.com/tracklink/tracklink/internal/routing"
)

// Navigation targets carried on route payloads for diagnostics.
const (
	OpenTargetApp     = "native_app"
	FallbackTargetWeb = "web_link"
	audienceTierHigh  = "high_intent"
)

// Outcome is the settlement of one dispatch attempt. Exactly one outcome
// occurs per tap.
type Outcome string

const (
	OutcomeNone     Outcome = ""
	OutcomeSuccess  Outcome = "success"
	OutcomeFallback Outcome = "fallback"
	OutcomeTimeout  Outcome = "timeout"
)

// Navigator performs the actual navigation. Implementations must not block.
type Navigator interface {
	OpenDeepLink(uri string)
	OpenWeb(url string)
}

// EmitOptions qualifies an emitted funnel event.
type EmitOptions struct {
	EventID           string
	ForwardToFacebook bool
	Context           model.EventContext
	Route             model.EventRoute
}

// EventSink receives funnel events. Emission must be non-blocking and must
// never fail the dispatcher.
type EventSink interface {
	Emit(name model.EventName, opts EmitOptions)
}

// Session is the per-page-load dispatch state machine. It replaces ambient
// page-global guards with an explicit object: one Session per page load.
type Session struct {
	cfg  *model.ReleaseConfig
	path string
	ctx  routing.Context

	sink     EventSink
	nav      Navigator
	clock    Clock
	cooldown *CooldownGate

	mu       sync.Mutex
	viewSent bool
	armed    bool
	settled  bool
	outcome  Outcome
	timers   []Timer
}

// NewSession creates a dispatcher for one page load.
func NewSession(cfg *model.ReleaseConfig, path, userAgent string, sink EventSink, nav Navigator, clock Clock, cooldown *CooldownGate) *Session {
	if clock == nil {
		clock = NewClock()
	}
	return &Session{
		cfg:      cfg,
		path:     path,
		ctx:      routing.DetectContext(userAgent),
		sink:     sink,
		nav:      nav,
		clock:    clock,
		cooldown: cooldown,
	}
}

// Context exposes the detected routing context.
func (s *Session) Context() routing.Context { return s.ctx }

// Outcome returns the settlement of the last dispatch.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// PageView emits the View event at most once per session.
func (s *Session) PageView(eventID string) {
	s.mu.Lock()
	if s.viewSent {
		s.mu.Unlock()
		return
	}
	s.viewSent = true
	s.mu.Unlock()

	s.sink.Emit(model.EventView, EmitOptions{
		EventID:           eventID,
		ForwardToFacebook: true,
		Context:           s.ctx.EventContext(),
		Route:             model.EventRoute{Strategy: "view", Reason: "page-load"},
	})
}

// Dispatch handles one tap. Re-entrant taps while a dispatch is armed are
// ignored. Emits Click and RouteChosen, then either navigates to the web
// link immediately (web-only) or arms the deep-link/fallback/safety timers.
func (s *Session) Dispatch() {
	s.mu.Lock()
	if s.armed {
		s.mu.Unlock()
		return
	}
	s.armed = true
	s.settled = false
	s.outcome = OutcomeNone
	s.mu.Unlock()

	plan := routing.BuildPlan(s.cfg, s.ctx)
	sharedCtx := s.ctx.EventContext()
	sharedRoute := plan.EventRoute()

	s.sink.Emit(model.EventClick, EmitOptions{
		ForwardToFacebook: true,
		Context:           sharedCtx,
		Route:             sharedRoute,
	})
	s.sink.Emit(model.EventRouteChosen, EmitOptions{
		Context: sharedCtx,
		Route:   sharedRoute,
	})

	if plan.Strategy == routing.StrategyWebOnly {
		fallbackRoute := sharedRoute
		fallbackRoute.FallbackTarget = FallbackTargetWeb
		s.sink.Emit(model.EventOpenFallback, EmitOptions{
			Context: sharedCtx,
			Route:   fallbackRoute,
		})

		s.mu.Lock()
		s.armed = false
		s.outcome = OutcomeFallback
		s.mu.Unlock()

		s.nav.OpenWeb(s.cfg.WebURL)
		return
	}

	deepLink := s.clock.AfterFunc(time.Duration(plan.DeepLinkDelayMs)*time.Millisecond, func() {
		s.mu.Lock()
		done := s.settled
		s.mu.Unlock()
		if done {
			return
		}

		attemptRoute := sharedRoute
		attemptRoute.OpenTarget = OpenTargetApp
		s.sink.Emit(model.EventOpenAttempt, EmitOptions{
			Context: sharedCtx,
			Route:   attemptRoute,
		})
		s.nav.OpenDeepLink(s.cfg.DeepLinkURI)
	})

	fallback := s.clock.AfterFunc(time.Duration(plan.FallbackDelayMs)*time.Millisecond, func() {
		if !s.settle(OutcomeFallback) {
			return
		}

		fallbackRoute := sharedRoute
		fallbackRoute.FallbackTarget = FallbackTargetWeb
		s.sink.Emit(model.EventOpenFallback, EmitOptions{
			Context: sharedCtx,
			Route:   fallbackRoute,
		})
		s.nav.OpenWeb(s.cfg.WebURL)
	})

	// Bounds listener lifetime even when no visibility signal ever fires,
	// e.g. a desktop tab that just sits there.
	safety := s.clock.AfterFunc(time.Duration(plan.SuccessSignalWindowMs)*time.Millisecond, func() {
		s.settle(OutcomeTimeout)
	})

	s.mu.Lock()
	s.timers = []Timer{deepLink, fallback, safety}
	s.mu.Unlock()
}

// PageHidden is the success signal: the page went hidden before the fallback
// fired, which is treated as evidence the native app opened. This is a
// heuristic, not ground truth: switching tabs looks identical.
func (s *Session) PageHidden() {
	if !s.settle(OutcomeSuccess) {
		return
	}

	plan := routing.BuildPlan(s.cfg, s.ctx)
	sharedCtx := s.ctx.EventContext()

	successRoute := plan.EventRoute()
	successRoute.OpenTarget = OpenTargetApp
	s.sink.Emit(model.EventOpenSuccess, EmitOptions{
		ForwardToFacebook: true,
		Context:           sharedCtx,
		Route:             successRoute,
	})

	if s.cooldown == nil || s.cooldown.Allow(s.path) {
		qualifiedRoute := plan.EventRoute()
		qualifiedRoute.AudienceTier = audienceTierHigh
		s.sink.Emit(model.EventQualified, EmitOptions{
			ForwardToFacebook: true,
			Context:           sharedCtx,
			Route:             qualifiedRoute,
		})
	}
}

// settle transitions armed → settled exactly once and cancels all timers.
// Returns false when the dispatch was not armed or already settled.
func (s *Session) settle(outcome Outcome) bool {
	s.mu.Lock()
	if !s.armed || s.settled {
		s.mu.Unlock()
		return false
	}
	s.settled = true
	s.armed = false
	s.outcome = outcome
	timers := s.timers
	s.timers = nil
	s.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	return true
}
