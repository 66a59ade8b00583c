package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/tracklink/tracklink/internal/attribution"
	"github.com/tracklink/tracklink/internal/model"
)

// fakeClock drives timers deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		fn := next.fn
		c.mu.Unlock()
		fn()
	}
}

// recordingSink captures emitted events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name model.EventName
	opts EmitOptions
}

func (s *recordingSink) Emit(name model.EventName, opts EmitOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{name: name, opts: opts})
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = string(e.name)
	}
	return out
}

func (s *recordingSink) count(name model.EventName) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.name == name {
			n++
		}
	}
	return n
}

// recordingNav captures navigations.
type recordingNav struct {
	mu        sync.Mutex
	deepLinks []string
	webs      []string
}

func (n *recordingNav) OpenDeepLink(uri string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deepLinks = append(n.deepLinks, uri)
}

func (n *recordingNav) OpenWeb(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.webs = append(n.webs, url)
}

const (
	iosUA     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"
	desktopUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

func mobileConfig() *model.ReleaseConfig {
	return &model.ReleaseConfig{
		DeepLinkURI: "app://track/1",
		WebURL:      "https://open.example.com/t/1",
	}
}

func newTestSession(cfg *model.ReleaseConfig, ua string) (*Session, *recordingSink, *recordingNav, *fakeClock) {
	sink := &recordingSink{}
	nav := &recordingNav{}
	clock := newFakeClock()
	gate := NewCooldownGate(attribution.NewMemoryStore(), clock, DefaultQualifiedCooldown)
	return NewSession(cfg, "/artist-x/song-y", ua, sink, nav, clock, gate), sink, nav, clock
}

func TestSession_WebOnlyNavigatesImmediately(t *testing.T) {
	cfg := &model.ReleaseConfig{WebURL: "https://open.example.com/t/1"}
	s, sink, nav, _ := newTestSession(cfg, iosUA)

	s.Dispatch()

	want := []string{"SmartLinkClick", "SmartLinkRouteChosen", "SmartLinkOpenFallback"}
	got := sink.names()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if len(nav.webs) != 1 || nav.webs[0] != cfg.WebURL {
		t.Errorf("web navigations = %v, want one to %s", nav.webs, cfg.WebURL)
	}
	if len(nav.deepLinks) != 0 {
		t.Errorf("unexpected deep-link navigations: %v", nav.deepLinks)
	}
	if s.Outcome() != OutcomeFallback {
		t.Errorf("outcome = %s, want fallback", s.Outcome())
	}
}

func TestSession_DeepLinkThenFallback(t *testing.T) {
	s, sink, nav, clock := newTestSession(mobileConfig(), iosUA)

	s.Dispatch()

	// Deep link fires at 180ms.
	clock.Advance(200 * time.Millisecond)
	if sink.count(model.EventOpenAttempt) != 1 {
		t.Fatalf("OpenAttempt count = %d after deep-link timer", sink.count(model.EventOpenAttempt))
	}
	if len(nav.deepLinks) != 1 {
		t.Fatalf("deep-link navigations = %v", nav.deepLinks)
	}

	// Fallback fires at 1200ms; no hidden signal arrived.
	clock.Advance(1100 * time.Millisecond)
	if sink.count(model.EventOpenFallback) != 1 {
		t.Errorf("OpenFallback count = %d", sink.count(model.EventOpenFallback))
	}
	if len(nav.webs) != 1 {
		t.Errorf("web navigations = %v", nav.webs)
	}
	if s.Outcome() != OutcomeFallback {
		t.Errorf("outcome = %s, want fallback", s.Outcome())
	}
	if sink.count(model.EventOpenSuccess) != 0 {
		t.Error("OpenSuccess must not fire after fallback settled")
	}

	// Late hidden signal is a no-op.
	s.PageHidden()
	if sink.count(model.EventOpenSuccess) != 0 {
		t.Error("late PageHidden emitted OpenSuccess after settlement")
	}
}

func TestSession_HiddenBeforeFallbackIsSuccess(t *testing.T) {
	s, sink, nav, clock := newTestSession(mobileConfig(), iosUA)

	s.Dispatch()
	clock.Advance(200 * time.Millisecond) // deep link fired
	s.PageHidden()

	if sink.count(model.EventOpenSuccess) != 1 {
		t.Fatalf("OpenSuccess count = %d, want 1", sink.count(model.EventOpenSuccess))
	}
	if sink.count(model.EventQualified) != 1 {
		t.Fatalf("Qualified count = %d, want 1", sink.count(model.EventQualified))
	}
	if s.Outcome() != OutcomeSuccess {
		t.Errorf("outcome = %s, want success", s.Outcome())
	}

	// Fallback timer was cancelled: advancing past it must not navigate.
	clock.Advance(5 * time.Second)
	if sink.count(model.EventOpenFallback) != 0 {
		t.Error("OpenFallback fired after success settlement")
	}
	if len(nav.webs) != 0 {
		t.Errorf("web navigation after success: %v", nav.webs)
	}
}

func TestSession_ExactlyOneSettlement(t *testing.T) {
	// The core invariant: exactly one of {success, fallback, timeout}.
	scenarios := []struct {
		name        string
		run         func(s *Session, clock *fakeClock)
		wantOutcome Outcome
	}{
		{
			name:        "hidden first",
			run:         func(s *Session, clock *fakeClock) { clock.Advance(300 * time.Millisecond); s.PageHidden() },
			wantOutcome: OutcomeSuccess,
		},
		{
			name:        "fallback first",
			run:         func(s *Session, clock *fakeClock) { clock.Advance(2 * time.Second) },
			wantOutcome: OutcomeFallback,
		},
	}

	for _, tt := range scenarios {
		t.Run(tt.name, func(t *testing.T) {
			s, sink, _, clock := newTestSession(mobileConfig(), iosUA)

			s.Dispatch()
			tt.run(s, clock)
			clock.Advance(time.Minute) // run out every remaining timer
			s.PageHidden()             // and a stray late signal

			success := sink.count(model.EventOpenSuccess)
			fallback := sink.count(model.EventOpenFallback)
			if success+fallback > 1 {
				t.Errorf("success=%d fallback=%d, want at most one settlement event", success, fallback)
			}
			if s.Outcome() != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", s.Outcome(), tt.wantOutcome)
			}
		})
	}
}

// throttlingClock simulates background-tab timer throttling: timers at the
// suppressed delay are registered but never fire.
type throttlingClock struct {
	*fakeClock
	suppress time.Duration
}

type deadTimer struct{}

func (deadTimer) Stop() bool { return false }

func (c *throttlingClock) AfterFunc(d time.Duration, fn func()) Timer {
	if d == c.suppress {
		return deadTimer{}
	}
	return c.fakeClock.AfterFunc(d, fn)
}

func TestSession_SafetyTimeoutBoundsListener(t *testing.T) {
	// iOS defaults: fallback 1200ms, safety window 2400ms. With the fallback
	// timer throttled away and no hidden signal, the safety timer must still
	// settle the dispatch, emitting nothing.
	clock := &throttlingClock{fakeClock: newFakeClock(), suppress: 1200 * time.Millisecond}
	sink := &recordingSink{}
	nav := &recordingNav{}
	s := NewSession(mobileConfig(), "/artist-x/song-y", iosUA, sink, nav, clock, nil)

	s.Dispatch()
	clock.Advance(time.Minute)

	if s.Outcome() != OutcomeTimeout {
		t.Fatalf("outcome = %s, want timeout", s.Outcome())
	}
	if got := sink.count(model.EventOpenSuccess) + sink.count(model.EventOpenFallback); got != 0 {
		t.Errorf("timeout settlement emitted %d settlement events, want 0", got)
	}

	// Settled: the late hidden signal is ignored.
	s.PageHidden()
	if sink.count(model.EventOpenSuccess) != 0 {
		t.Error("PageHidden after safety timeout emitted OpenSuccess")
	}
}

func TestSession_ReentrantTapIgnored(t *testing.T) {
	s, sink, _, clock := newTestSession(mobileConfig(), iosUA)

	s.Dispatch()
	s.Dispatch()
	s.Dispatch()

	if got := sink.count(model.EventClick); got != 1 {
		t.Errorf("Click count = %d, want 1 (re-entrant taps ignored)", got)
	}

	clock.Advance(2 * time.Second)

	// After settlement a new tap arms again.
	s.Dispatch()
	if got := sink.count(model.EventClick); got != 2 {
		t.Errorf("Click count = %d, want 2 after settlement", got)
	}
}

func TestSession_QualifiedCooldown(t *testing.T) {
	store := attribution.NewMemoryStore()
	sink := &recordingSink{}
	nav := &recordingNav{}
	clock := newFakeClock()
	gate := NewCooldownGate(store, clock, DefaultQualifiedCooldown)
	cfg := mobileConfig()

	// Two successful dispatches on the same path inside the window.
	for i := 0; i < 2; i++ {
		s := NewSession(cfg, "/artist-x/song-y", iosUA, sink, nav, clock, gate)
		s.Dispatch()
		clock.Advance(300 * time.Millisecond)
		s.PageHidden()
	}

	if got := sink.count(model.EventOpenSuccess); got != 2 {
		t.Errorf("OpenSuccess count = %d, want 2", got)
	}
	if got := sink.count(model.EventQualified); got != 1 {
		t.Errorf("Qualified count = %d, want 1 inside cooldown window", got)
	}

	// Past the window the signal fires again.
	clock.Advance(DefaultQualifiedCooldown)
	s := NewSession(cfg, "/artist-x/song-y", iosUA, sink, nav, clock, gate)
	s.Dispatch()
	clock.Advance(300 * time.Millisecond)
	s.PageHidden()

	if got := sink.count(model.EventQualified); got != 2 {
		t.Errorf("Qualified count = %d, want 2 after window elapsed", got)
	}
}

func TestSession_CooldownIsPerPath(t *testing.T) {
	store := attribution.NewMemoryStore()
	sink := &recordingSink{}
	clock := newFakeClock()
	gate := NewCooldownGate(store, clock, DefaultQualifiedCooldown)
	cfg := mobileConfig()

	for _, path := range []string{"/artist-x/song-y", "/artist-x/song-z"} {
		s := NewSession(cfg, path, iosUA, sink, &recordingNav{}, clock, gate)
		s.Dispatch()
		clock.Advance(300 * time.Millisecond)
		s.PageHidden()
	}

	if got := sink.count(model.EventQualified); got != 2 {
		t.Errorf("Qualified count = %d, want 2 for distinct paths", got)
	}
}

func TestSession_PageViewOncePerSession(t *testing.T) {
	s, sink, _, _ := newTestSession(mobileConfig(), iosUA)

	s.PageView("view-1")
	s.PageView("view-2")

	if got := sink.count(model.EventView); got != 1 {
		t.Errorf("View count = %d, want 1", got)
	}
}

func TestSession_ForwardFlags(t *testing.T) {
	s, sink, _, clock := newTestSession(mobileConfig(), iosUA)

	s.Dispatch()
	clock.Advance(300 * time.Millisecond)
	s.PageHidden()

	forwardable := map[string]bool{
		"SmartLinkClick":       true,
		"SmartLinkOpenSuccess": true,
		"SmartLinkQualified":   true,
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.events {
		want := forwardable[string(e.name)]
		if e.opts.ForwardToFacebook != want {
			t.Errorf("%s forwardToFacebook = %v, want %v", e.name, e.opts.ForwardToFacebook, want)
		}
	}
}

func TestQualifiedCooldownClamp(t *testing.T) {
	tests := []struct {
		name string
		ms   *int
		want time.Duration
	}{
		{"default", nil, DefaultQualifiedCooldown},
		{"explicit", intPtr(int(2 * time.Hour / time.Millisecond)), 2 * time.Hour},
		{"below floor", intPtr(10), MinQualifiedCooldown},
		{"above ceiling", intPtr(int(30 * 24 * time.Hour / time.Millisecond)), MaxQualifiedCooldown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &model.ReleaseConfig{Tracking: model.TrackingOverrides{QualifiedCooldownMs: tt.ms}}
			if got := QualifiedCooldown(cfg); got != tt.want {
				t.Errorf("QualifiedCooldown = %v, want %v", got, tt.want)
			}
		})
	}
}

func intPtr(v int) *int { return &v }
