package routing

import "github.com/tracklink/tracklink/internal/model"

// Strategy is the chosen navigation strategy for one tap.
type Strategy string

const (
	StrategyDeepLinkFirst Strategy = "deep-link-first"
	StrategyWebOnly       Strategy = "web-only"
)

// Plan reasons (diagnostic tags carried on every routed event).
const (
	ReasonMissingDeepLink   = "missing-deep-link"
	ReasonDesktopPreferWeb  = "desktop-prefer-web"
	ReasonMobileBrowser     = "mobile-browser"
	reasonInAppPrefix       = "in-app-"
)

// Timing bounds and defaults, all in milliseconds.
const (
	MaxDelayMs = 10000

	baseDeepLinkDelayIOS   = 180
	baseDeepLinkDelayOther = 120
	baseFallbackDelayIOS   = 1200
	baseFallbackDelayOther = 900
	inAppFallbackExtra     = 420
	maxInAppFallbackExtra  = 3000
	minFallbackDelay       = 300
	minSuccessWindowGap    = 200
	successWindowPad       = 1200
	minSuccessWindow       = 2200
)

// Plan holds the timing parameters for one dispatch attempt.
// For StrategyWebOnly all delay fields are zero.
type Plan struct {
	Strategy              Strategy
	DeepLinkDelayMs       int
	FallbackDelayMs       int
	SuccessSignalWindowMs int
	Reason                string
}

// BuildPlan decides the routing strategy for a given release and context.
// It is a pure function: deterministic and side-effect free.
func BuildPlan(cfg *model.ReleaseConfig, ctx Context) Plan {
	if !cfg.HasDeepLink() {
		return Plan{Strategy: StrategyWebOnly, Reason: ReasonMissingDeepLink}
	}

	preferWebOnDesktop := true
	if cfg.Routing.PreferWebOnDesktop != nil {
		preferWebOnDesktop = *cfg.Routing.PreferWebOnDesktop
	}
	if !ctx.IsMobile && preferWebOnDesktop {
		return Plan{Strategy: StrategyWebOnly, Reason: ReasonDesktopPreferWeb}
	}

	baseDeepLinkDelay := baseDeepLinkDelayOther
	baseFallbackDelay := baseFallbackDelayOther
	if ctx.OS == OSIOS {
		baseDeepLinkDelay = baseDeepLinkDelayIOS
		baseFallbackDelay = baseFallbackDelayIOS
	}

	// Wrapped browsers hand off to the native app more slowly, so the
	// fallback gets extra headroom before it fires.
	inAppExtra := 0
	if ctx.InAppBrowser != InAppNone {
		inAppExtra = inAppFallbackExtra
	}
	inAppExtra = clampMs(cfg.Routing.InAppFallbackExtraMs, 0, maxInAppFallbackExtra, inAppExtra)

	deepLinkDelay := clampMs(cfg.Routing.DeepLinkDelayMs, 0, MaxDelayMs, baseDeepLinkDelay)
	fallbackDelay := clampMs(cfg.Routing.FallbackDelayMs, minFallbackDelay, MaxDelayMs, baseFallbackDelay+inAppExtra)

	defaultWindow := fallbackDelay + successWindowPad
	if defaultWindow < minSuccessWindow {
		defaultWindow = minSuccessWindow
	}
	successWindow := clampMs(cfg.Routing.SuccessSignalWindowMs, fallbackDelay+minSuccessWindowGap, MaxDelayMs, defaultWindow)

	reason := ReasonMobileBrowser
	if ctx.InAppBrowser != InAppNone {
		reason = reasonInAppPrefix + string(ctx.InAppBrowser)
	}

	return Plan{
		Strategy:              StrategyDeepLinkFirst,
		DeepLinkDelayMs:       deepLinkDelay,
		FallbackDelayMs:       fallbackDelay,
		SuccessSignalWindowMs: successWindow,
		Reason:                reason,
	}
}

// EventRoute converts a plan into its event payload form.
func (p Plan) EventRoute() model.EventRoute {
	return model.EventRoute{
		Strategy:            string(p.Strategy),
		DeepLinkDelayMs:     p.DeepLinkDelayMs,
		FallbackDelayMs:     p.FallbackDelayMs,
		SuccessSignalWindow: p.SuccessSignalWindowMs,
		Reason:              p.Reason,
	}
}

// EventContext converts a context into its event payload form.
func (c Context) EventContext() model.EventContext {
	return model.EventContext{
		OS:           string(c.OS),
		InAppBrowser: string(c.InAppBrowser),
		IsMobile:     c.IsMobile,
	}
}

// clampMs bounds an optional override to [minValue, maxValue], falling back
// when the override is absent.
func clampMs(override *int, minValue, maxValue, fallback int) int {
	v := fallback
	if override != nil {
		v = *override
	}
	if v < minValue {
		return minValue
	}
	if v > maxValue {
		return maxValue
	}
	return v
}
