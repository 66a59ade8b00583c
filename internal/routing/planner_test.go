package routing

import (
	"testing"

	"github.com/tracklink/tracklink/internal/model"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestBuildPlan_WebOnly(t *testing.T) {
	tests := []struct {
		name       string
		cfg        model.ReleaseConfig
		ctx        Context
		wantReason string
	}{
		{
			name:       "no deep link on mobile",
			cfg:        model.ReleaseConfig{WebURL: "https://open.example.com/t/1"},
			ctx:        Context{OS: OSIOS, InAppBrowser: InAppNone, IsMobile: true},
			wantReason: ReasonMissingDeepLink,
		},
		{
			name:       "no deep link on desktop",
			cfg:        model.ReleaseConfig{WebURL: "https://open.example.com/t/1"},
			ctx:        Context{OS: OSDesktop, InAppBrowser: InAppNone, IsMobile: false},
			wantReason: ReasonMissingDeepLink,
		},
		{
			name:       "whitespace deep link counts as missing",
			cfg:        model.ReleaseConfig{DeepLinkURI: "   ", WebURL: "https://open.example.com/t/1"},
			ctx:        Context{OS: OSAndroid, InAppBrowser: InAppNone, IsMobile: true},
			wantReason: ReasonMissingDeepLink,
		},
		{
			name:       "desktop prefers web by default",
			cfg:        model.ReleaseConfig{DeepLinkURI: "app://track/1", WebURL: "https://open.example.com/t/1"},
			ctx:        Context{OS: OSDesktop, InAppBrowser: InAppNone, IsMobile: false},
			wantReason: ReasonDesktopPreferWeb,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildPlan(&tt.cfg, tt.ctx)

			if plan.Strategy != StrategyWebOnly {
				t.Fatalf("strategy = %q, want web-only", plan.Strategy)
			}
			if plan.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", plan.Reason, tt.wantReason)
			}
			if plan.DeepLinkDelayMs != 0 || plan.FallbackDelayMs != 0 || plan.SuccessSignalWindowMs != 0 {
				t.Errorf("web-only plan must have zero delays, got %+v", plan)
			}
		})
	}
}

func TestBuildPlan_DesktopOverride(t *testing.T) {
	cfg := model.ReleaseConfig{
		DeepLinkURI: "app://track/1",
		WebURL:      "https://open.example.com/t/1",
		Routing:     model.RoutingOverrides{PreferWebOnDesktop: boolPtr(false)},
	}
	ctx := Context{OS: OSDesktop, InAppBrowser: InAppNone, IsMobile: false}

	plan := BuildPlan(&cfg, ctx)
	if plan.Strategy != StrategyDeepLinkFirst {
		t.Fatalf("strategy = %q, want deep-link-first when desktop preference disabled", plan.Strategy)
	}
}

func TestBuildPlan_DeepLinkFirstDefaults(t *testing.T) {
	cfg := model.ReleaseConfig{
		DeepLinkURI: "app://track/1",
		WebURL:      "https://open.example.com/t/1",
	}

	tests := []struct {
		name             string
		ctx              Context
		wantDeepDelay    int
		wantFallback     int
		wantWindow       int
		wantReason       string
	}{
		{
			name:          "ios plain browser",
			ctx:           Context{OS: OSIOS, InAppBrowser: InAppNone, IsMobile: true},
			wantDeepDelay: 180,
			wantFallback:  1200,
			wantWindow:    2400,
			wantReason:    ReasonMobileBrowser,
		},
		{
			name:          "android plain browser",
			ctx:           Context{OS: OSAndroid, InAppBrowser: InAppNone, IsMobile: true},
			wantDeepDelay: 120,
			wantFallback:  900,
			wantWindow:    2200,
			wantReason:    ReasonMobileBrowser,
		},
		{
			name:          "android instagram in-app",
			ctx:           Context{OS: OSAndroid, InAppBrowser: InAppInstagram, IsMobile: true},
			wantDeepDelay: 120,
			wantFallback:  1320,
			wantWindow:    2520,
			wantReason:    "in-app-instagram",
		},
		{
			name:          "ios tiktok in-app",
			ctx:           Context{OS: OSIOS, InAppBrowser: InAppTikTok, IsMobile: true},
			wantDeepDelay: 180,
			wantFallback:  1620,
			wantWindow:    2820,
			wantReason:    "in-app-tiktok",
		},
		{
			name:          "unknown mobile os uses non-ios bases",
			ctx:           Context{OS: OSUnknown, InAppBrowser: InAppFacebook, IsMobile: true},
			wantDeepDelay: 120,
			wantFallback:  1320,
			wantWindow:    2520,
			wantReason:    "in-app-facebook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildPlan(&cfg, tt.ctx)

			if plan.Strategy != StrategyDeepLinkFirst {
				t.Fatalf("strategy = %q, want deep-link-first", plan.Strategy)
			}
			if plan.DeepLinkDelayMs != tt.wantDeepDelay {
				t.Errorf("deepLinkDelayMs = %d, want %d", plan.DeepLinkDelayMs, tt.wantDeepDelay)
			}
			if plan.FallbackDelayMs != tt.wantFallback {
				t.Errorf("fallbackDelayMs = %d, want %d", plan.FallbackDelayMs, tt.wantFallback)
			}
			if plan.SuccessSignalWindowMs != tt.wantWindow {
				t.Errorf("successSignalWindowMs = %d, want %d", plan.SuccessSignalWindowMs, tt.wantWindow)
			}
			if plan.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", plan.Reason, tt.wantReason)
			}
		})
	}
}

func TestBuildPlan_OverrideClamping(t *testing.T) {
	ctx := Context{OS: OSIOS, InAppBrowser: InAppNone, IsMobile: true}

	tests := []struct {
		name          string
		overrides     model.RoutingOverrides
		wantDeepDelay int
		wantFallback  int
		wantWindow    int
	}{
		{
			name: "overrides applied directly",
			overrides: model.RoutingOverrides{
				DeepLinkDelayMs:       intPtr(250),
				FallbackDelayMs:       intPtr(2000),
				SuccessSignalWindowMs: intPtr(5000),
			},
			wantDeepDelay: 250,
			wantFallback:  2000,
			wantWindow:    5000,
		},
		{
			name: "overrides clamped to max",
			overrides: model.RoutingOverrides{
				DeepLinkDelayMs:       intPtr(50000),
				FallbackDelayMs:       intPtr(99999),
				SuccessSignalWindowMs: intPtr(99999),
			},
			wantDeepDelay: MaxDelayMs,
			wantFallback:  MaxDelayMs,
			wantWindow:    MaxDelayMs,
		},
		{
			name: "fallback clamped to floor, window clamped above fallback",
			overrides: model.RoutingOverrides{
				FallbackDelayMs:       intPtr(10),
				SuccessSignalWindowMs: intPtr(10),
			},
			wantDeepDelay: 180,
			wantFallback:  300,
			wantWindow:    500,
		},
		{
			name: "negative deep link delay clamped to zero",
			overrides: model.RoutingOverrides{
				DeepLinkDelayMs: intPtr(-100),
			},
			wantDeepDelay: 0,
			wantFallback:  1200,
			wantWindow:    2400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := model.ReleaseConfig{
				DeepLinkURI: "app://track/1",
				WebURL:      "https://open.example.com/t/1",
				Routing:     tt.overrides,
			}

			plan := BuildPlan(&cfg, ctx)

			if plan.DeepLinkDelayMs != tt.wantDeepDelay {
				t.Errorf("deepLinkDelayMs = %d, want %d", plan.DeepLinkDelayMs, tt.wantDeepDelay)
			}
			if plan.FallbackDelayMs != tt.wantFallback {
				t.Errorf("fallbackDelayMs = %d, want %d", plan.FallbackDelayMs, tt.wantFallback)
			}
			if plan.SuccessSignalWindowMs != tt.wantWindow {
				t.Errorf("successSignalWindowMs = %d, want %d", plan.SuccessSignalWindowMs, tt.wantWindow)
			}
		})
	}
}

func TestBuildPlan_Invariants(t *testing.T) {
	// Every deep-link-first plan must satisfy window > fallback > 0.
	contexts := []Context{
		{OS: OSIOS, InAppBrowser: InAppNone, IsMobile: true},
		{OS: OSIOS, InAppBrowser: InAppInstagram, IsMobile: true},
		{OS: OSAndroid, InAppBrowser: InAppNone, IsMobile: true},
		{OS: OSAndroid, InAppBrowser: InAppOther, IsMobile: true},
		{OS: OSUnknown, InAppBrowser: InAppTikTok, IsMobile: true},
	}

	for _, ctx := range contexts {
		cfg := model.ReleaseConfig{DeepLinkURI: "app://x", WebURL: "https://x"}
		plan := BuildPlan(&cfg, ctx)

		if plan.Strategy != StrategyDeepLinkFirst {
			t.Fatalf("ctx %+v: strategy = %q", ctx, plan.Strategy)
		}
		if plan.FallbackDelayMs <= 0 {
			t.Errorf("ctx %+v: fallbackDelayMs = %d, want > 0", ctx, plan.FallbackDelayMs)
		}
		if plan.SuccessSignalWindowMs <= plan.FallbackDelayMs {
			t.Errorf("ctx %+v: window %d must exceed fallback %d",
				ctx, plan.SuccessSignalWindowMs, plan.FallbackDelayMs)
		}
	}
}

func TestBuildPlan_Deterministic(t *testing.T) {
	cfg := model.ReleaseConfig{DeepLinkURI: "app://x", WebURL: "https://x"}
	ctx := Context{OS: OSIOS, InAppBrowser: InAppInstagram, IsMobile: true}

	first := BuildPlan(&cfg, ctx)
	for i := 0; i < 10; i++ {
		if got := BuildPlan(&cfg, ctx); got != first {
			t.Fatalf("plan not deterministic: %+v vs %+v", got, first)
		}
	}
}
