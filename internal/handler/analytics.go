package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tracklink/tracklink/internal/analytics"
	"github.com/tracklink/tracklink/internal/metrics"
)

// AnalyticsHandler handles analytics API requests.
type AnalyticsHandler struct {
	svc     *analytics.Service
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(svc *analytics.Service, recorder metrics.Recorder, logger *slog.Logger) *AnalyticsHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AnalyticsHandler{
		svc:     svc,
		metrics: recorder,
		logger:  logger.With("component", "handler.analytics"),
		now:     time.Now,
	}
}

// Summary handles GET /api/v1/analytics/summary.
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	scope, rng, ok := h.resolveQuery(w, r)
	if !ok {
		return
	}

	started := h.now()
	report, err := h.svc.Summary(r.Context(), scope, rng)
	if err != nil {
		h.serveError(w, "summary", err)
		return
	}
	h.observe("summary", started, 1)

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"scope":   scope,
		"range":   rng,
		"totals":  report.Totals,
		"rates":   report.Rates,
		"windows": report.Windows,
	})
}

// Timeseries handles GET /api/v1/analytics/timeseries.
func (h *AnalyticsHandler) Timeseries(w http.ResponseWriter, r *http.Request) {
	scope, rng, ok := h.resolveQuery(w, r)
	if !ok {
		return
	}

	started := h.now()
	report, err := h.svc.Timeseries(r.Context(), scope, rng)
	if err != nil {
		h.serveError(w, "timeseries", err)
		return
	}
	h.observe("timeseries", started, len(report.Series))

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"scope":     scope,
		"range":     rng,
		"series":    report.Series,
		"truncated": report.Truncated,
	})
}

// Campaigns handles GET /api/v1/analytics/campaigns.
func (h *AnalyticsHandler) Campaigns(w http.ResponseWriter, r *http.Request) {
	scope, rng, ok := h.resolveQuery(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r)

	started := h.now()
	report, err := h.svc.Campaigns(r.Context(), scope, rng, limit)
	if err != nil {
		h.serveError(w, "campaigns", err)
		return
	}
	h.observe("campaigns", started, len(report.Rows))

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"scope":     scope,
		"range":     rng,
		"rows":      report.Rows,
		"truncated": report.Truncated,
	})
}

// RouteHealth handles GET /api/v1/analytics/route-health.
func (h *AnalyticsHandler) RouteHealth(w http.ResponseWriter, r *http.Request) {
	scope, rng, ok := h.resolveQuery(w, r)
	if !ok {
		return
	}

	started := h.now()
	report, err := h.svc.RouteHealth(r.Context(), scope, rng)
	if err != nil {
		h.serveError(w, "route_health", err)
		return
	}
	h.observe("route_health", started, len(report.Rows))

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"scope":     scope,
		"range":     rng,
		"rows":      report.Rows,
		"truncated": report.Truncated,
	})
}

// HighIntent handles GET /api/v1/analytics/high-intent.
func (h *AnalyticsHandler) HighIntent(w http.ResponseWriter, r *http.Request) {
	scope, rng, ok := h.resolveQuery(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r)

	started := h.now()
	report, err := h.svc.HighIntent(r.Context(), scope, rng, limit)
	if err != nil {
		h.serveError(w, "high_intent", err)
		return
	}
	h.observe("high_intent", started, len(report.Rows))

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"scope":     scope,
		"range":     rng,
		"rows":      report.Rows,
		"truncated": report.Truncated,
	})
}

// resolveQuery parses scope and range. A scope with neither artist nor song
// selected short-circuits with an explicit empty response so dashboards can
// render a neutral state instead of an error.
func (h *AnalyticsHandler) resolveQuery(w http.ResponseWriter, r *http.Request) (analytics.Scope, analytics.Range, bool) {
	query := r.URL.Query()

	scope := analytics.ParseScope(query)
	if !scope.Ready() {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":     true,
			"empty":  true,
			"reason": analytics.ReasonScopeNotSelected,
		})
		return analytics.Scope{}, analytics.Range{}, false
	}

	return scope, analytics.ResolveRange(query, h.now()), true
}

func (h *AnalyticsHandler) serveError(w http.ResponseWriter, view string, err error) {
	h.logger.Error("aggregation failed", "view", view, "error", err)
	writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch analytics")
}

func (h *AnalyticsHandler) observe(view string, started time.Time, rows int) {
	h.metrics.ObserveAggregationDuration(view, h.now().Sub(started))
	h.metrics.ObserveAggregationRows(view, rows)
}

func parseLimit(r *http.Request) int {
	raw, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return analytics.ClampLimit(raw)
}
