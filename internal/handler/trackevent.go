package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tracklink/tracklink/internal/ingest"
	"github.com/tracklink/tracklink/internal/model"
)

// trackEventBody is the client-reported part of a track-event submission.
// Everything else (user agent, IP, Meta cookies) comes off the request.
type trackEventBody struct {
	EventName         string             `json:"eventName"`
	EventID           string             `json:"eventId"`
	TestEventCode     string             `json:"testEventCode"`
	EventSourceURL    string             `json:"eventSourceUrl"`
	TrackingAuthToken string             `json:"trackingAuthToken"`
	RequestPath       string             `json:"requestPath"`
	ForwardToFacebook bool               `json:"forwardToFacebook"`
	Attribution       map[string]string  `json:"attribution"`
	Context           model.EventContext `json:"context"`
	Route             model.EventRoute   `json:"route"`
	Identity          model.Identity     `json:"identity"`
}

// TrackEventHandler accepts landing-page funnel events.
type TrackEventHandler struct {
	svc    *ingest.Service
	logger *slog.Logger
}

// NewTrackEventHandler creates a new TrackEventHandler.
func NewTrackEventHandler(svc *ingest.Service, logger *slog.Logger) *TrackEventHandler {
	return &TrackEventHandler{
		svc:    svc,
		logger: logger.With("component", "handler.trackevent"),
	}
}

// Track handles POST /track-event.
//
// The endpoint always answers quickly: the ads forward happens in the same
// request but its failures never reach the client, who only needs the log id.
func (h *TrackEventHandler) Track(w http.ResponseWriter, r *http.Request) {
	var body trackEventBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	req := ingest.Request{
		EventName:         body.EventName,
		EventID:           body.EventID,
		TestEventCode:     body.TestEventCode,
		EventSourceURL:    body.EventSourceURL,
		TrackingAuthToken: body.TrackingAuthToken,
		RequestPath:       body.RequestPath,
		ForwardToFacebook: body.ForwardToFacebook,
		Attribution:       body.Attribution,
		Context:           body.Context,
		Route:             body.Route,
		Identity:          body.Identity,

		UserAgent: r.UserAgent(),
		ClientIP:  getClientIP(r),
		FBP:       cookieValue(r, "_fbp"),
		FBC:       cookieValue(r, "_fbc"),
		FBCLID:    body.Attribution["fbclid"],
	}
	if req.EventSourceURL == "" {
		req.EventSourceURL = r.Referer()
	}

	result, err := h.svc.Track(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrMissingEventName):
			writeErrorJSON(w, http.StatusBadRequest, "MISSING_EVENT_NAME", "Event name is required")
		case errors.Is(err, ingest.ErrUnknownEventName):
			writeErrorJSON(w, http.StatusBadRequest, "UNKNOWN_EVENT_NAME", "Unknown event name")
		case errors.Is(err, ingest.ErrInvalidToken):
			writeErrorJSON(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid tracking token")
		default:
			h.logger.Error("track event failed", "event_name", body.EventName, "error", err)
			writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"eventLogId": result.EventLogID,
	})
}

// getClientIP extracts the real client IP, accounting for proxies.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the chain
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
