package controllers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"confetti/internal/delivery/http/helpers"
	"confetti/internal/delivery/http/middleware"
	"confetti/internal/domain"
	"confetti/internal/stream"
)

// DefaultKeepAlive is the interval of keep-alive comments on idle streams.
const DefaultKeepAlive = 30 * time.Second

// SSE event names.
const (
	EventSessions       = "sessions"
	EventSessionsByDate = "sessions_by_date"
	EventBookmarks      = "bookmarks"
	EventError          = "error"
)

// StreamController serves live views as server-sent events. Every emission of the
// underlying subscription becomes one event; errors are sent as "error" events and
// the stream stays open.
type StreamController struct {
	Logger    *slog.Logger
	Repos     Repositories
	KeepAlive time.Duration
}

func NewStreamController(logger *slog.Logger, repos Repositories, keepAlive time.Duration) *StreamController {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &StreamController{Logger: logger, Repos: repos, KeepAlive: keepAlive}
}

// StreamSessions godoc
// @Summary Stream a conference's sessions
// @Description Server-sent events carrying the session list: the cached list first when there is one, then the server's, then again whenever it changes. With group=date each event carries the date groups instead.
// @Tags sessions
// @Produce text/event-stream
// @Param conference path string true "Conference identifier"
// @Param group query string false "Set to date for grouped events"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Router /conferences/{conference}/sessions/stream [get]
func (c *StreamController) StreamSessions(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group != "" && group != "date" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "group must be date")
		return
	}
	repo, err := c.Repos.Sessions(r.Context(), r.PathValue("conference"), identityFrom(r))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if group == "date" {
		serveEvents(c, w, r, EventSessionsByDate, repo.WatchSessionsByDate(r.Context()))
		return
	}
	serveEvents(c, w, r, EventSessions, repo.WatchSessions(r.Context()))
}

// StreamBookmarks godoc
// @Summary Stream the caller's bookmarks
// @Description Server-sent events carrying the authenticated user's bookmarks, re-sent on every change.
// @Tags bookmarks
// @Produce text/event-stream
// @Security BearerAuth
// @Param conference path string true "Conference identifier"
// @Success 200 {string} string "event stream"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /conferences/{conference}/bookmarks/stream [get]
func (c *StreamController) StreamBookmarks(w http.ResponseWriter, r *http.Request) {
	svc, err := c.Repos.Bookmarks(r.Context(), r.PathValue("conference"), identityFrom(r))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	serveEvents(c, w, r, EventBookmarks, svc.WatchBookmarks(r.Context()))
}

// serveEvents copies sub to w until the client disconnects or sub ends.
func serveEvents[T any](c *StreamController, w http.ResponseWriter, r *http.Request, name string, sub *stream.Subscription[T]) {
	defer sub.Close()
	flusher, ok := w.(http.Flusher)
	if !ok {
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(c.KeepAlive)
	defer ticker.Stop()

	logger := c.Logger.With("path", r.URL.Path, "request_id", middleware.RequestIDFromContext(r.Context()))
	seq := 0
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			seq++
			event, payload := name, any(ev.Value)
			if ev.Err != nil {
				logger.DebugContext(r.Context(), "stream error event", "err", ev.Err)
				event, payload = EventError, errorPayload(ev.Err)
			}
			if err := writeEvent(w, seq, event, payload); err != nil {
				logger.DebugContext(r.Context(), "stream write failed", "err", err)
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, id int, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}

// errorPayload describes err the way the JSON endpoints would.
func errorPayload(err error) helpers.APIError {
	code := helpers.ErrCodeInternalError
	switch {
	case domain.IsQueryError(err):
		code = helpers.ErrCodeUpstreamError
	case domain.IsTransportError(err):
		code = helpers.ErrCodeUpstreamUnavailable
	}
	return helpers.APIError{Code: code, Message: err.Error()}
}
