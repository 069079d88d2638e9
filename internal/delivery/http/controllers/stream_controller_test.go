package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"confetti/internal/delivery/http/helpers"
	"confetti/internal/delivery/http/middleware"
	"confetti/internal/domain"
	"confetti/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	id    string
	event string
	data  string
}

// readEvents reads n events from an event stream, skipping comments.
func readEvents(t *testing.T, sc *bufio.Scanner, n int) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	for len(out) < n && sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.event != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			cur.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		}
	}
	require.Len(t, out, n, "stream ended early: %v", sc.Err())
	return out
}

func streamServer(t *testing.T, c *StreamController) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /conferences/{conference}/sessions/stream", c.StreamSessions)
	mux.HandleFunc("GET /conferences/{conference}/bookmarks/stream", func(w http.ResponseWriter, r *http.Request) {
		c.StreamBookmarks(w, r.WithContext(middleware.SetUserID(r.Context(), "user-1", "tok")))
	})
	srv := httptest.NewServer(middleware.LoggingMiddleware(testLogger, mux))
	t.Cleanup(srv.Close)
	return srv
}

func openStream(t *testing.T, url string) (*http.Response, *bufio.Scanner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp, bufio.NewScanner(resp.Body)
}

func TestStreamController_StreamSessions(t *testing.T) {
	sessions := testSessions()
	repo := &fakeSessionRepo{
		initial: []stream.Event[[]domain.Session]{valueEvent(sessions[:1])},
		feed:    make(chan stream.Event[[]domain.Session]),
	}
	srv := streamServer(t, NewStreamController(testLogger, &fakeRepos{sessions: repo}, time.Minute))

	resp, sc := openStream(t, srv.URL+"/conferences/kotlinconf2023/sessions/stream")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	first := readEvents(t, sc, 1)[0]
	assert.Equal(t, EventSessions, first.event)
	assert.Equal(t, "1", first.id)
	var got []domain.Session
	require.NoError(t, json.Unmarshal([]byte(first.data), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)

	// Errors do not end the stream.
	repo.feed <- stream.Event[[]domain.Session]{Err: &domain.TransportError{Operation: "GetSessions", Err: errors.New("offline")}}
	repo.feed <- valueEvent(sessions)

	events := readEvents(t, sc, 2)
	assert.Equal(t, EventError, events[0].event)
	var apiErr helpers.APIError
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &apiErr))
	assert.Equal(t, helpers.ErrCodeUpstreamUnavailable, apiErr.Code)
	assert.Equal(t, EventSessions, events[1].event)
	assert.Equal(t, "3", events[1].id)
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &got))
	assert.Len(t, got, 3)

	resp.Body.Close()
	assert.Eventually(t, func() bool { return repo.activeWatches() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamController_StreamSessionsByDate(t *testing.T) {
	repo := &fakeSessionRepo{initial: []stream.Event[[]domain.Session]{valueEvent(testSessions())}}
	srv := streamServer(t, NewStreamController(testLogger, &fakeRepos{sessions: repo}, time.Minute))

	_, sc := openStream(t, srv.URL+"/conferences/kotlinconf2023/sessions/stream?group=date")
	ev := readEvents(t, sc, 1)[0]
	assert.Equal(t, EventSessionsByDate, ev.event)
	var grouped domain.SessionsByDate
	require.NoError(t, json.Unmarshal([]byte(ev.data), &grouped))
	require.Len(t, grouped, 2)
	assert.Equal(t, "2023-04-12", grouped[0].Date.String())
	assert.Len(t, grouped[0].Sessions, 2)
}

func TestStreamController_BadGroup(t *testing.T) {
	c := NewStreamController(testLogger, &fakeRepos{sessions: &fakeSessionRepo{}}, time.Minute)
	rr := httptest.NewRecorder()
	c.StreamSessions(rr, httptest.NewRequest(http.MethodGet, "/conferences/x/sessions/stream?group=room", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStreamController_KeepAlive(t *testing.T) {
	repo := &fakeSessionRepo{}
	srv := streamServer(t, NewStreamController(testLogger, &fakeRepos{sessions: repo}, 20*time.Millisecond))

	_, sc := openStream(t, srv.URL+"/conferences/kotlinconf2023/sessions/stream")
	var comments []string
	for len(comments) < 2 && sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, ":") {
			comments = append(comments, line)
		}
	}
	assert.Equal(t, []string{": connected", ": keepalive"}, comments)
}

func TestStreamController_StreamBookmarks(t *testing.T) {
	svc := &fakeBookmarkService{ids: []string{"s1"}}
	srv := streamServer(t, NewStreamController(testLogger, &fakeRepos{bookmarks: svc}, time.Minute))

	_, sc := openStream(t, srv.URL+"/conferences/kotlinconf2023/bookmarks/stream")
	ev := readEvents(t, sc, 1)[0]
	assert.Equal(t, EventBookmarks, ev.event)
	var b domain.Bookmarks
	require.NoError(t, json.Unmarshal([]byte(ev.data), &b))
	assert.Equal(t, []string{"s1"}, b.SessionIDs)
}

func TestStreamController_BookmarksRequireUser(t *testing.T) {
	c := NewStreamController(testLogger, &fakeRepos{bookmarks: &fakeBookmarkService{}}, time.Minute)
	rr := httptest.NewRecorder()
	c.StreamBookmarks(rr, httptest.NewRequest(http.MethodGet, "/conferences/x/bookmarks/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
