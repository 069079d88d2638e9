package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"confetti/internal/delivery/http/helpers"
	"confetti/internal/delivery/http/middleware"
	"confetti/internal/domain"
	"confetti/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveSessions(c *SessionsController, pattern string, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, handler)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestSessionsController_ListSessions(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		initial    []stream.Event[[]domain.Session]
		reposErr   error
		wantStatus int
		wantCode   string
		wantIDs    []string
		wantTotal  int
	}{
		{
			name:       "whole list",
			initial:    []stream.Event[[]domain.Session]{valueEvent(testSessions())},
			wantStatus: http.StatusOK,
			wantIDs:    []string{"s1", "s2", "s3"},
			wantTotal:  3,
		},
		{
			name:       "second page",
			query:      "?page=2&page_size=2",
			initial:    []stream.Event[[]domain.Session]{valueEvent(testSessions())},
			wantStatus: http.StatusOK,
			wantIDs:    []string{"s3"},
			wantTotal:  3,
		},
		{
			name:       "page without size uses the default size",
			query:      "?page=2",
			initial:    []stream.Event[[]domain.Session]{valueEvent(testSessions())},
			wantStatus: http.StatusOK,
			wantIDs:    []string{},
			wantTotal:  3,
		},
		{
			name:       "empty conference",
			initial:    []stream.Event[[]domain.Session]{valueEvent([]domain.Session{})},
			wantStatus: http.StatusOK,
			wantIDs:    []string{},
		},
		{
			name: "upstream unreachable",
			initial: []stream.Event[[]domain.Session]{{
				Err: &domain.TransportError{Operation: "GetSessions", Err: errors.New("connection refused")},
			}},
			wantStatus: http.StatusBadGateway,
			wantCode:   helpers.ErrCodeUpstreamUnavailable,
		},
		{
			name:       "graphql errors",
			initial:    []stream.Event[[]domain.Session]{{Err: &domain.QueryError{Operation: "GetSessions"}}},
			wantStatus: http.StatusBadGateway,
			wantCode:   helpers.ErrCodeUpstreamError,
		},
		{
			name:       "invalid conference",
			reposErr:   domain.ErrInvalidInput,
			wantStatus: http.StatusBadRequest,
			wantCode:   helpers.ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := &fakeRepos{sessions: &fakeSessionRepo{initial: tt.initial}, err: tt.reposErr}
			c := NewSessionsController(testLogger, repos, time.Second)
			req := httptest.NewRequest(http.MethodGet, "/conferences/kotlinconf2023/sessions"+tt.query, nil)

			rr := serveSessions(c, "GET /conferences/{conference}/sessions", c.ListSessions, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				var body helpers.APIResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				require.NotNil(t, body.Error)
				assert.Equal(t, tt.wantCode, body.Error.Code)
				return
			}
			var body ListSessionsSuccessResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			ids := make([]string, 0, len(body.Data))
			for _, s := range body.Data {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			require.NotNil(t, body.Meta)
			assert.Equal(t, tt.wantTotal, body.Meta.Total)
			assert.Equal(t, "kotlinconf2023", repos.lastConf)
		})
	}
}

func TestSessionsController_ListSessions_Timeout(t *testing.T) {
	repos := &fakeRepos{sessions: &fakeSessionRepo{}}
	c := NewSessionsController(testLogger, repos, 20*time.Millisecond)
	req := httptest.NewRequest(http.MethodGet, "/conferences/kotlinconf2023/sessions", nil)

	rr := serveSessions(c, "GET /conferences/{conference}/sessions", c.ListSessions, req)

	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
	assert.Eventually(t, func() bool { return repos.sessions.activeWatches() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSessionsController_ListSessions_RefreshFirst(t *testing.T) {
	repo := &fakeSessionRepo{initial: []stream.Event[[]domain.Session]{valueEvent(testSessions())}}
	c := NewSessionsController(testLogger, &fakeRepos{sessions: repo}, time.Second)

	rr := serveSessions(c, "GET /conferences/{conference}/sessions", c.ListSessions,
		httptest.NewRequest(http.MethodGet, "/conferences/kotlinconf2023/sessions?refresh=true", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, repo.refreshed)

	repo.refreshErr = &domain.TransportError{Operation: "GetSessions", Err: errors.New("down")}
	rr = serveSessions(c, "GET /conferences/{conference}/sessions", c.ListSessions,
		httptest.NewRequest(http.MethodGet, "/conferences/kotlinconf2023/sessions?refresh=true", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestSessionsController_ForwardsIdentity(t *testing.T) {
	repos := &fakeRepos{sessions: &fakeSessionRepo{initial: []stream.Event[[]domain.Session]{valueEvent(testSessions())}}}
	c := NewSessionsController(testLogger, repos, time.Second)
	req := httptest.NewRequest(http.MethodGet, "/conferences/droidconlondon/sessions", nil)
	req = req.WithContext(middleware.SetUserID(req.Context(), "user-1", "tok"))

	rr := serveSessions(c, "GET /conferences/{conference}/sessions", c.ListSessions, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "droidconlondon", repos.lastConf)
	assert.Equal(t, "user-1", repos.lastIdentity.UserID)
	assert.Equal(t, "tok", repos.lastIdentity.Token)
}

func TestSessionsController_GetSession(t *testing.T) {
	tests := []struct {
		name       string
		sessionID  string
		wantStatus int
		wantTitle  string
	}{
		{"found", "s2", http.StatusOK, "Coroutines"},
		{"unknown", "nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := &fakeRepos{sessions: &fakeSessionRepo{initial: []stream.Event[[]domain.Session]{valueEvent(testSessions())}}}
			c := NewSessionsController(testLogger, repos, time.Second)
			req := httptest.NewRequest(http.MethodGet, "/conferences/kotlinconf2023/sessions/"+tt.sessionID, nil)

			rr := serveSessions(c, "GET /conferences/{conference}/sessions/{sessionID}", c.GetSession, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				var body GetSessionSuccessResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, tt.wantTitle, body.Data.Title)
			}
		})
	}
}

func TestSessionsController_SessionsByDate(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantDates  []string
		wantCounts []int
	}{
		{"all dates in first-seen order", "", http.StatusOK, []string{"2023-04-12", "2023-04-13"}, []int{2, 1}},
		{"one date", "?date=2023-04-13", http.StatusOK, []string{"2023-04-13"}, []int{1}},
		{"date without sessions", "?date=2023-05-01", http.StatusOK, []string{}, []int{}},
		{"malformed date", "?date=12/04/2023", http.StatusBadRequest, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := &fakeRepos{sessions: &fakeSessionRepo{initial: []stream.Event[[]domain.Session]{valueEvent(testSessions())}}}
			c := NewSessionsController(testLogger, repos, time.Second)
			req := httptest.NewRequest(http.MethodGet, "/conferences/kotlinconf2023/sessions/by-date"+tt.query, nil)

			rr := serveSessions(c, "GET /conferences/{conference}/sessions/by-date", c.SessionsByDate, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var body SessionsByDateSuccessResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			dates := []string{}
			counts := []int{}
			for _, g := range body.Data {
				dates = append(dates, g.Date.String())
				counts = append(counts, len(g.Sessions))
			}
			assert.Equal(t, tt.wantDates, dates)
			assert.Equal(t, tt.wantCounts, counts)
		})
	}
}

func TestSessionsController_Refresh(t *testing.T) {
	tests := []struct {
		name       string
		refreshErr error
		wantStatus int
	}{
		{"refreshed", nil, http.StatusNoContent},
		{"upstream down", &domain.TransportError{Operation: "GetSessions", Err: errors.New("down")}, http.StatusBadGateway},
		{"graphql errors", &domain.QueryError{Operation: "GetSessions"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeSessionRepo{refreshErr: tt.refreshErr}
			c := NewSessionsController(testLogger, &fakeRepos{sessions: repo}, time.Second)
			req := httptest.NewRequest(http.MethodPost, "/conferences/kotlinconf2023/refresh", nil)

			rr := serveSessions(c, "POST /conferences/{conference}/refresh", c.Refresh, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, 1, repo.refreshed)
		})
	}
}
