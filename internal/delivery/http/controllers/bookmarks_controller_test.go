package controllers

import (
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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookmarksMux(c *BookmarksController) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /conferences/{conference}/bookmarks", c.GetBookmarks)
	mux.HandleFunc("POST /conferences/{conference}/bookmarks", c.AddBookmark)
	mux.HandleFunc("PUT /conferences/{conference}/bookmarks/{sessionID}", c.PutBookmark)
	mux.HandleFunc("DELETE /conferences/{conference}/bookmarks/{sessionID}", c.RemoveBookmark)
	return mux
}

func signedIn(req *http.Request) *http.Request {
	return req.WithContext(middleware.SetUserID(req.Context(), "user-1", "tok"))
}

func TestBookmarksController(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		anonymous  bool
		serviceErr error
		start      []string
		wantStatus int
		wantCode   string
		wantIDs    []string
	}{
		{
			name:       "get bookmarks",
			method:     http.MethodGet,
			path:       "/conferences/kotlinconf2023/bookmarks",
			start:      []string{"s1"},
			wantStatus: http.StatusOK,
			wantIDs:    []string{"s1"},
		},
		{
			name:       "anonymous caller",
			method:     http.MethodGet,
			path:       "/conferences/kotlinconf2023/bookmarks",
			anonymous:  true,
			wantStatus: http.StatusUnauthorized,
			wantCode:   helpers.ErrCodeUnauthorized,
		},
		{
			name:       "add with body",
			method:     http.MethodPost,
			path:       "/conferences/kotlinconf2023/bookmarks",
			body:       `{"session_id":"s2"}`,
			start:      []string{"s1"},
			wantStatus: http.StatusOK,
			wantIDs:    []string{"s1", "s2"},
		},
		{
			name:       "add without session id",
			method:     http.MethodPost,
			path:       "/conferences/kotlinconf2023/bookmarks",
			body:       `{"session_id":"  "}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   helpers.ErrCodeBadRequest,
		},
		{
			name:       "put",
			method:     http.MethodPut,
			path:       "/conferences/kotlinconf2023/bookmarks/s3",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"s3"},
		},
		{
			name:       "delete",
			method:     http.MethodDelete,
			path:       "/conferences/kotlinconf2023/bookmarks/s1",
			start:      []string{"s1", "s2"},
			wantStatus: http.StatusOK,
			wantIDs:    []string{"s2"},
		},
		{
			name:       "upstream failure",
			method:     http.MethodPut,
			path:       "/conferences/kotlinconf2023/bookmarks/s3",
			serviceErr: &domain.TransportError{Operation: "AddBookmark", Err: errors.New("down")},
			wantStatus: http.StatusBadGateway,
			wantCode:   helpers.ErrCodeUpstreamUnavailable,
		},
		{
			name:       "rejected by server",
			method:     http.MethodDelete,
			path:       "/conferences/kotlinconf2023/bookmarks/s3",
			serviceErr: &domain.QueryError{Operation: "RemoveBookmark", Errors: []domain.GraphQLError{{Message: "unknown session"}}},
			wantStatus: http.StatusBadGateway,
			wantCode:   helpers.ErrCodeUpstreamError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeBookmarkService{ids: tt.start, err: tt.serviceErr}
			c := NewBookmarksController(testLogger, &fakeRepos{bookmarks: svc}, time.Second)
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if !tt.anonymous {
				req = signedIn(req)
			}
			rr := httptest.NewRecorder()

			bookmarksMux(c).ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				var env helpers.APIResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.wantCode, env.Error.Code)
				return
			}
			var env BookmarksSuccessResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
			assert.Equal(t, tt.wantIDs, env.Data.SessionIDs)
			assert.Nil(t, env.Error)
		})
	}
}
