package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"confetti/internal/delivery/http/helpers"
	"confetti/internal/domain"
	"confetti/internal/stream"
)

// AddBookmarkRequest is the request body for POST /conferences/{conference}/bookmarks.
type AddBookmarkRequest struct {
	SessionID string `json:"session_id"`
}

// Validate implements Validator.
func (a AddBookmarkRequest) Validate() []string {
	if strings.TrimSpace(a.SessionID) == "" {
		return []string{"session_id is required"}
	}
	return nil
}

// BookmarksSuccessResponse is the success response envelope of the bookmark endpoints (200).
type BookmarksSuccessResponse struct {
	Data  domain.Bookmarks  `json:"data"`
	Error *helpers.APIError `json:"error"`
}

type BookmarksController struct {
	Logger  *slog.Logger
	Repos   Repositories
	Timeout time.Duration
}

func NewBookmarksController(logger *slog.Logger, repos Repositories, timeout time.Duration) *BookmarksController {
	return &BookmarksController{
		Logger:  logger,
		Repos:   repos,
		Timeout: waitTimeout(timeout),
	}
}

// GetBookmarks godoc
// @Summary Get the caller's bookmarks
// @Description Returns the IDs of the sessions the authenticated user bookmarked for the conference.
// @Tags bookmarks
// @Produce json
// @Security BearerAuth
// @Param conference path string true "Conference identifier"
// @Success 200 {object} controllers.BookmarksSuccessResponse "data contains the bookmarks"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 502 {object} helpers.APIResponse "error.code: upstream_unavailable or upstream_error"
// @Router /conferences/{conference}/bookmarks [get]
func (c *BookmarksController) GetBookmarks(w http.ResponseWriter, r *http.Request) {
	svc, ok := c.service(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), c.Timeout)
	defer cancel()
	bookmarks, err := stream.First(ctx, svc.WatchBookmarks(ctx))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, bookmarks)
}

// AddBookmark godoc
// @Summary Bookmark a session
// @Description Adds the session to the authenticated user's bookmarks. Open bookmark streams receive the new set.
// @Tags bookmarks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param conference path string true "Conference identifier"
// @Param body body AddBookmarkRequest true "Session to bookmark"
// @Success 200 {object} controllers.BookmarksSuccessResponse "data contains the updated bookmarks"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 502 {object} helpers.APIResponse "error.code: upstream_unavailable or upstream_error"
// @Router /conferences/{conference}/bookmarks [post]
func (c *BookmarksController) AddBookmark(w http.ResponseWriter, r *http.Request) {
	var req AddBookmarkRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	c.update(w, r, req.SessionID, domain.BookmarkService.AddBookmark)
}

// PutBookmark godoc
// @Summary Bookmark a session
// @Description Adds the session in the path to the authenticated user's bookmarks. Idempotent.
// @Tags bookmarks
// @Produce json
// @Security BearerAuth
// @Param conference path string true "Conference identifier"
// @Param sessionID path string true "Session ID"
// @Success 200 {object} controllers.BookmarksSuccessResponse "data contains the updated bookmarks"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 502 {object} helpers.APIResponse "error.code: upstream_unavailable or upstream_error"
// @Router /conferences/{conference}/bookmarks/{sessionID} [put]
func (c *BookmarksController) PutBookmark(w http.ResponseWriter, r *http.Request) {
	c.update(w, r, r.PathValue("sessionID"), domain.BookmarkService.AddBookmark)
}

// RemoveBookmark godoc
// @Summary Remove a bookmark
// @Description Removes the session in the path from the authenticated user's bookmarks.
// @Tags bookmarks
// @Produce json
// @Security BearerAuth
// @Param conference path string true "Conference identifier"
// @Param sessionID path string true "Session ID"
// @Success 200 {object} controllers.BookmarksSuccessResponse "data contains the updated bookmarks"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 502 {object} helpers.APIResponse "error.code: upstream_unavailable or upstream_error"
// @Router /conferences/{conference}/bookmarks/{sessionID} [delete]
func (c *BookmarksController) RemoveBookmark(w http.ResponseWriter, r *http.Request) {
	c.update(w, r, r.PathValue("sessionID"), domain.BookmarkService.RemoveBookmark)
}

type bookmarkMutation func(svc domain.BookmarkService, ctx context.Context, sessionID string) (domain.Bookmarks, error)

func (c *BookmarksController) update(w http.ResponseWriter, r *http.Request, sessionID string, mutate bookmarkMutation) {
	svc, ok := c.service(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), c.Timeout)
	defer cancel()
	bookmarks, err := mutate(svc, ctx, sessionID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, bookmarks)
}

func (c *BookmarksController) service(w http.ResponseWriter, r *http.Request) (domain.BookmarkService, bool) {
	svc, err := c.Repos.Bookmarks(r.Context(), r.PathValue("conference"), identityFrom(r))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return nil, false
	}
	return svc, true
}
