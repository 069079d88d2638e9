package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"confetti/internal/delivery/http/helpers"
	"confetti/internal/domain"
	"confetti/internal/stream"
)

// ListSessionsSuccessResponse is the success response envelope for GET /conferences/{conference}/sessions (200).
type ListSessionsSuccessResponse struct {
	Data  []domain.Session        `json:"data"`
	Meta  *helpers.PaginationMeta `json:"meta"`
	Error *helpers.APIError       `json:"error"`
}

// SessionsByDateSuccessResponse is the success response envelope for GET /conferences/{conference}/sessions/by-date (200).
type SessionsByDateSuccessResponse struct {
	Data  domain.SessionsByDate `json:"data"`
	Error *helpers.APIError     `json:"error"`
}

// GetSessionSuccessResponse is the success response envelope for GET /conferences/{conference}/sessions/{sessionID} (200).
type GetSessionSuccessResponse struct {
	Data  domain.Session    `json:"data"`
	Error *helpers.APIError `json:"error"`
}

type SessionsController struct {
	Logger  *slog.Logger
	Repos   Repositories
	Timeout time.Duration
}

func NewSessionsController(logger *slog.Logger, repos Repositories, timeout time.Duration) *SessionsController {
	return &SessionsController{
		Logger:  logger,
		Repos:   repos,
		Timeout: waitTimeout(timeout),
	}
}

// ListSessions godoc
// @Summary List the sessions of a conference
// @Description Returns the current session list, from the cache when it holds one and from the GraphQL server otherwise. With refresh=true the list is re-fetched first. Without page_size the whole list is returned.
// @Tags sessions
// @Produce json
// @Param conference path string true "Conference identifier"
// @Param refresh query bool false "Re-fetch from the server before answering"
// @Param page query int false "Page number (1-based)"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} controllers.ListSessionsSuccessResponse "data contains the sessions, meta the pagination"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 502 {object} helpers.APIResponse "error.code: upstream_unavailable or upstream_error"
// @Failure 504 {object} helpers.APIResponse "error.code: timeout"
// @Router /conferences/{conference}/sessions [get]
func (c *SessionsController) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, ok := c.currentSessions(w, r)
	if !ok {
		return
	}
	p := helpers.ParsePagination(r)
	helpers.WriteJSONPage(w, domain.Paginate(sessions, p), helpers.NewPaginationMeta(p, len(sessions)))
}

// GetSession godoc
// @Summary Get one session
// @Description Returns the session with the given ID from the conference's current session list.
// @Tags sessions
// @Produce json
// @Param conference path string true "Conference identifier"
// @Param sessionID path string true "Session ID"
// @Success 200 {object} controllers.GetSessionSuccessResponse "data contains the session"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 502 {object} helpers.APIResponse "error.code: upstream_unavailable or upstream_error"
// @Router /conferences/{conference}/sessions/{sessionID} [get]
func (c *SessionsController) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing sessionID")
		return
	}
	sessions, ok := c.currentSessions(w, r)
	if !ok {
		return
	}
	for _, s := range sessions {
		if s.ID == sessionID {
			helpers.WriteJSONSuccess(w, http.StatusOK, s)
			return
		}
	}
	helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "session not found")
}

// SessionsByDate godoc
// @Summary List sessions grouped by start date
// @Description Returns the sessions grouped by the calendar date they start on, in first-seen date order. With date set only that date's group is returned.
// @Tags sessions
// @Produce json
// @Param conference path string true "Conference identifier"
// @Param date query string false "Only this date (YYYY-MM-DD)"
// @Success 200 {object} controllers.SessionsByDateSuccessResponse "data contains the date groups"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 502 {object} helpers.APIResponse "error.code: upstream_unavailable or upstream_error"
// @Router /conferences/{conference}/sessions/by-date [get]
func (c *SessionsController) SessionsByDate(w http.ResponseWriter, r *http.Request) {
	var only *domain.Date
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
		only = &d
	}
	repo, ok := c.repository(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), c.Timeout)
	defer cancel()
	if !c.refreshIfAsked(ctx, w, r, repo) {
		return
	}
	grouped, err := stream.First(ctx, repo.WatchSessionsByDate(ctx))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if only != nil {
		filtered := domain.SessionsByDate{}
		if sessions := grouped.On(*only); sessions != nil {
			filtered = append(filtered, domain.DateGroup{Date: *only, Sessions: sessions})
		}
		grouped = filtered
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, grouped)
}

// Refresh godoc
// @Summary Refresh a conference's sessions
// @Description Re-fetches the session list from the GraphQL server and writes it through the cache. Open streams of the conference receive the new list.
// @Tags sessions
// @Param conference path string true "Conference identifier"
// @Success 204 "refreshed"
// @Failure 502 {object} helpers.APIResponse "error.code: upstream_unavailable or upstream_error"
// @Failure 504 {object} helpers.APIResponse "error.code: timeout"
// @Router /conferences/{conference}/refresh [post]
func (c *SessionsController) Refresh(w http.ResponseWriter, r *http.Request) {
	repo, ok := c.repository(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), c.Timeout)
	defer cancel()
	if err := repo.Refresh(ctx); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *SessionsController) repository(w http.ResponseWriter, r *http.Request) (domain.SessionRepository, bool) {
	repo, err := c.Repos.Sessions(r.Context(), r.PathValue("conference"), identityFrom(r))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return nil, false
	}
	return repo, true
}

// currentSessions answers with the first emission of the session list.
func (c *SessionsController) currentSessions(w http.ResponseWriter, r *http.Request) ([]domain.Session, bool) {
	repo, ok := c.repository(w, r)
	if !ok {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), c.Timeout)
	defer cancel()
	if !c.refreshIfAsked(ctx, w, r, repo) {
		return nil, false
	}
	sessions, err := stream.First(ctx, repo.WatchSessions(ctx))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return nil, false
	}
	return sessions, true
}

func (c *SessionsController) refreshIfAsked(ctx context.Context, w http.ResponseWriter, r *http.Request, repo domain.SessionRepository) bool {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if !refresh {
		return true
	}
	if err := repo.Refresh(ctx); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return false
	}
	return true
}
