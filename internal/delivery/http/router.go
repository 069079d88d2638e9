package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"confetti/internal/delivery/http/controllers"
	h "confetti/internal/delivery/http/helpers"
	"confetti/internal/delivery/http/middleware"
	"confetti/internal/domain"
)

// Controllers groups the handlers NewRouter mounts.
type Controllers struct {
	Sessions  *controllers.SessionsController
	Bookmarks *controllers.BookmarksController
	Streams   *controllers.StreamController
}

// NewRouter initializes the HTTP router with all application routes. Session views are
// open to anonymous callers; bookmark routes require a bearer token checked by verifier.
func NewRouter(logger *slog.Logger, c Controllers, verifier domain.TokenVerifier, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()
	optional := middleware.OptionalAuth(verifier, logger)
	required := middleware.RequireAuth(verifier, logger)

	// Sessions
	mux.HandleFunc("GET /conferences/{conference}/sessions", optional(c.Sessions.ListSessions))
	mux.HandleFunc("GET /conferences/{conference}/sessions/by-date", optional(c.Sessions.SessionsByDate))
	mux.HandleFunc("GET /conferences/{conference}/sessions/stream", optional(c.Streams.StreamSessions))
	mux.HandleFunc("GET /conferences/{conference}/sessions/{sessionID}", optional(c.Sessions.GetSession))
	mux.HandleFunc("POST /conferences/{conference}/refresh", optional(c.Sessions.Refresh))

	// Bookmarks
	mux.HandleFunc("GET /conferences/{conference}/bookmarks", required(c.Bookmarks.GetBookmarks))
	mux.HandleFunc("POST /conferences/{conference}/bookmarks", required(c.Bookmarks.AddBookmark))
	mux.HandleFunc("GET /conferences/{conference}/bookmarks/stream", required(c.Streams.StreamBookmarks))
	mux.HandleFunc("PUT /conferences/{conference}/bookmarks/{sessionID}", required(c.Bookmarks.PutBookmark))
	mux.HandleFunc("DELETE /conferences/{conference}/bookmarks/{sessionID}", required(c.Bookmarks.RemoveBookmark))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		h.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return middleware.LoggingMiddleware(logger, middleware.CORS(corsOrigins, mux))
}
