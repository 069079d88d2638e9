package controllers

import (
	"context"
	"net/http"
	"time"

	"confetti/internal/app"
	"confetti/internal/delivery/http/middleware"
	"confetti/internal/domain"
)

// DefaultWaitTimeout bounds how long a one-shot read waits for the first emission.
const DefaultWaitTimeout = 15 * time.Second

// Repositories hands out the repositories of a conference for the calling identity.
// *app.Provider implements it.
type Repositories interface {
	Sessions(ctx context.Context, conference string, id app.Identity) (domain.SessionRepository, error)
	Bookmarks(ctx context.Context, conference string, id app.Identity) (domain.BookmarkService, error)
}

// identityFrom returns the identity auth middleware attached to r, or the anonymous identity.
func identityFrom(r *http.Request) app.Identity {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return app.Identity{UserID: userID, Token: middleware.TokenFromContext(r.Context())}
}

func waitTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultWaitTimeout
	}
	return d
}
