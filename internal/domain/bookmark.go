package domain

import (
	"context"

	"confetti/internal/stream"
)

// Bookmarks is the signed-in user's set of bookmarked session IDs for a conference.
type Bookmarks struct {
	ID         string   `json:"id" yaml:"id"`
	SessionIDs []string `json:"sessionIds" yaml:"session_ids"`
}

// Contains reports whether sessionID is bookmarked.
func (b Bookmarks) Contains(sessionID string) bool {
	for _, id := range b.SessionIDs {
		if id == sessionID {
			return true
		}
	}
	return false
}

// BookmarkService writes bookmarks through the same cache the session views observe.
type BookmarkService interface {
	WatchBookmarks(ctx context.Context) *stream.Subscription[Bookmarks]
	AddBookmark(ctx context.Context, sessionID string) (Bookmarks, error)
	RemoveBookmark(ctx context.Context, sessionID string) (Bookmarks, error)
}
