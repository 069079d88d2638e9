package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"confetti/internal/domain"
	"confetti/internal/stream"
)

type bookmarkService struct {
	watcher domain.QueryWatcher
	logger  *slog.Logger
}

// NewBookmarkService returns the bookmark service of one signed-in user. Mutations go
// through watcher, so every watch on the same cache sees them.
func NewBookmarkService(watcher domain.QueryWatcher, logger *slog.Logger) domain.BookmarkService {
	if logger == nil {
		logger = slog.Default()
	}
	return &bookmarkService{watcher: watcher, logger: logger}
}

func (s *bookmarkService) WatchBookmarks(ctx context.Context) *stream.Subscription[domain.Bookmarks] {
	responses := s.watcher.Watch(ctx, domain.GetBookmarksOperation(), domain.FetchCacheAndNetwork)
	return stream.Map(responses, func(resp *domain.Response) (domain.Bookmarks, error) {
		return decodeBookmarks(resp, "bookmarks")
	})
}

func (s *bookmarkService) AddBookmark(ctx context.Context, sessionID string) (domain.Bookmarks, error) {
	return s.mutate(ctx, domain.AddBookmarkOperation, "addBookmark", sessionID)
}

func (s *bookmarkService) RemoveBookmark(ctx context.Context, sessionID string) (domain.Bookmarks, error) {
	return s.mutate(ctx, domain.RemoveBookmarkOperation, "removeBookmark", sessionID)
}

func (s *bookmarkService) mutate(ctx context.Context, build func(string) domain.Operation, field, sessionID string) (domain.Bookmarks, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Bookmarks{}, fmt.Errorf("%w: session id is required", domain.ErrInvalidInput)
	}
	resp, err := s.watcher.Mutate(ctx, build(sessionID))
	if err != nil {
		return domain.Bookmarks{}, fmt.Errorf("%s %s: %w", field, sessionID, err)
	}
	b, err := decodeBookmarks(resp, field)
	if err != nil {
		return domain.Bookmarks{}, err
	}
	s.logger.InfoContext(ctx, "bookmarks updated", "mutation", field, "session_id", sessionID, "count", len(b.SessionIDs))
	return b, nil
}

func decodeBookmarks(resp *domain.Response, field string) (domain.Bookmarks, error) {
	var data map[string]*domain.Bookmarks
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return domain.Bookmarks{}, fmt.Errorf("decode %s: %w", field, err)
	}
	b := data[field]
	if b == nil {
		return domain.Bookmarks{SessionIDs: []string{}}, nil
	}
	if b.SessionIDs == nil {
		b.SessionIDs = []string{}
	}
	return *b, nil
}
