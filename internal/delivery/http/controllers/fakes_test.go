package controllers

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"confetti/internal/app"
	"confetti/internal/domain"
	"confetti/internal/services"
	"confetti/internal/stream"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeRepos implements Repositories for handler tests.
type fakeRepos struct {
	sessions     *fakeSessionRepo
	bookmarks    *fakeBookmarkService
	err          error
	lastIdentity app.Identity
	lastConf     string
}

func (f *fakeRepos) Sessions(_ context.Context, conference string, id app.Identity) (domain.SessionRepository, error) {
	f.lastConf, f.lastIdentity = conference, id
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions, nil
}

func (f *fakeRepos) Bookmarks(_ context.Context, conference string, id app.Identity) (domain.BookmarkService, error) {
	f.lastConf, f.lastIdentity = conference, id
	if f.err != nil {
		return nil, f.err
	}
	if id.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	return f.bookmarks, nil
}

// fakeSessionRepo emits initial, then whatever is sent on feed.
type fakeSessionRepo struct {
	initial    []stream.Event[[]domain.Session]
	feed       chan stream.Event[[]domain.Session]
	refreshErr error

	mu        sync.Mutex
	refreshed int
	watching  int
}

func (f *fakeSessionRepo) Conference() string { return "kotlinconf2023" }

func (f *fakeSessionRepo) WatchSessions(ctx context.Context) *stream.Subscription[[]domain.Session] {
	return stream.New(ctx, func(ctx context.Context, emit stream.Emit[[]domain.Session]) {
		f.mu.Lock()
		f.watching++
		f.mu.Unlock()
		defer func() {
			f.mu.Lock()
			f.watching--
			f.mu.Unlock()
		}()
		for _, ev := range f.initial {
			if !emit(ev) {
				return
			}
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-f.feed:
				if !ok || !emit(ev) {
					return
				}
			}
		}
	})
}

func (f *fakeSessionRepo) WatchSessionsByDate(ctx context.Context) *stream.Subscription[domain.SessionsByDate] {
	return stream.Map(f.WatchSessions(ctx), func(s []domain.Session) (domain.SessionsByDate, error) {
		return services.GroupSessionsByDate(s), nil
	})
}

func (f *fakeSessionRepo) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return f.refreshErr
}

func (f *fakeSessionRepo) activeWatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watching
}

// fakeBookmarkService keeps bookmarks in memory.
type fakeBookmarkService struct {
	mu        sync.Mutex
	ids       []string
	err       error
	lastAdded string
}

func (f *fakeBookmarkService) current() domain.Bookmarks {
	return domain.Bookmarks{ID: "b1", SessionIDs: append([]string{}, f.ids...)}
}

func (f *fakeBookmarkService) WatchBookmarks(ctx context.Context) *stream.Subscription[domain.Bookmarks] {
	return stream.New(ctx, func(ctx context.Context, emit stream.Emit[domain.Bookmarks]) {
		f.mu.Lock()
		b := f.current()
		f.mu.Unlock()
		if !emit(stream.Event[domain.Bookmarks]{Value: b}) {
			return
		}
		<-ctx.Done()
	})
}

func (f *fakeBookmarkService) AddBookmark(_ context.Context, sessionID string) (domain.Bookmarks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Bookmarks{}, f.err
	}
	if sessionID == "" {
		return domain.Bookmarks{}, domain.ErrInvalidInput
	}
	f.lastAdded = sessionID
	f.ids = append(f.ids, sessionID)
	return f.current(), nil
}

func (f *fakeBookmarkService) RemoveBookmark(_ context.Context, sessionID string) (domain.Bookmarks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Bookmarks{}, f.err
	}
	kept := f.ids[:0]
	for _, id := range f.ids {
		if id != sessionID {
			kept = append(kept, id)
		}
	}
	f.ids = kept
	return f.current(), nil
}

func testSession(id, title string, start time.Time) domain.Session {
	return domain.Session{
		ID:       id,
		Title:    title,
		StartsAt: domain.LocalDateTime{Time: start},
		Tags:     []string{},
		Speakers: []domain.Speaker{},
	}
}

func testSessions() []domain.Session {
	day1 := time.Date(2023, 4, 12, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2023, 4, 13, 9, 0, 0, 0, time.UTC)
	return []domain.Session{
		testSession("s1", "Keynote", day1),
		testSession("s2", "Coroutines", day2),
		testSession("s3", "Compose", day1.Add(2*time.Hour)),
	}
}

func valueEvent(s []domain.Session) stream.Event[[]domain.Session] {
	return stream.Event[[]domain.Session]{Value: s}
}
