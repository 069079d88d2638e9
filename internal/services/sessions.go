package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"confetti/internal/domain"
	"confetti/internal/stream"
)

type sessionRepository struct {
	conference string
	watcher    domain.QueryWatcher
	logger     *slog.Logger
}

// NewSessionRepository returns the session repository of one conference. watcher must
// already be bound to that conference's endpoint and cache namespace.
func NewSessionRepository(conference string, watcher domain.QueryWatcher, logger *slog.Logger) domain.SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &sessionRepository{
		conference: conference,
		watcher:    watcher,
		logger:     logger.With("conference", conference),
	}
}

func (r *sessionRepository) Conference() string {
	return r.conference
}

func (r *sessionRepository) WatchSessions(ctx context.Context) *stream.Subscription[[]domain.Session] {
	op := domain.GetSessionsOperation()
	responses := r.watcher.Watch(ctx, op, domain.FetchCacheAndNetwork)
	return stream.Map(responses, func(resp *domain.Response) ([]domain.Session, error) {
		sessions, err := decodeSessions(resp)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to decode sessions", "err", err)
			return nil, err
		}
		r.logger.DebugContext(ctx, "sessions emitted", "count", len(sessions), "from_cache", resp.FromCache)
		return sessions, nil
	})
}

func (r *sessionRepository) WatchSessionsByDate(ctx context.Context) *stream.Subscription[domain.SessionsByDate] {
	return stream.Map(r.WatchSessions(ctx), func(sessions []domain.Session) (domain.SessionsByDate, error) {
		return GroupSessionsByDate(sessions), nil
	})
}

func (r *sessionRepository) Refresh(ctx context.Context) error {
	if _, err := r.watcher.Query(ctx, domain.GetSessionsOperation(), domain.FetchNetworkOnly); err != nil {
		return fmt.Errorf("refresh sessions: %w", err)
	}
	return nil
}

func decodeSessions(resp *domain.Response) ([]domain.Session, error) {
	if !resp.HasData() {
		return nil, &domain.TransportError{Operation: "GetSessions", Err: errors.New("response has no data")}
	}
	var data struct {
		Sessions []domain.Session `json:"sessions"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, &domain.TransportError{Operation: "GetSessions", Err: fmt.Errorf("decode sessions: %w", err)}
	}
	if data.Sessions == nil {
		data.Sessions = []domain.Session{}
	}
	return data.Sessions, nil
}
