// Package schedule prints a conference schedule grouped by day, from the local cache
// first and then from the server, optionally following updates.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"confetti/config"
	"confetti/internal/app"
	"confetti/internal/domain"
	"confetti/internal/repository"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config holds the schedule command configuration.
type Config struct {
	ServerURL     string
	Conference    string
	UserID        string
	Token         string
	CacheProvider string
	CacheDir      string
	MemoryBytes   int
	Format        string
	Watch         bool
	Refresh       bool
	Timeout       time.Duration
}

// ParseConfig parses flags into a Config, taking defaults from env.
func ParseConfig(fs *flag.FlagSet, args []string, env *config.Config) (Config, error) {
	cfg := Config{
		ServerURL:     env.ServerURL,
		Conference:    env.Conference,
		CacheProvider: env.CacheProvider,
		CacheDir:      env.CacheDir,
		MemoryBytes:   env.MemoryCacheBytes,
		Format:        FormatText,
		Timeout:       env.RequestTimeout,
	}
	if cfg.CacheProvider == repository.ProviderPostgres {
		cfg.CacheProvider = repository.ProviderSQLite
	}

	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Confetti GraphQL endpoint")
	fs.StringVar(&cfg.Conference, "conference", cfg.Conference, "Conference identifier")
	fs.StringVar(&cfg.UserID, "user", "", "Signed-in user ID; its bookmarks are marked")
	fs.StringVar(&cfg.Token, "token", "", "Bearer token of the signed-in user")
	fs.StringVar(&cfg.CacheProvider, "cache", cfg.CacheProvider, "Cache store: sqlite or memory")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "Directory of the SQLite cache files")
	fs.IntVar(&cfg.MemoryBytes, "memory-bytes", cfg.MemoryBytes, "In-memory cache budget in bytes")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Output format: text, json or yaml")
	fs.BoolVar(&cfg.Watch, "watch", false, "Keep running and print every update")
	fs.BoolVar(&cfg.Refresh, "refresh", false, "Re-fetch from the server before printing")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	switch cfg.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return Config{}, fmt.Errorf("unknown format %q", cfg.Format)
	}
	switch cfg.CacheProvider {
	case repository.ProviderSQLite, repository.ProviderMemory:
	default:
		return Config{}, fmt.Errorf("unknown cache %q", cfg.CacheProvider)
	}
	if cfg.MemoryBytes <= 0 {
		return Config{}, fmt.Errorf("-memory-bytes must be positive, got %d", cfg.MemoryBytes)
	}
	if strings.TrimSpace(cfg.Conference) == "" {
		return Config{}, errors.New("conference is required")
	}
	if cfg.Token != "" && cfg.UserID == "" {
		return Config{}, errors.New("-token needs -user")
	}
	return cfg, nil
}

// Run prints the schedule. Without Watch it prints the first complete view and returns;
// with Watch it prints every emission, errors included, until ctx is done.
func Run(ctx context.Context, cfg Config, out io.Writer, logger *slog.Logger) error {
	provider := app.NewProvider(app.Options{
		ServerURL:   cfg.ServerURL,
		Store:       repository.StoreConfig{Provider: cfg.CacheProvider, Dir: cfg.CacheDir},
		MemoryBytes: cfg.MemoryBytes,
		Conferences: []string{cfg.Conference},
		HTTPClient:  &http.Client{Timeout: cfg.Timeout},
		Logger:      logger,
	})
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Warn("close cache", "err", err)
		}
	}()

	id := app.Identity{UserID: cfg.UserID, Token: cfg.Token}
	sessions, err := provider.Sessions(ctx, cfg.Conference, id)
	if err != nil {
		return err
	}
	if cfg.Refresh {
		if err := sessions.Refresh(ctx); err != nil {
			return err
		}
	}
	var bookmarks domain.BookmarkService
	if cfg.UserID != "" {
		if bookmarks, err = provider.Bookmarks(ctx, cfg.Conference, id); err != nil {
			return err
		}
	}

	sub := sessions.WatchSessionsByDate(ctx)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			if cfg.Watch {
				return nil
			}
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if ev.Err != nil {
				if !cfg.Watch {
					return ev.Err
				}
				logger.Warn("schedule update failed", "conference", cfg.Conference, "err", ev.Err)
				continue
			}
			marked := currentBookmarks(ctx, bookmarks, cfg.Timeout, logger)
			if err := write(out, cfg.Format, ev.Value, marked); err != nil {
				return err
			}
			if !cfg.Watch {
				return nil
			}
		}
	}
}

// currentBookmarks returns the user's bookmarks, or an empty set when there is no user
// or they cannot be read in time.
func currentBookmarks(ctx context.Context, svc domain.BookmarkService, timeout time.Duration, logger *slog.Logger) domain.Bookmarks {
	if svc == nil {
		return domain.Bookmarks{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sub := svc.WatchBookmarks(ctx)
	defer sub.Close()
	select {
	case ev, ok := <-sub.Events():
		if ok && ev.Err == nil {
			return ev.Value
		}
		if ok {
			logger.Warn("bookmarks unavailable", "err", ev.Err)
		}
	case <-ctx.Done():
		logger.Warn("bookmarks unavailable", "err", ctx.Err())
	}
	return domain.Bookmarks{}
}

type scheduleDay struct {
	Date     domain.Date       `json:"date" yaml:"date"`
	Sessions []scheduleSession `json:"sessions" yaml:"sessions"`
}

type scheduleSession struct {
	domain.Session `yaml:",inline"`
	Bookmarked     bool `json:"bookmarked" yaml:"bookmarked"`
}

func write(out io.Writer, format string, grouped domain.SessionsByDate, bookmarks domain.Bookmarks) error {
	days := make([]scheduleDay, 0, len(grouped))
	for _, g := range grouped {
		day := scheduleDay{Date: g.Date, Sessions: make([]scheduleSession, 0, len(g.Sessions))}
		for _, s := range g.Sessions {
			day.Sessions = append(day.Sessions, scheduleSession{Session: s, Bookmarked: bookmarks.Contains(s.ID)})
		}
		days = append(days, day)
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(days)
	case FormatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(days); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(out, days)
	}
}

func writeText(out io.Writer, days []scheduleDay) error {
	if len(days) == 0 {
		_, err := fmt.Fprintln(out, "No sessions.")
		return err
	}
	for i, day := range days {
		if i > 0 {
			if _, err := fmt.Fprintln(out); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(out, "%s\n", day.Date); err != nil {
			return err
		}
		for _, s := range day.Sessions {
			mark := " "
			if s.Bookmarked {
				mark = "*"
			}
			room := ""
			if s.Room != nil {
				room = "  [" + s.Room.Name + "]"
			}
			if _, err := fmt.Fprintf(out, "%s %s  %s%s\n", mark, s.StartsAt.Format("15:04"), s.Title, room); err != nil {
				return err
			}
		}
	}
	return nil
}
