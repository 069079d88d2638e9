package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"confetti/internal/stream"
)

// Session represents a conference session or talk as served by the GraphQL API.
type Session struct {
	ID          string         `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Description *string        `json:"sessionDescription,omitempty" yaml:"description,omitempty"`
	StartsAt    LocalDateTime  `json:"startsAt" yaml:"starts_at"`
	EndsAt      *LocalDateTime `json:"endsAt,omitempty" yaml:"ends_at,omitempty"`
	Room        *Room          `json:"room,omitempty" yaml:"room,omitempty"`
	Tags        []string       `json:"tags" yaml:"tags"`
	Speakers    []Speaker      `json:"speakers" yaml:"speakers"`
}

// Room is the room a session takes place in.
type Room struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// StartDate returns the calendar date the session starts on.
func (s Session) StartDate() Date {
	return DateOf(s.StartsAt.Time)
}

// LocalDateTime is a wall-clock timestamp without a zone. The API serves session
// times in the venue's local time, either as RFC 3339 or as a bare "2006-01-02T15:04[:05]".
type LocalDateTime struct {
	time.Time
}

var localDateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseLocalDateTime parses the formats the API is known to serve.
func ParseLocalDateTime(s string) (LocalDateTime, error) {
	for _, layout := range localDateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return LocalDateTime{Time: t}, nil
		}
	}
	return LocalDateTime{}, fmt.Errorf("%w: unrecognised date-time %q", ErrInvalidInput, s)
}

func (t LocalDateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format("2006-01-02T15:04:05"))
}

func (t *LocalDateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseLocalDateTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t LocalDateTime) MarshalYAML() (any, error) {
	return t.Format("2006-01-02T15:04:05"), nil
}

// Date is a calendar date without time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a "2006-01-02" date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateGroup holds the sessions starting on one date, in upstream order.
type DateGroup struct {
	Date     Date      `json:"date" yaml:"date"`
	Sessions []Session `json:"sessions" yaml:"sessions"`
}

// SessionsByDate is the grouped view of a session list. Groups are ordered by the
// first appearance of their date in the source list. It is always derived, never stored.
type SessionsByDate []DateGroup

// Dates returns the group keys in order.
func (g SessionsByDate) Dates() []Date {
	out := make([]Date, 0, len(g))
	for _, group := range g {
		out = append(out, group.Date)
	}
	return out
}

// On returns the sessions starting on d, or nil if there are none.
func (g SessionsByDate) On(d Date) []Session {
	for _, group := range g {
		if group.Date == d {
			return group.Sessions
		}
	}
	return nil
}

// SessionRepository provides a live, cache-backed view of one conference's sessions.
type SessionRepository interface {
	// Conference returns the conference identifier fixed at construction.
	Conference() string
	// WatchSessions emits the current session list: the cached value first when present,
	// then the network value, then again on every cache change affecting the list.
	WatchSessions(ctx context.Context) *stream.Subscription[[]Session]
	// WatchSessionsByDate emits one grouped view per WatchSessions emission.
	WatchSessionsByDate(ctx context.Context) *stream.Subscription[SessionsByDate]
	// Refresh re-fetches the session list from the network and writes it through the cache.
	Refresh(ctx context.Context) error
}
