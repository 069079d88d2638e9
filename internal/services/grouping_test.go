package services

import (
	"testing"

	"confetti/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func session(t *testing.T, id, startsAt string) domain.Session {
	t.Helper()
	start, err := domain.ParseLocalDateTime(startsAt)
	require.NoError(t, err)
	return domain.Session{ID: id, Title: "Session " + id, StartsAt: start}
}

func sessionIDs(sessions []domain.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}

func TestGroupSessionsByDate(t *testing.T) {
	day1 := domain.Date{Year: 2023, Month: 4, Day: 12}
	day2 := domain.Date{Year: 2023, Month: 4, Day: 13}

	tests := []struct {
		name      string
		sessions  []domain.Session
		wantDates []domain.Date
		wantIDs   map[domain.Date][]string
	}{
		{
			name:      "empty list",
			sessions:  nil,
			wantDates: []domain.Date{},
		},
		{
			name: "single day keeps upstream order",
			sessions: []domain.Session{
				session(t, "b", "2023-04-12T14:00"),
				session(t, "a", "2023-04-12T09:00"),
			},
			wantDates: []domain.Date{day1},
			wantIDs:   map[domain.Date][]string{day1: {"b", "a"}},
		},
		{
			name: "interleaved days ordered by first appearance",
			sessions: []domain.Session{
				session(t, "s1", "2023-04-13T09:00"),
				session(t, "s2", "2023-04-12T10:00"),
				session(t, "s3", "2023-04-13T11:00"),
				session(t, "s4", "2023-04-12T08:00"),
			},
			wantDates: []domain.Date{day2, day1},
			wantIDs: map[domain.Date][]string{
				day2: {"s1", "s3"},
				day1: {"s2", "s4"},
			},
		},
		{
			name: "date taken from the served local time, not UTC",
			sessions: []domain.Session{
				session(t, "late", "2023-04-12T23:30:00+02:00"),
				session(t, "early", "2023-04-13T00:30:00-05:00"),
			},
			wantDates: []domain.Date{day1, day2},
			wantIDs: map[domain.Date][]string{
				day1: {"late"},
				day2: {"early"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GroupSessionsByDate(tt.sessions)
			assert.Equal(t, tt.wantDates, got.Dates())
			for d, ids := range tt.wantIDs {
				assert.Equal(t, ids, sessionIDs(got.On(d)), d.String())
			}
		})
	}
}

func TestGroupSessionsByDate_Partition(t *testing.T) {
	sessions := []domain.Session{
		session(t, "s1", "2023-04-12T09:00"),
		session(t, "s2", "2023-04-14T09:00"),
		session(t, "s3", "2023-04-12T11:00"),
		session(t, "s4", "2023-04-13T09:00"),
		session(t, "s5", "2023-04-14T17:00"),
	}
	grouped := GroupSessionsByDate(sessions)

	seen := make(map[domain.Date]bool)
	total := 0
	for _, g := range grouped {
		require.False(t, seen[g.Date], "duplicate group %s", g.Date)
		seen[g.Date] = true
		require.NotEmpty(t, g.Sessions)
		for _, s := range g.Sessions {
			assert.Equal(t, g.Date, s.StartDate())
		}
		total += len(g.Sessions)
	}
	assert.Equal(t, len(sessions), total)
	assert.Nil(t, grouped.On(domain.Date{Year: 2024, Month: 1, Day: 1}))
}
