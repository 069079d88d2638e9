package services

import "confetti/internal/domain"

// GroupSessionsByDate partitions sessions by the calendar date of their start time.
// Groups appear in the order their date is first seen, and each group keeps the
// relative order of the input.
func GroupSessionsByDate(sessions []domain.Session) domain.SessionsByDate {
	out := domain.SessionsByDate{}
	index := make(map[domain.Date]int)
	for _, s := range sessions {
		d := s.StartDate()
		i, ok := index[d]
		if !ok {
			i = len(out)
			index[d] = i
			out = append(out, domain.DateGroup{Date: d})
		}
		out[i].Sessions = append(out[i].Sessions, s)
	}
	return out
}
