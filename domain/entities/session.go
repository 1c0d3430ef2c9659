package entities

import "time"

// SessionSummary describes a finished consultation for billing
type SessionSummary struct {
	UserID         string
	PersonaID      string
	ConversationID string
	StartedAt      time.Time
	EndedAt        time.Time
}

// DurationSeconds is the billed length of the session, never negative
func (s SessionSummary) DurationSeconds() int64 {
	d := s.EndedAt.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}
