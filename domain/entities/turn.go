package entities

import "time"

// TurnContentLimit is the number of runes of a turn kept in memory.
const TurnContentLimit = 200

// TurnRole identifies who spoke a turn.
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
	TurnRoleSystem    TurnRole = "system"
)

// Turn is one speaker half of an exchange. AfterProfileComplete is captured
// when the turn is recorded and never changes afterwards.
type Turn struct {
	Role                 TurnRole  `json:"role"`
	Content              string    `json:"content"`
	AfterProfileComplete bool      `json:"after_profile_complete"`
	Timestamp            time.Time `json:"timestamp"`
}

// NewTurn builds a turn with truncated content stamped with the current time.
func NewTurn(role TurnRole, content string, afterProfileComplete bool) Turn {
	return Turn{
		Role:                 role,
		Content:              Truncate(content, TurnContentLimit),
		AfterProfileComplete: afterProfileComplete,
		Timestamp:            time.Now(),
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
