package playerstore

import "time"

// HistoryEntry is one finished game in a player's append-only history.
// MatchID is the logical key used to keep retried appends idempotent.
type HistoryEntry struct {
	MatchID     string    `json:"match_id"`
	Opponent    string    `json:"opponent"`
	Result      string    `json:"result"`
	EndReason   string    `json:"end_reason"`
	Mode        string    `json:"mode"`
	RatingDelta float64   `json:"rating_delta,omitempty"`
	Coins       int64     `json:"coins"`
	MoveCount   int       `json:"move_count"`
	DurationMS  int64     `json:"duration_ms"`
	PlayedAt    time.Time `json:"played_at"`
}

// Record is a player's durable profile. Version implements the store's
// optimistic concurrency check: a save only succeeds when the stored
// version still matches the one that was read.
type Record struct {
	UserID      string         `json:"user_id"`
	DisplayName string         `json:"display_name"`
	Rating      float64        `json:"rating"`
	PeakRating  float64        `json:"peak_rating"`
	Wins        int            `json:"wins"`
	Losses      int            `json:"losses"`
	Draws       int            `json:"draws"`
	Streak      int            `json:"streak"`
	StreakType  string         `json:"streak_type,omitempty"`
	Coins       int64          `json:"coins"`
	History     []HistoryEntry `json:"history"`
	Version     int64          `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasGame reports whether a history entry for the match already exists.
// Re-derived after every conflict re-read so retried appends stay unique.
func (r *Record) HasGame(matchID string) bool {
	for _, h := range r.History {
		if h.MatchID == matchID {
			return true
		}
	}
	return false
}

// GamesPlayed is the total of all recorded results.
func (r *Record) GamesPlayed() int {
	return r.Wins + r.Losses + r.Draws
}
