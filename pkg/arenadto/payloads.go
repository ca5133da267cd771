package arenadto

// Connect carries the identity the client connects with. Rating is trusted
// only when the authentication layer resolved a UserID first; anonymous
// connections always start at the configured default.
type Connect struct {
	DisplayName string   `json:"display_name"`
	UserID      string   `json:"user_id,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
}

type JoinQueue struct {
	Mode   string   `json:"mode"`
	Spread *float64 `json:"spread,omitempty"`
}

type SubmitMove struct {
	MatchID string `json:"match_id"`
	Move    string `json:"move"`
}

type Chat struct {
	MatchID string `json:"match_id"`
	Text    string `json:"text"`
}

// MatchRef is the payload shape for resign and report_timeout.
type MatchRef struct {
	MatchID string `json:"match_id"`
}

// NaturalEnd is the client-reported terminal state from the rules oracle.
// Trusted input; only shape is checked.
type NaturalEnd struct {
	MatchID    string `json:"match_id"`
	Result     string `json:"result"` // decisive | draw
	WinnerSide int    `json:"winner_side,omitempty"`
	Cause      string `json:"cause,omitempty"` // checkmate | stalemate | ...
}

// --- outbound payloads ---

type PresenceEntry struct {
	ConnID      string  `json:"conn_id"`
	DisplayName string  `json:"display_name"`
	Rating      float64 `json:"rating"`
	Status      string  `json:"status"`
}

type RosterUpdate struct {
	Players []PresenceEntry `json:"players"`
}

type QueueStats struct {
	Ranked   int `json:"ranked"`
	Unranked int `json:"unranked"`
}

type OpponentInfo struct {
	DisplayName string  `json:"display_name"`
	Rating      float64 `json:"rating"`
}

type MatchFound struct {
	MatchID  string       `json:"match_id"`
	Mode     string       `json:"mode"`
	Side     int          `json:"side"`
	Opponent OpponentInfo `json:"opponent"`
	Notice   string       `json:"notice,omitempty"`
}

type OpponentMove struct {
	MatchID string `json:"match_id"`
	Index   int    `json:"index"`
	Move    string `json:"move"`
}

type ChatRelay struct {
	MatchID string `json:"match_id"`
	From    string `json:"from"`
	Text    string `json:"text"`
}

type MatchEnded struct {
	MatchID     string  `json:"match_id"`
	Cause       string  `json:"cause"`
	Result      string  `json:"result"` // win | loss | draw, from the recipient's view
	Winner      string  `json:"winner,omitempty"`
	Loser       string  `json:"loser,omitempty"`
	RatingDelta float64 `json:"rating_delta,omitempty"`
	NewRating   float64 `json:"new_rating,omitempty"`
	Coins       int64   `json:"coins,omitempty"`
	Notice      string  `json:"notice,omitempty"`
}

type Warning struct {
	Message string `json:"message"`
}

type Error struct {
	Message string `json:"message"`
}
