package match

import (
	"errors"
	"time"
)

// Cause classifies how a match ended.
type Cause string

const (
	CauseNatural Cause = "natural"
	CauseResign  Cause = "resign"
	CauseTimeout Cause = "timeout"
	CauseAbandon Cause = "abandon"
)

// Side identifies one of the two seats. Side1 is always the first seat
// assigned at pairing time.
type Side int

const (
	SideNone Side = 0
	Side1    Side = 1
	Side2    Side = 2
)

func (s Side) Opponent() Side {
	switch s {
	case Side1:
		return Side2
	case Side2:
		return Side1
	default:
		return SideNone
	}
}

// Player is one seat's occupant. ConnID is the live transport identifier
// and may be rewritten on reconnect; UserID is the stable logical identity.
type Player struct {
	ConnID      string
	UserID      string
	DisplayName string
	Rating      float64
}

// Move is one relayed move with its monotonic index.
type Move struct {
	Index   int       `json:"index"`
	Side    Side      `json:"side"`
	Payload string    `json:"payload"`
	At      time.Time `json:"at"`
}

// ChatMessage is one fan-out chat line scoped to a match.
type ChatMessage struct {
	From string    `json:"from"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Outcome describes who won when a match terminates. Draw outcomes carry
// WinnerSide == SideNone.
type Outcome struct {
	WinnerSide Side
	Draw       bool
}

var (
	// ErrNotParticipant: the sender matches neither seat by connection ID
	// nor by durable user ID.
	ErrNotParticipant = errors.New("sender is not a participant of this match")
)
