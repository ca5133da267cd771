package rules

import (
	"errors"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Oracle is the external game-rules collaborator. The session layer trusts
// client-reported endings and relays moves verbatim; an Oracle only gates
// the shape/legality of a move when the operator opts in.
type Oracle interface {
	// ValidateMove checks whether next is playable after the given UCI
	// move history.
	ValidateMove(history []string, next string) error
}

var ErrIllegalMove = errors.New("illegal move")

// AllowAll is the default oracle: every move passes. Matches the trust
// model where legality is the client's problem.
type AllowAll struct{}

func (AllowAll) ValidateMove([]string, string) error { return nil }

// ChessOracle validates moves against real chess rules. Reconstruction
// always starts from the initial position and replays the stored UCI moves.
type ChessOracle struct{}

func (ChessOracle) ValidateMove(history []string, next string) error {
	game := nchess.NewGame()
	for _, mv := range history {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return ErrIllegalMove
		}
	}

	raw := strings.TrimSpace(next)
	if raw == "" {
		return ErrIllegalMove
	}
	if err := game.PushNotationMove(strings.ToLower(raw), nchess.UCINotation{}, nil); err == nil {
		return nil
	}
	// fall back to SAN for clients that send algebraic notation
	if err := game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
		return ErrIllegalMove
	}
	return nil
}
