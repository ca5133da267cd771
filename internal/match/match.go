package match

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/obslog"
	"github.com/tbellem/chess-arena/internal/queue"
)

// phase is the tagged state of a match: active, or terminated with a cause.
// The transition happens exactly once, under the match mutex, so two racing
// termination triggers resolve to a single winner.
type phase struct {
	terminated bool
	cause      Cause
}

// Match is one in-progress two-player game owned by the registry.
type Match struct {
	ID        string
	Mode      queue.Mode
	CreatedAt time.Time

	mu      sync.Mutex
	player1 Player
	player2 Player
	moves   []Move
	chat    []ChatMessage
	st      phase
}

// RelayResult tells the caller where to forward a relayed move.
type RelayResult struct {
	Move           Move
	SenderSide     Side
	OpponentConnID string
}

// Player returns a copy of the seat's occupant.
func (m *Match) Player(s Side) Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == Side1 {
		return m.player1
	}
	return m.player2
}

// MoveCount returns the number of relayed moves.
func (m *Match) MoveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.moves)
}

// Moves returns a copy of the ordered move log.
func (m *Match) Moves() []Move {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Move(nil), m.moves...)
}

// Terminated reports the termination cause once set.
func (m *Match) Terminated() (Cause, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.cause, m.st.terminated
}

// Terminate is the single atomic check-and-set transition out of the active
// phase. The first caller wins and gets true; every later caller gets false
// and must treat the call as a no-op. This runs synchronously before any
// asynchronous rating or persistence work starts.
func (m *Match) Terminate(cause Cause) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.terminated {
		return false
	}
	m.st = phase{terminated: true, cause: cause}
	return true
}

// resolveSenderLocked maps a sender to a seat. Resolution by connection ID
// first; a miss falls back to the durable user ID and rewrites the stored
// connection ID, because the transport identifier is not stable across
// reconnects while the logical identity is.
func (m *Match) resolveSenderLocked(connID, userID string) Side {
	switch connID {
	case m.player1.ConnID:
		return Side1
	case m.player2.ConnID:
		return Side2
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return SideNone
	}
	switch userID {
	case m.player1.UserID:
		obslog.L().Info("match_reconnect",
			zap.String("match_id", m.ID),
			zap.String("user_id", userID),
			zap.String("old_conn", m.player1.ConnID),
			zap.String("new_conn", connID),
		)
		m.player1.ConnID = connID
		return Side1
	case m.player2.UserID:
		obslog.L().Info("match_reconnect",
			zap.String("match_id", m.ID),
			zap.String("user_id", userID),
			zap.String("old_conn", m.player2.ConnID),
			zap.String("new_conn", connID),
		)
		m.player2.ConnID = connID
		return Side2
	}
	return SideNone
}

// ResolveSender maps a sender to a seat without relaying anything, applying
// the same reconnect rewrite as Relay. Used by termination handlers.
func (m *Match) ResolveSender(connID, userID string) Side {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveSenderLocked(connID, userID)
}

// Relay appends the sender's move to the log and returns where to forward
// it. No legality checking happens here; the move payload is forwarded
// verbatim. A relay racing a termination is benign: an in-flight move may
// still land after the match terminated.
func (m *Match) Relay(connID, userID, payload string) (RelayResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	side := m.resolveSenderLocked(connID, userID)
	if side == SideNone {
		return RelayResult{}, ErrNotParticipant
	}
	mv := Move{
		Index:   len(m.moves),
		Side:    side,
		Payload: payload,
		At:      time.Now(),
	}
	m.moves = append(m.moves, mv)

	opp := m.player2
	if side == Side2 {
		opp = m.player1
	}
	return RelayResult{Move: mv, SenderSide: side, OpponentConnID: opp.ConnID}, nil
}

// RelayChat appends a chat line and returns the opponent's connection ID
// for fan-out. Chat has no state machine of its own.
func (m *Match) RelayChat(connID, userID, text string) (ChatMessage, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	side := m.resolveSenderLocked(connID, userID)
	if side == SideNone {
		return ChatMessage{}, "", ErrNotParticipant
	}
	from := m.player1.DisplayName
	opp := m.player2
	if side == Side2 {
		from = m.player2.DisplayName
		opp = m.player1
	}
	msg := ChatMessage{From: from, Text: text, At: time.Now()}
	m.chat = append(m.chat, msg)
	return msg, opp.ConnID, nil
}

// ChatLog returns a copy of the match-scoped chat history.
func (m *Match) ChatLog() []ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatMessage(nil), m.chat...)
}

// HasConn reports whether connID currently occupies either seat.
func (m *Match) HasConn(connID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.player1.ConnID == connID || m.player2.ConnID == connID
}

// SideOfConn returns the seat currently bound to connID.
func (m *Match) SideOfConn(connID string) Side {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch connID {
	case m.player1.ConnID:
		return Side1
	case m.player2.ConnID:
		return Side2
	}
	return SideNone
}

// Duration is the wall time since match creation.
func (m *Match) Duration() time.Duration {
	return time.Since(m.CreatedAt)
}
