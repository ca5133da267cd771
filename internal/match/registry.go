package match

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/obslog"
	"github.com/tbellem/chess-arena/internal/queue"
)

// Registry owns every in-progress match. Removal stashes the chat log for a
// grace window so late-arriving chat reads after teardown still succeed.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Match
	lateChat map[string][]ChatMessage

	grace time.Duration
}

func NewRegistry(grace time.Duration) *Registry {
	return &Registry{
		byID:     make(map[string]*Match),
		lateChat: make(map[string][]ChatMessage),
		grace:    grace,
	}
}

// Create registers a new match in the active phase. p1 is always the first
// side.
func (r *Registry) Create(mode queue.Mode, p1, p2 Player) *Match {
	m := &Match{
		ID:        uuid.NewString(),
		Mode:      mode,
		CreatedAt: time.Now(),
		player1:   p1,
		player2:   p2,
	}
	r.mu.Lock()
	r.byID[m.ID] = m
	r.mu.Unlock()

	obslog.L().Info("match_create",
		zap.String("match_id", m.ID),
		zap.String("mode", string(mode)),
		zap.String("player1", p1.ConnID),
		zap.String("player2", p2.ConnID),
	)
	return m
}

// Get returns the live match for id.
func (r *Registry) Get(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// FindByConn locates the live match holding connID, if any. Used when a
// disconnect arrives with no match ID attached.
func (r *Registry) FindByConn(connID string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.byID {
		if m.HasConn(connID) {
			return m, true
		}
	}
	return nil, false
}

// FindByUser locates the live match holding the durable userID on either
// seat.
func (r *Registry) FindByUser(userID string) (*Match, bool) {
	if userID == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.byID {
		m.mu.Lock()
		hit := m.player1.UserID == userID || m.player2.UserID == userID
		m.mu.Unlock()
		if hit {
			return m, true
		}
	}
	return nil, false
}

// Remove tears the match down. The chat log stays readable through
// LateChat for the configured grace window, then is purged.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	m, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.byID, id)
	if r.grace > 0 {
		r.lateChat[id] = m.ChatLog()
	}
	r.mu.Unlock()

	obslog.L().Info("match_remove", zap.String("match_id", id))
	if r.grace > 0 {
		time.AfterFunc(r.grace, func() {
			r.mu.Lock()
			delete(r.lateChat, id)
			r.mu.Unlock()
		})
	}
}

// LateChat serves chat history for a recently removed match during the
// grace window.
func (r *Registry) LateChat(id string) ([]ChatMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byID[id]; ok {
		return m.ChatLog(), true
	}
	log, ok := r.lateChat[id]
	return log, ok
}

// Count returns the number of live matches.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
