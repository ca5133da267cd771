package queue

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/obslog"
)

// Mode selects one of the two independent waiting pools.
type Mode string

const (
	ModeRanked   Mode = "ranked"
	ModeUnranked Mode = "unranked"
)

// PlayerSnapshot captures a player's identity and rating at enqueue time.
// The rating here is what a pairing decision is based on, even if the
// durable record moves afterwards.
type PlayerSnapshot struct {
	ConnID      string  `json:"conn_id"`
	UserID      string  `json:"user_id,omitempty"`
	DisplayName string  `json:"display_name"`
	Rating      float64 `json:"rating"`
}

// Entry is one waiting player inside a pool.
type Entry struct {
	Player     PlayerSnapshot
	Mode       Mode
	Spread     float64
	EnqueuedAt time.Time
}

// Pair is a successful pairing; both entries are already removed from
// their pool when a Pair is returned.
type Pair struct {
	Mode   Mode
	First  Entry
	Second Entry
}

// Stats are per-mode waiting counts for broadcast.
type Stats struct {
	Ranked   int `json:"ranked"`
	Unranked int `json:"unranked"`
}

// Service owns the two pools. A connection ID lives in at most one pool at
// a time; Enqueue enforces that before inserting.
type Service struct {
	mu            sync.Mutex
	pools         map[Mode][]*Entry
	defaultSpread float64
}

func NewService(defaultSpread float64) *Service {
	if defaultSpread <= 0 {
		defaultSpread = 200
	}
	return &Service{
		pools:         map[Mode][]*Entry{ModeRanked: nil, ModeUnranked: nil},
		defaultSpread: defaultSpread,
	}
}

// Enqueue inserts the player into the pool for mode, first removing the
// connection from any other pool, then runs a pairing attempt for that pool.
// Returns the pair when one was made, nil otherwise.
func (s *Service) Enqueue(player PlayerSnapshot, mode Mode, spread float64) *Pair {
	if mode != ModeRanked {
		mode = ModeUnranked
	}
	if spread <= 0 {
		spread = s.defaultSpread
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(player.ConnID)
	s.pools[mode] = append(s.pools[mode], &Entry{
		Player:     player,
		Mode:       mode,
		Spread:     spread,
		EnqueuedAt: time.Now(),
	})
	obslog.L().Info("queue_join",
		zap.String("conn_id", player.ConnID),
		zap.String("mode", string(mode)),
		zap.Float64("rating", player.Rating),
	)
	return s.evaluateLocked(mode)
}

// Remove drops the connection from whichever pool holds it. Used for
// explicit leave and for disconnect.
func (s *Service) Remove(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(connID)
}

// Evaluate re-runs the pairing attempt for a pool without changing it.
// Callers may invoke this periodically to implement spread widening.
func (s *Service) Evaluate(mode Mode) *Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluateLocked(mode)
}

// Stats returns current per-mode waiting counts.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Ranked:   len(s.pools[ModeRanked]),
		Unranked: len(s.pools[ModeUnranked]),
	}
}

// Contains reports whether connID is waiting in the given pool.
func (s *Service) Contains(connID string, mode Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.pools[mode] {
		if e.Player.ConnID == connID {
			return true
		}
	}
	return false
}

func (s *Service) removeLocked(connID string) bool {
	for mode, pool := range s.pools {
		for i, e := range pool {
			if e.Player.ConnID == connID {
				s.pools[mode] = append(pool[:i], pool[i+1:]...)
				return true
			}
		}
	}
	return false
}

// evaluateLocked runs one pairing attempt. Unranked pairs the two
// longest-waiting entries; ranked scans all pairs for the smallest rating
// difference that fits inside both entries' spread, breaking ties by the
// earliest combined enqueue time. No eligible pair is a no-op; the pool is
// re-evaluated on the next enqueue or leave event.
func (s *Service) evaluateLocked(mode Mode) *Pair {
	pool := s.pools[mode]
	if len(pool) < 2 {
		return nil
	}

	var i1, i2 int = -1, -1
	if mode == ModeUnranked {
		i1, i2 = oldestTwo(pool)
	} else {
		bestDiff := 0.0
		var bestWait time.Duration
		for a := 0; a < len(pool); a++ {
			for b := a + 1; b < len(pool); b++ {
				diff := pool[a].Player.Rating - pool[b].Player.Rating
				if diff < 0 {
					diff = -diff
				}
				if diff > pool[a].Spread || diff > pool[b].Spread {
					continue
				}
				combined := pool[a].EnqueuedAt.Sub(time.Time{}) + pool[b].EnqueuedAt.Sub(time.Time{})
				if i1 < 0 || diff < bestDiff || (diff == bestDiff && combined < bestWait) {
					i1, i2, bestDiff, bestWait = a, b, diff, combined
				}
			}
		}
	}
	if i1 < 0 || i2 < 0 {
		return nil
	}

	first, second := *pool[i1], *pool[i2]
	// remove higher index first so the lower one stays valid
	if i1 > i2 {
		i1, i2 = i2, i1
	}
	pool = append(pool[:i2], pool[i2+1:]...)
	pool = append(pool[:i1], pool[i1+1:]...)
	s.pools[mode] = pool

	obslog.L().Info("queue_pair",
		zap.String("mode", string(mode)),
		zap.String("first", first.Player.ConnID),
		zap.String("second", second.Player.ConnID),
		zap.Float64("rating_diff", abs(first.Player.Rating-second.Player.Rating)),
	)
	return &Pair{Mode: mode, First: first, Second: second}
}

func oldestTwo(pool []*Entry) (int, int) {
	i1, i2 := -1, -1
	for i, e := range pool {
		switch {
		case i1 < 0 || e.EnqueuedAt.Before(pool[i1].EnqueuedAt):
			i2 = i1
			i1 = i
		case i2 < 0 || e.EnqueuedAt.Before(pool[i2].EnqueuedAt):
			i2 = i
		}
	}
	return i1, i2
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
