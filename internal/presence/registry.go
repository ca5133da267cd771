package presence

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/obslog"
)

// Status is a connected player's live session state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusInQueue Status = "in-queue"
	StatusInGame  Status = "in-game"
)

// Info is the public session state of one live connection. Process-lifetime
// only; a reconnecting user gets a fresh ConnID and a fresh record.
type Info struct {
	ConnID      string  `json:"conn_id"`
	UserID      string  `json:"user_id,omitempty"`
	DisplayName string  `json:"display_name"`
	Rating      float64 `json:"rating"`
	Status      Status  `json:"status"`
}

// Registry tracks who is online, keyed by connection ID. All mutations are
// mutex-guarded; no operation holds the lock across a blocking call.
type Registry struct {
	mu     sync.RWMutex
	byConn map[string]*Info

	onRoster func(roster []Info)
}

// NewRegistry returns a registry. onRoster, if non-nil, is invoked with a
// fresh roster snapshot after every join and removal.
func NewRegistry(onRoster func([]Info)) *Registry {
	return &Registry{byConn: make(map[string]*Info), onRoster: onRoster}
}

// Join registers a connection with status online and broadcasts the roster.
func (r *Registry) Join(connID, userID, displayName string, rating float64) Info {
	info := Info{
		ConnID:      strings.TrimSpace(connID),
		UserID:      strings.TrimSpace(userID),
		DisplayName: strings.TrimSpace(displayName),
		Rating:      rating,
		Status:      StatusOnline,
	}
	r.mu.Lock()
	r.byConn[info.ConnID] = &info
	r.mu.Unlock()

	obslog.L().Info("presence_join",
		zap.String("conn_id", info.ConnID),
		zap.String("user_id", info.UserID),
		zap.String("name", info.DisplayName),
	)
	r.broadcast()
	return info
}

// SetStatus transitions a connection's status. Unknown connections are a
// benign no-op.
func (r *Registry) SetStatus(connID string, st Status) bool {
	r.mu.Lock()
	info, ok := r.byConn[connID]
	if ok {
		info.Status = st
	}
	r.mu.Unlock()
	return ok
}

// Get returns a copy of the presence record for connID.
func (r *Registry) Get(connID string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byConn[connID]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Remove purges a connection on disconnect and broadcasts the roster.
// Returns the removed record so callers can react to its last status.
func (r *Registry) Remove(connID string) (Info, bool) {
	r.mu.Lock()
	info, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
	}
	r.mu.Unlock()
	if !ok {
		return Info{}, false
	}

	obslog.L().Info("presence_leave",
		zap.String("conn_id", info.ConnID),
		zap.String("user_id", info.UserID),
		zap.String("last_status", string(info.Status)),
	)
	r.broadcast()
	return *info, true
}

// Snapshot returns the full roster, sorted for deterministic output. Used by
// late-joining observers to avoid racing the connect/broadcast gap.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.byConn))
	for _, info := range r.byConn {
		out = append(out, *info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ConnID < out[j].ConnID
	})
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *Registry) broadcast() {
	if r.onRoster == nil {
		return
	}
	r.onRoster(r.Snapshot())
}
