package playerstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/obslog"
)

// DefaultAttempts bounds the optimistic-concurrency retry loop.
const DefaultAttempts = 3

// ErrRetriesExhausted reports that every attempt hit a version conflict.
// Non-fatal for callers: the game outcome is still delivered, the failure is
// surfaced as a warning.
var ErrRetriesExhausted = errors.New("player record retries exhausted")

// Update is the read-modify-write combinator used for every durable-record
// mutation. apply must be idempotent against re-reads: numeric deltas are
// computed once outside and added as-is, while list appends re-check the
// latest record (Record.HasGame) before inserting. On a version conflict the
// latest record is re-read and apply runs again against it.
func (s *Store) Update(ctx context.Context, userID string, attempts int, apply func(*Record) error) (*Record, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		rec, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := apply(rec); err != nil {
			return nil, err
		}
		err = s.Save(ctx, rec)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		obslog.L().Warn("persist_conflict",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
		)
	}
	return nil, fmt.Errorf("update player %s: %w", userID, ErrRetriesExhausted)
}
