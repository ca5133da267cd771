package playerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrVersionConflict signals that the record moved between read and write.
// Callers retry through Update rather than handling it directly.
var ErrVersionConflict = errors.New("player record version conflict")

// Store is the keyed, versioned document store for durable player records,
// backed by Redis. Save performs a compare-and-set on Record.Version inside
// a WATCH transaction.
type Store struct {
	rdb           *redis.Client
	defaultRating float64
}

func NewStore(redisURL string, defaultRating float64) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for player store")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStoreWithClient(rdb, defaultRating), nil
}

// NewStoreWithClient wraps an existing client. Used by tests and by callers
// sharing one connection pool.
func NewStoreWithClient(rdb *redis.Client, defaultRating float64) *Store {
	if defaultRating <= 0 {
		defaultRating = 1200
	}
	return &Store{rdb: rdb, defaultRating: defaultRating}
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Get loads the record for userID. A missing record comes back as a fresh
// default profile at version 0; the first Save creates it.
func (s *Store) Get(ctx context.Context, userID string) (*Record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("empty user id")
	}
	raw, err := s.rdb.Get(ctx, playerKey(userID)).Bytes()
	if err == redis.Nil {
		now := time.Now()
		return &Record{
			UserID:     userID,
			Rating:     s.defaultRating,
			PeakRating: s.defaultRating,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal player record: %w", err)
	}
	return &rec, nil
}

// Save writes the record if and only if the stored version still equals
// rec.Version. On success the persisted version is rec.Version+1 and rec is
// updated in place. A concurrent writer surfaces as ErrVersionConflict.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.UserID) == "" {
		return fmt.Errorf("invalid player record")
	}
	key := playerKey(rec.UserID)

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var storedVersion int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
			storedVersion = 0
		case err != nil:
			return err
		default:
			var cur Record
			if jerr := json.Unmarshal(raw, &cur); jerr != nil {
				return jerr
			}
			storedVersion = cur.Version
		}
		if storedVersion != rec.Version {
			return ErrVersionConflict
		}

		next := *rec
		next.Version = rec.Version + 1
		next.UpdatedAt = time.Now()
		newRaw, jerr := json.Marshal(&next)
		if jerr != nil {
			return jerr
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		*rec = next
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// another writer touched the key mid-transaction
		return ErrVersionConflict
	}
	return err
}

func playerKey(userID string) string { return "arena:player:" + strings.TrimSpace(userID) }
