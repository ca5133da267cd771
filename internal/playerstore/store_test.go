package playerstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	s, err := NewStore(fmt.Sprintf("redis://%s/0", mr.Addr()), 1200)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestGetMissingReturnsDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Rating != 1200 || rec.Version != 0 || rec.GamesPlayed() != 0 {
		t.Fatalf("unexpected default record: %+v", rec)
	}
}

func TestSaveBumpsVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, _ := s.Get(ctx, "u1")
	rec.DisplayName = "Alice"
	rec.Rating = 1210
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("expected version 1 after first save, got %d", rec.Version)
	}

	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get after save: %v", err)
	}
	if got.Rating != 1210 || got.Version != 1 {
		t.Fatalf("persisted record mismatch: %+v", got)
	}
}

func TestSaveStaleVersionConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Get(ctx, "u1")
	b, _ := s.Get(ctx, "u1")

	a.Rating = 1300
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	b.Rating = 1100
	err := s.Save(ctx, b)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	got, _ := s.Get(ctx, "u1")
	if got.Rating != 1300 {
		t.Fatalf("losing writer must not overwrite: %+v", got)
	}
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// delta computed once outside the apply func
	delta := 10.0
	calls := 0
	rec, err := s.Update(ctx, "u1", 3, func(r *Record) error {
		calls++
		if calls == 1 {
			// concurrent writer sneaks in between read and save
			other, _ := s.Get(ctx, "u1")
			other.Coins = 500
			if err := s.Save(ctx, other); err != nil {
				t.Fatalf("concurrent Save: %v", err)
			}
		}
		r.Rating += delta
		if !r.HasGame("m1") {
			r.History = append(r.History, HistoryEntry{
				MatchID:  "m1",
				Result:   "win",
				PlayedAt: time.Now(),
			})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls)
	}
	if rec.Rating != 1210 {
		t.Fatalf("delta applied against stale base: %v", rec.Rating)
	}
	if rec.Coins != 500 {
		t.Fatalf("concurrent write lost: %+v", rec)
	}
	if len(rec.History) != 1 {
		t.Fatalf("history entry duplicated across retries: %d", len(rec.History))
	}
}

func TestUpdateExhaustsRetries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Update(ctx, "u1", 2, func(r *Record) error {
		// a writer wins the race on every attempt
		other, _ := s.Get(ctx, "u1")
		other.Coins++
		if err := s.Save(ctx, other); err != nil {
			t.Fatalf("concurrent Save: %v", err)
		}
		r.Rating += 5
		return nil
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
}
