package resolver

import (
	"context"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/tbellem/chess-arena/internal/match"
	"github.com/tbellem/chess-arena/internal/playerstore"
	"github.com/tbellem/chess-arena/internal/queue"
	"github.com/tbellem/chess-arena/internal/rating"
)

func newTestService(t *testing.T) (*Service, *playerstore.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	store, err := playerstore.NewStore(fmt.Sprintf("redis://%s/0", mr.Addr()), 1200)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewService(store, nil, rating.NewEngine(20, 100, 3500, 2)), store
}

func newRankedMatch(t *testing.T) (*match.Registry, *match.Match) {
	t.Helper()
	reg := match.NewRegistry(0)
	m := reg.Create(queue.ModeRanked,
		match.Player{ConnID: "c1", UserID: "u1", DisplayName: "Alice", Rating: 1200},
		match.Player{ConnID: "c2", UserID: "u2", DisplayName: "Bob", Rating: 1200},
	)
	return reg, m
}

func TestResolveRankedResign(t *testing.T) {
	s, store := newTestService(t)
	_, m := newRankedMatch(t)
	ctx := context.Background()

	res := s.Resolve(ctx, m, match.CauseResign, match.Outcome{WinnerSide: match.Side2})
	if res.Results[0].Result != "loss" || res.Results[1].Result != "win" {
		t.Fatalf("unexpected results: %+v", res.Results)
	}
	if res.Results[0].RatingDelta+res.Results[1].RatingDelta != 0 {
		t.Fatalf("deltas not zero-sum: %+v", res.Results)
	}
	if res.Results[1].RatingDelta != 10 {
		t.Fatalf("equal-rating win should be +10, got %v", res.Results[1].RatingDelta)
	}
	if res.Results[1].Coins != CoinsWin || res.Results[0].Coins != 0 {
		t.Fatalf("coin schedule wrong: %+v", res.Results)
	}

	winner, err := store.Get(ctx, "u2")
	if err != nil {
		t.Fatalf("Get winner: %v", err)
	}
	if winner.Rating != 1210 || winner.Wins != 1 || winner.Coins != CoinsWin {
		t.Fatalf("winner record not updated: %+v", winner)
	}
	if len(winner.History) != 1 || winner.History[0].EndReason != "resign" {
		t.Fatalf("winner history wrong: %+v", winner.History)
	}
	loser, _ := store.Get(ctx, "u1")
	if loser.Rating != 1190 || loser.Losses != 1 {
		t.Fatalf("loser record not updated: %+v", loser)
	}
	if loser.History[0].Result != "loss" || loser.History[0].Opponent != "Bob" {
		t.Fatalf("loser history wrong: %+v", loser.History)
	}
}

func TestResolveIsIdempotentPerMatch(t *testing.T) {
	s, store := newTestService(t)
	_, m := newRankedMatch(t)
	ctx := context.Background()

	s.Resolve(ctx, m, match.CauseResign, match.Outcome{WinnerSide: match.Side2})
	// A duplicate resolution (e.g. replayed trigger) must not double-apply:
	// the durable mutation is keyed by match ID.
	s.Resolve(ctx, m, match.CauseTimeout, match.Outcome{WinnerSide: match.Side2})

	rec, _ := store.Get(ctx, "u2")
	if rec.Wins != 1 || len(rec.History) != 1 {
		t.Fatalf("duplicate resolution double-applied: wins=%d history=%d", rec.Wins, len(rec.History))
	}
	if rec.Rating != 1210 {
		t.Fatalf("rating double-applied: %v", rec.Rating)
	}
}

func TestResolveUnrankedSkipsRatings(t *testing.T) {
	s, store := newTestService(t)
	reg := match.NewRegistry(0)
	m := reg.Create(queue.ModeUnranked,
		match.Player{ConnID: "c1", UserID: "u1", DisplayName: "Alice", Rating: 1200},
		match.Player{ConnID: "c2", UserID: "u2", DisplayName: "Bob", Rating: 1900},
	)
	ctx := context.Background()

	res := s.Resolve(ctx, m, match.CauseNatural, match.Outcome{WinnerSide: match.Side1})
	if res.Results[0].RatingDelta != 0 || res.Results[1].RatingDelta != 0 {
		t.Fatalf("unranked match moved ratings: %+v", res.Results)
	}
	rec, _ := store.Get(ctx, "u1")
	if rec.Rating != 1200 {
		t.Fatalf("unranked rating changed: %v", rec.Rating)
	}
	if rec.Wins != 1 || rec.Coins != CoinsWin {
		t.Fatalf("counters and coins still apply for unranked: %+v", rec)
	}
}

func TestResolveDraw(t *testing.T) {
	s, store := newTestService(t)
	_, m := newRankedMatch(t)
	ctx := context.Background()

	res := s.Resolve(ctx, m, match.CauseNatural, match.Outcome{Draw: true})
	if res.Results[0].Result != "draw" || res.Results[1].Result != "draw" {
		t.Fatalf("expected draws: %+v", res.Results)
	}
	if res.IsUpset {
		t.Fatalf("a draw is never an upset")
	}
	if res.Results[0].Coins != CoinsDraw {
		t.Fatalf("draw coins wrong: %+v", res.Results[0])
	}
	rec, _ := store.Get(ctx, "u1")
	if rec.Draws != 1 || rec.Streak != 0 {
		t.Fatalf("draw bookkeeping wrong: %+v", rec)
	}
}

func TestResolveUsesLatestStoredRating(t *testing.T) {
	s, store := newTestService(t)
	_, m := newRankedMatch(t)
	ctx := context.Background()

	// The durable record moved since the match snapshot was taken.
	rec, _ := store.Get(ctx, "u1")
	rec.Rating = 1000
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	res := s.Resolve(ctx, m, match.CauseNatural, match.Outcome{WinnerSide: match.Side1})
	// 1000 beating 1200 is an upset: doubled delta.
	if !res.IsUpset {
		t.Fatalf("expected upset from latest stored ratings")
	}
	if res.Results[0].RatingDelta <= 10 {
		t.Fatalf("expected doubled delta, got %v", res.Results[0].RatingDelta)
	}
}

func TestResolveAnonymousSeat(t *testing.T) {
	s, _ := newTestService(t)
	reg := match.NewRegistry(0)
	m := reg.Create(queue.ModeUnranked,
		match.Player{ConnID: "c1", DisplayName: "Guest", Rating: 1200},
		match.Player{ConnID: "c2", UserID: "u2", DisplayName: "Bob", Rating: 1200},
	)
	ctx := context.Background()

	res := s.Resolve(ctx, m, match.CauseAbandon, match.Outcome{WinnerSide: match.Side2})
	if res.PersistWarning {
		t.Fatalf("anonymous seat must not raise a persistence warning")
	}
	if res.Results[1].Result != "win" {
		t.Fatalf("unexpected result: %+v", res.Results[1])
	}
}

func TestResolvePersistFailureStillDelivers(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	store, err := playerstore.NewStore(fmt.Sprintf("redis://%s/0", mr.Addr()), 1200)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	s := NewService(store, nil, rating.NewEngine(20, 100, 3500, 2))
	_, m := newRankedMatch(t)
	mr.Close() // every durable write from here on fails

	res := s.Resolve(context.Background(), m, match.CauseResign, match.Outcome{WinnerSide: match.Side1})
	if !res.PersistWarning {
		t.Fatal("exhausted persistence must surface as a warning")
	}
	if res.Results[0].Result != "win" || res.Results[0].RatingDelta != 10 {
		t.Fatalf("outcome must still be computed and delivered: %+v", res.Results[0])
	}
}
