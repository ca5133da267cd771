package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/archive"
	"github.com/tbellem/chess-arena/internal/match"
	"github.com/tbellem/chess-arena/internal/obslog"
	"github.com/tbellem/chess-arena/internal/playerstore"
	"github.com/tbellem/chess-arena/internal/queue"
	"github.com/tbellem/chess-arena/internal/rating"
)

// Coin rewards by result. Losses pay nothing.
const (
	CoinsWin  int64 = 250
	CoinsDraw int64 = 50
)

// PlayerResult is one side's final accounting for a finished match.
type PlayerResult struct {
	Player      match.Player
	Side        match.Side
	Result      string // win | loss | draw
	RatingDelta float64
	NewRating   float64
	Coins       int64
}

// Resolution is the full outcome of a resolved match. PersistWarning is set
// when a durable write failed after all retries; the outcome itself is
// still delivered.
type Resolution struct {
	MatchID        string
	Mode           queue.Mode
	Cause          match.Cause
	Results        [2]PlayerResult // index 0 is side 1
	IsUpset        bool
	PersistWarning bool
}

// Service turns a terminated match into rating updates, history entries,
// and archived rows. The caller guarantees Resolve runs at most once per
// match (the match's terminate check-and-set); the durable writes are
// additionally keyed by match ID so even a duplicate resolution cannot
// double-apply.
type Service struct {
	store  *playerstore.Store
	repo   *archive.Repository // optional
	engine rating.Engine
}

func NewService(store *playerstore.Store, repo *archive.Repository, engine rating.Engine) *Service {
	return &Service{store: store, repo: repo, engine: engine}
}

// Resolve computes and persists the final results for a terminated match.
func (s *Service) Resolve(ctx context.Context, m *match.Match, cause match.Cause, out match.Outcome) *Resolution {
	p1 := m.Player(match.Side1)
	p2 := m.Player(match.Side2)
	endedAt := time.Now()
	duration := endedAt.Sub(m.CreatedAt)

	res := &Resolution{
		MatchID: m.ID,
		Mode:    m.Mode,
		Cause:   cause,
		Results: [2]PlayerResult{
			{Player: p1, Side: match.Side1, Result: resultTag(match.Side1, out)},
			{Player: p2, Side: match.Side2, Result: resultTag(match.Side2, out)},
		},
	}
	res.Results[0].Coins = coinsFor(res.Results[0].Result)
	res.Results[1].Coins = coinsFor(res.Results[1].Result)

	// Ratings move for ranked matches only, computed exactly once from each
	// player's most recently known rating. Retried persistence reapplies
	// these numbers as-is, never recomputing.
	r1, r2 := s.latestRating(ctx, p1), s.latestRating(ctx, p2)
	res.Results[0].NewRating = r1
	res.Results[1].NewRating = r2
	if m.Mode == queue.ModeRanked {
		outcome := s.engine.Compute(r1, r2, ratingResult(out))
		res.Results[0].RatingDelta = outcome.Delta1
		res.Results[0].NewRating = outcome.NewRating1
		res.Results[1].RatingDelta = outcome.Delta2
		res.Results[1].NewRating = outcome.NewRating2
		res.IsUpset = outcome.IsUpset
	}

	moveCount := m.MoveCount()
	for i := range res.Results {
		pr := &res.Results[i]
		opp := res.Results[1-i].Player
		if pr.Player.UserID == "" {
			continue // anonymous seat, nothing durable to update
		}
		entry := playerstore.HistoryEntry{
			MatchID:     m.ID,
			Opponent:    opp.DisplayName,
			Result:      pr.Result,
			EndReason:   string(cause),
			Mode:        string(m.Mode),
			RatingDelta: pr.RatingDelta,
			Coins:       pr.Coins,
			MoveCount:   moveCount,
			DurationMS:  duration.Milliseconds(),
			PlayedAt:    endedAt,
		}
		if err := s.persist(ctx, pr, entry); err != nil {
			res.PersistWarning = true
			obslog.L().Error("resolve_persist_failed",
				zap.String("match_id", m.ID),
				zap.String("user_id", pr.Player.UserID),
				zap.Error(err),
			)
		}
	}

	s.archiveGame(ctx, m, res, endedAt)

	obslog.L().Info("match_resolve",
		zap.String("match_id", m.ID),
		zap.String("mode", string(m.Mode)),
		zap.String("cause", string(cause)),
		zap.String("result1", res.Results[0].Result),
		zap.Float64("delta1", res.Results[0].RatingDelta),
		zap.Bool("upset", res.IsUpset),
		zap.Bool("persist_warning", res.PersistWarning),
	)
	return res
}

// persist applies one player's delta through the optimistic retry
// combinator. The whole mutation is gated on the match key: a record that
// already carries this match's history entry is left untouched.
func (s *Service) persist(ctx context.Context, pr *PlayerResult, entry playerstore.HistoryEntry) error {
	_, err := s.store.Update(ctx, pr.Player.UserID, playerstore.DefaultAttempts, func(rec *playerstore.Record) error {
		if rec.HasGame(entry.MatchID) {
			return nil
		}
		if rec.DisplayName == "" {
			rec.DisplayName = pr.Player.DisplayName
		}
		rec.Rating += pr.RatingDelta
		if rec.Rating > rec.PeakRating {
			rec.PeakRating = rec.Rating
		}
		rec.Coins += pr.Coins
		switch pr.Result {
		case "win":
			rec.Wins++
			if rec.StreakType == "win" {
				rec.Streak++
			} else {
				rec.Streak, rec.StreakType = 1, "win"
			}
		case "loss":
			rec.Losses++
			if rec.StreakType == "loss" {
				rec.Streak++
			} else {
				rec.Streak, rec.StreakType = 1, "loss"
			}
		default:
			rec.Draws++
			rec.Streak, rec.StreakType = 0, ""
		}
		rec.History = append(rec.History, entry)
		return nil
	})
	return err
}

func (s *Service) latestRating(ctx context.Context, p match.Player) float64 {
	if p.UserID == "" {
		return p.Rating
	}
	rec, err := s.store.Get(ctx, p.UserID)
	if err != nil {
		obslog.L().Warn("resolve_rating_read_failed",
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
		return p.Rating
	}
	return rec.Rating
}

func (s *Service) archiveGame(ctx context.Context, m *match.Match, res *Resolution, endedAt time.Time) {
	if s.repo == nil {
		return
	}
	p1, p2 := res.Results[0].Player, res.Results[1].Player
	row := &archive.GameRow{
		MatchID:      m.ID,
		Mode:         string(m.Mode),
		Player1ID:    p1.UserID,
		Player1Name:  p1.DisplayName,
		Player2ID:    p2.UserID,
		Player2Name:  p2.DisplayName,
		Result:       res.Results[0].Result,
		Cause:        string(res.Cause),
		MoveCount:    m.MoveCount(),
		Moves:        m.Moves(),
		Rating1:      res.Results[0].NewRating,
		Rating2:      res.Results[1].NewRating,
		RatingDelta1: res.Results[0].RatingDelta,
		RatingDelta2: res.Results[1].RatingDelta,
		StartedAt:    m.CreatedAt,
		EndedAt:      endedAt,
	}
	if err := s.repo.SaveGame(ctx, row); err != nil {
		obslog.L().Error("resolve_archive_failed",
			zap.String("match_id", m.ID),
			zap.Error(err),
		)
	}
}

func resultTag(side match.Side, out match.Outcome) string {
	if out.Draw {
		return "draw"
	}
	if out.WinnerSide == side {
		return "win"
	}
	return "loss"
}

func ratingResult(out match.Outcome) rating.Result {
	switch {
	case out.Draw:
		return rating.Draw
	case out.WinnerSide == match.Side1:
		return rating.Side1Win
	default:
		return rating.Side2Win
	}
}

func coinsFor(result string) int64 {
	switch result {
	case "win":
		return CoinsWin
	case "draw":
		return CoinsDraw
	default:
		return 0
	}
}
