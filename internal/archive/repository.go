package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/tbellem/chess-arena/internal/match"
)

// GameRow is one finished game as archived to Postgres.
type GameRow struct {
	MatchID      string
	Mode         string
	Player1ID    string
	Player1Name  string
	Player2ID    string
	Player2Name  string
	Result       string
	Cause        string
	MoveCount    int
	Moves        []match.Move
	Rating1      float64
	Rating2      float64
	RatingDelta1 float64
	RatingDelta2 float64
	StartedAt    time.Time
	EndedAt      time.Time
}

// Repository archives finished games. Optional: a nil *Repository is a
// no-op, so the session layer runs without a database when DATABASE_URL is
// unset.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveGame inserts a finished game row. Inserting the same match twice is a
// no-op, which keeps duplicate end-of-game deliveries harmless.
func (r *Repository) SaveGame(ctx context.Context, row *GameRow) error {
	if r == nil || r.db == nil || row == nil {
		return nil
	}

	movesRaw, err := json.Marshal(row.Moves)
	if err != nil {
		return fmt.Errorf("marshal move log: %w", err)
	}
	duration := row.EndedAt.Sub(row.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	const q = `INSERT INTO arena_games (
	    match_id, mode,
	    player1_id, player1_name, player2_id, player2_name,
	    result, cause, move_count, moves,
	    rating1, rating2, rating_delta1, rating_delta2,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13,$14,$15,$16,$17
	  ) ON CONFLICT (match_id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, q,
		row.MatchID, row.Mode,
		row.Player1ID, row.Player1Name, row.Player2ID, row.Player2Name,
		row.Result, row.Cause, row.MoveCount, string(movesRaw),
		row.Rating1, row.Rating2, row.RatingDelta1, row.RatingDelta2,
		row.StartedAt, row.EndedAt, duration,
	)
	if err != nil {
		return fmt.Errorf("insert arena game: %w", err)
	}
	return nil
}

// RecentGames lists a user's archived games, newest first.
func (r *Repository) RecentGames(ctx context.Context, userID string, limit int) ([]*GameRow, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT
	    match_id, mode,
	    player1_id, player1_name, player2_id, player2_name,
	    result, cause, move_count, moves,
	    rating1, rating2, rating_delta1, rating_delta2,
	    started_at, ended_at
	  FROM arena_games
	  WHERE player1_id = $1 OR player2_id = $1
	  ORDER BY ended_at DESC
	  LIMIT $2`

	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select arena games: %w", err)
	}
	defer rows.Close()

	out := make([]*GameRow, 0, limit)
	for rows.Next() {
		var (
			row      GameRow
			movesRaw []byte
		)
		if err := rows.Scan(
			&row.MatchID, &row.Mode,
			&row.Player1ID, &row.Player1Name, &row.Player2ID, &row.Player2Name,
			&row.Result, &row.Cause, &row.MoveCount, &movesRaw,
			&row.Rating1, &row.Rating2, &row.RatingDelta1, &row.RatingDelta2,
			&row.StartedAt, &row.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("scan arena game: %w", err)
		}
		if err := json.Unmarshal(movesRaw, &row.Moves); err != nil {
			return nil, fmt.Errorf("unmarshal move log: %w", err)
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}
