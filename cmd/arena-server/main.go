package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/arena"
	"github.com/tbellem/chess-arena/internal/archive"
	appcfg "github.com/tbellem/chess-arena/internal/config"
	"github.com/tbellem/chess-arena/internal/match"
	"github.com/tbellem/chess-arena/internal/msgcat"
	"github.com/tbellem/chess-arena/internal/obslog"
	"github.com/tbellem/chess-arena/internal/ops"
	"github.com/tbellem/chess-arena/internal/playerstore"
	"github.com/tbellem/chess-arena/internal/queue"
	"github.com/tbellem/chess-arena/internal/rating"
	"github.com/tbellem/chess-arena/internal/resolver"
	"github.com/tbellem/chess-arena/internal/rules"
	"github.com/tbellem/chess-arena/internal/ws"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	store, err := playerstore.NewStore(cfg.RedisURL, cfg.RatingDefault)
	if err != nil {
		obslog.L().Fatal("player store init failed", zap.Error(err))
	}

	// the archive is optional; without DATABASE_URL finished games stay
	// in Redis history only
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Fatal("archive init failed", zap.Error(err))
		}
		defer repo.Close()
	}

	catalog, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		obslog.L().Fatal("message catalog init failed", zap.Error(err))
	}

	var oracle rules.Oracle = rules.AllowAll{}
	if cfg.ValidateMoves {
		oracle = rules.ChessOracle{}
	}

	engine := rating.NewEngine(cfg.RatingK, cfg.RatingMin, cfg.RatingMax, cfg.UpsetMultiplier)
	queues := queue.NewService(cfg.QueueSpreadDefault)
	matches := match.NewRegistry(cfg.MatchGrace)
	res := resolver.NewService(store, repo, engine)

	hub := ws.NewHub()
	core := arena.New(arena.Options{
		DefaultRating: cfg.RatingDefault,
		DefaultSpread: cfg.QueueSpreadDefault,
		ValidateMoves: cfg.ValidateMoves,
	}, hub, queues, matches, res, oracle, catalog)
	hub.Bind(core.Submit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go core.Run(ctx)

	opsSrv := ops.NewServer(cfg.OpsAddr, func() ops.Stats {
		st := queues.Stats()
		return ops.Stats{
			Connections:   hub.Count(),
			Online:        core.Presence().Count(),
			QueuedRanked:  st.Ranked,
			QueuedUnrank:  st.Unranked,
			ActiveMatches: matches.Count(),
		}
	})
	go func() {
		if err := opsSrv.Run(ctx); err != nil {
			obslog.L().Error("ops server stopped", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	obslog.L().Info("arena_listen", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		obslog.L().Fatal("server error", zap.Error(err))
	}
}
