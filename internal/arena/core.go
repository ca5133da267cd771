package arena

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/match"
	"github.com/tbellem/chess-arena/internal/msgcat"
	"github.com/tbellem/chess-arena/internal/obslog"
	"github.com/tbellem/chess-arena/internal/presence"
	"github.com/tbellem/chess-arena/internal/queue"
	"github.com/tbellem/chess-arena/internal/resolver"
	"github.com/tbellem/chess-arena/internal/rules"
	"github.com/tbellem/chess-arena/pkg/arenadto"
)

// Options tune the session core.
type Options struct {
	DefaultRating float64
	DefaultSpread float64
	ValidateMoves bool
}

// Core is the session orchestrator: presence, matchmaking, match relay and
// end-of-game resolution behind one inbound event channel. A single
// dispatcher goroutine consumes events; termination check-and-set happens
// synchronously inside the handler, before the asynchronous resolution
// starts, which is what makes racing termination triggers safe.
type Core struct {
	opts    Options
	sender  Sender
	queues  *queue.Service
	matches *match.Registry
	resolve *resolver.Service
	oracle  rules.Oracle
	catalog *msgcat.Catalog

	pres *presence.Registry

	events    chan Event
	resolveWG sync.WaitGroup
}

func New(opts Options, sender Sender, queues *queue.Service, matches *match.Registry, res *resolver.Service, oracle rules.Oracle, catalog *msgcat.Catalog) *Core {
	if opts.DefaultRating <= 0 {
		opts.DefaultRating = 1200
	}
	if opts.DefaultSpread <= 0 {
		opts.DefaultSpread = 200
	}
	if oracle == nil {
		oracle = rules.AllowAll{}
	}
	c := &Core{
		opts:    opts,
		sender:  sender,
		queues:  queues,
		matches: matches,
		resolve: res,
		oracle:  oracle,
		catalog: catalog,
		events:  make(chan Event, 256),
	}
	c.pres = presence.NewRegistry(func(roster []presence.Info) {
		sender.Broadcast(arenadto.EvRosterUpdate, rosterPayload(roster))
	})
	return c
}

// Presence exposes the registry for status endpoints.
func (c *Core) Presence() *presence.Registry { return c.pres }

// Submit queues an inbound event for the dispatcher.
func (c *Core) Submit(ev Event) {
	c.events <- ev
}

// Run consumes events until ctx is cancelled, then waits for in-flight
// resolutions to finish.
func (c *Core) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.resolveWG.Wait()
			return
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

// dispatch routes one event. A panicking handler degrades to a logged
// error plus a best-effort error event; the process never dies on input.
func (c *Core) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("handler_panic",
				zap.String("event", ev.Type),
				zap.String("conn_id", ev.ConnID),
				zap.Any("panic", r),
			)
			c.sendError(ev.ConnID, "internal error")
		}
	}()

	switch ev.Type {
	case arenadto.EvConnect:
		c.handleConnect(ev)
	case arenadto.EvRoster:
		c.handleRoster(ev)
	case arenadto.EvJoinQueue:
		c.handleJoinQueue(ev)
	case arenadto.EvLeaveQueue:
		c.handleLeaveQueue(ev)
	case arenadto.EvMove:
		c.handleMove(ev)
	case arenadto.EvChat:
		c.handleChat(ev)
	case arenadto.EvResign:
		c.handleResign(ev)
	case arenadto.EvTimeout:
		c.handleTimeout(ev)
	case arenadto.EvNaturalEnd:
		c.handleNaturalEnd(ev)
	case EvDisconnect:
		c.handleDisconnect(ev)
	default:
		obslog.L().Warn("unknown_event", zap.String("event", ev.Type), zap.String("conn_id", ev.ConnID))
		c.sendError(ev.ConnID, "unknown event type")
	}
}

func (c *Core) handleConnect(ev Event) {
	var p arenadto.Connect
	if err := json.Unmarshal(ev.Payload, &p); err != nil || strings.TrimSpace(p.DisplayName) == "" {
		c.sendError(ev.ConnID, "connect requires display_name")
		return
	}
	rating := c.opts.DefaultRating
	// a client-supplied rating is honored only for authenticated identities
	if strings.TrimSpace(p.UserID) != "" && p.Rating != nil && *p.Rating > 0 {
		rating = *p.Rating
	}
	c.pres.Join(ev.ConnID, p.UserID, p.DisplayName, rating)
	c.sender.Send(ev.ConnID, arenadto.EvQueueStats, c.stats())
}

func (c *Core) handleRoster(ev Event) {
	c.sender.Send(ev.ConnID, arenadto.EvRosterUpdate, rosterPayload(c.pres.Snapshot()))
}

func (c *Core) handleJoinQueue(ev Event) {
	var p arenadto.JoinQueue
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		c.sendError(ev.ConnID, "malformed join_queue payload")
		return
	}
	var mode queue.Mode
	switch p.Mode {
	case string(queue.ModeRanked):
		mode = queue.ModeRanked
	case string(queue.ModeUnranked):
		mode = queue.ModeUnranked
	default:
		c.sendError(ev.ConnID, "mode must be ranked or unranked")
		return
	}

	info, ok := c.pres.Get(ev.ConnID)
	if !ok {
		c.sendError(ev.ConnID, "connect before joining a queue")
		return
	}
	if info.Status == presence.StatusInGame {
		c.sendError(ev.ConnID, "already in a match")
		return
	}

	spread := c.opts.DefaultSpread
	if p.Spread != nil && *p.Spread > 0 {
		spread = *p.Spread
	}
	pair := c.queues.Enqueue(queue.PlayerSnapshot{
		ConnID:      info.ConnID,
		UserID:      info.UserID,
		DisplayName: info.DisplayName,
		Rating:      info.Rating,
	}, mode, spread)
	c.pres.SetStatus(ev.ConnID, presence.StatusInQueue)
	c.broadcastStats()

	if pair != nil {
		c.startMatch(*pair)
	}
}

func (c *Core) handleLeaveQueue(ev Event) {
	if !c.queues.Remove(ev.ConnID) {
		// benign: leave after pairing or duplicate leave
		obslog.L().Info("queue_leave_miss", zap.String("conn_id", ev.ConnID))
		return
	}
	c.pres.SetStatus(ev.ConnID, presence.StatusOnline)
	c.broadcastStats()
}

// startMatch turns a pairing into a live match. A pairing that references a
// since-departed connection is discarded; nothing is re-queued.
func (c *Core) startMatch(pair queue.Pair) {
	if _, ok := c.pres.Get(pair.First.Player.ConnID); !ok {
		obslog.L().Warn("pair_discarded", zap.String("conn_id", pair.First.Player.ConnID))
		return
	}
	if _, ok := c.pres.Get(pair.Second.Player.ConnID); !ok {
		obslog.L().Warn("pair_discarded", zap.String("conn_id", pair.Second.Player.ConnID))
		return
	}

	m := c.matches.Create(pair.Mode,
		match.Player{
			ConnID:      pair.First.Player.ConnID,
			UserID:      pair.First.Player.UserID,
			DisplayName: pair.First.Player.DisplayName,
			Rating:      pair.First.Player.Rating,
		},
		match.Player{
			ConnID:      pair.Second.Player.ConnID,
			UserID:      pair.Second.Player.UserID,
			DisplayName: pair.Second.Player.DisplayName,
			Rating:      pair.Second.Player.Rating,
		},
	)
	c.pres.SetStatus(pair.First.Player.ConnID, presence.StatusInGame)
	c.pres.SetStatus(pair.Second.Player.ConnID, presence.StatusInGame)

	c.sendMatchFound(m, match.Side1)
	c.sendMatchFound(m, match.Side2)
	c.broadcastStats()
}

func (c *Core) sendMatchFound(m *match.Match, side match.Side) {
	me := m.Player(side)
	opp := m.Player(side.Opponent())
	c.sender.Send(me.ConnID, arenadto.EvMatchFound, arenadto.MatchFound{
		MatchID: m.ID,
		Mode:    string(m.Mode),
		Side:    int(side),
		Opponent: arenadto.OpponentInfo{
			DisplayName: opp.DisplayName,
			Rating:      opp.Rating,
		},
		Notice: c.notice("match.found", map[string]any{
			"Opponent": opp.DisplayName,
			"Rating":   opp.Rating,
			"Side":     int(side),
		}),
	})
}

func (c *Core) handleMove(ev Event) {
	var p arenadto.SubmitMove
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.MatchID == "" || strings.TrimSpace(p.Move) == "" {
		c.sendError(ev.ConnID, "submit_move requires match_id and move")
		return
	}
	m, ok := c.matches.Get(p.MatchID)
	if !ok {
		// expected under benign duplicate delivery after teardown
		obslog.L().Info("move_match_gone", zap.String("match_id", p.MatchID), zap.String("conn_id", ev.ConnID))
		return
	}

	if c.opts.ValidateMoves {
		history := movePayloads(m.Moves())
		if err := c.oracle.ValidateMove(history, p.Move); err != nil {
			c.sendError(ev.ConnID, "illegal move")
			return
		}
	}

	res, err := m.Relay(ev.ConnID, c.userIDOf(ev.ConnID), p.Move)
	if err != nil {
		c.sendError(ev.ConnID, "not a participant of this match")
		return
	}
	c.sender.Send(res.OpponentConnID, arenadto.EvOpponentMove, arenadto.OpponentMove{
		MatchID: m.ID,
		Index:   res.Move.Index,
		Move:    res.Move.Payload,
	})
}

func (c *Core) handleChat(ev Event) {
	var p arenadto.Chat
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.MatchID == "" || strings.TrimSpace(p.Text) == "" {
		c.sendError(ev.ConnID, "chat requires match_id and text")
		return
	}
	m, ok := c.matches.Get(p.MatchID)
	if !ok {
		obslog.L().Info("chat_match_gone", zap.String("match_id", p.MatchID))
		return
	}
	msg, oppConn, err := m.RelayChat(ev.ConnID, c.userIDOf(ev.ConnID), p.Text)
	if err != nil {
		c.sendError(ev.ConnID, "not a participant of this match")
		return
	}
	c.sender.Send(oppConn, arenadto.EvChatRelay, arenadto.ChatRelay{
		MatchID: m.ID,
		From:    msg.From,
		Text:    msg.Text,
	})
}

func (c *Core) handleResign(ev Event) {
	m, side, ok := c.resolveMatchRef(ev, "resign")
	if !ok {
		return
	}
	c.endMatch(m, match.CauseResign, match.Outcome{WinnerSide: side.Opponent()})
}

// handleTimeout treats report_timeout as the sender reporting its own clock
// expiry, mirroring resign: the reporter loses. Racing reports from both
// sides resolve through the terminate check-and-set.
func (c *Core) handleTimeout(ev Event) {
	m, side, ok := c.resolveMatchRef(ev, "report_timeout")
	if !ok {
		return
	}
	c.endMatch(m, match.CauseTimeout, match.Outcome{WinnerSide: side.Opponent()})
}

func (c *Core) handleNaturalEnd(ev Event) {
	var p arenadto.NaturalEnd
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.MatchID == "" {
		c.sendError(ev.ConnID, "report_natural_end requires match_id")
		return
	}
	var out match.Outcome
	switch p.Result {
	case "draw":
		out = match.Outcome{Draw: true}
	case "decisive":
		if p.WinnerSide != int(match.Side1) && p.WinnerSide != int(match.Side2) {
			c.sendError(ev.ConnID, "decisive result requires winner_side 1 or 2")
			return
		}
		out = match.Outcome{WinnerSide: match.Side(p.WinnerSide)}
	default:
		c.sendError(ev.ConnID, "result must be decisive or draw")
		return
	}
	m, ok := c.matches.Get(p.MatchID)
	if !ok {
		obslog.L().Info("end_match_gone", zap.String("match_id", p.MatchID))
		return
	}
	if m.ResolveSender(ev.ConnID, c.userIDOf(ev.ConnID)) == match.SideNone {
		c.sendError(ev.ConnID, "not a participant of this match")
		return
	}
	c.endMatch(m, match.CauseNatural, out)
}

func (c *Core) handleDisconnect(ev Event) {
	leftQueue := c.queues.Remove(ev.ConnID)

	if m, ok := c.matches.FindByConn(ev.ConnID); ok {
		if side := m.SideOfConn(ev.ConnID); side != match.SideNone {
			c.endMatch(m, match.CauseAbandon, match.Outcome{WinnerSide: side.Opponent()})
		}
	}
	c.pres.Remove(ev.ConnID)
	if leftQueue {
		c.broadcastStats()
	}
}

// resolveMatchRef parses a {match_id} payload and maps the sender to a
// seat. Not-found matches are benign no-ops.
func (c *Core) resolveMatchRef(ev Event, what string) (*match.Match, match.Side, bool) {
	var p arenadto.MatchRef
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.MatchID == "" {
		c.sendError(ev.ConnID, what+" requires match_id")
		return nil, match.SideNone, false
	}
	m, ok := c.matches.Get(p.MatchID)
	if !ok {
		obslog.L().Info("end_match_gone", zap.String("match_id", p.MatchID), zap.String("event", what))
		return nil, match.SideNone, false
	}
	side := m.ResolveSender(ev.ConnID, c.userIDOf(ev.ConnID))
	if side == match.SideNone {
		c.sendError(ev.ConnID, "not a participant of this match")
		return nil, match.SideNone, false
	}
	return m, side, true
}

// endMatch performs the synchronous terminate check-and-set, then hands the
// rest to an asynchronous resolution. The second and later triggers for the
// same match stop here.
func (c *Core) endMatch(m *match.Match, cause match.Cause, out match.Outcome) {
	if !m.Terminate(cause) {
		prior, _ := m.Terminated()
		obslog.L().Info("match_end_duplicate",
			zap.String("match_id", m.ID),
			zap.String("cause", string(cause)),
			zap.String("prior_cause", string(prior)),
		)
		return
	}
	obslog.L().Info("match_end",
		zap.String("match_id", m.ID),
		zap.String("cause", string(cause)),
	)

	c.resolveWG.Add(1)
	go func() {
		defer c.resolveWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		res := c.resolve.Resolve(ctx, m, cause, out)
		c.notifyEnded(m, res)

		c.pres.SetStatus(m.Player(match.Side1).ConnID, presence.StatusOnline)
		c.pres.SetStatus(m.Player(match.Side2).ConnID, presence.StatusOnline)
		c.matches.Remove(m.ID)
	}()
}

func (c *Core) notifyEnded(m *match.Match, res *resolver.Resolution) {
	var winner, loser string
	for _, pr := range res.Results {
		switch pr.Result {
		case "win":
			winner = pr.Player.DisplayName
		case "loss":
			loser = pr.Player.DisplayName
		}
	}
	noticeKey := "match.ended." + string(res.Cause)
	if res.Results[0].Result == "draw" {
		noticeKey = "match.ended.draw"
	}
	notice := c.notice(noticeKey, map[string]any{
		"Winner": winner,
		"Loser":  loser,
		"Result": res.Results[0].Result,
	})

	for i, pr := range res.Results {
		connID := m.Player(res.Results[i].Side).ConnID
		c.sender.Send(connID, arenadto.EvMatchEnded, arenadto.MatchEnded{
			MatchID:     res.MatchID,
			Cause:       string(res.Cause),
			Result:      pr.Result,
			Winner:      winner,
			Loser:       loser,
			RatingDelta: pr.RatingDelta,
			NewRating:   pr.NewRating,
			Coins:       pr.Coins,
			Notice:      notice,
		})
		if res.PersistWarning {
			c.sender.Send(connID, arenadto.EvWarning, arenadto.Warning{
				Message: c.notice("persistence.warning", nil),
			})
		}
	}
}

func (c *Core) userIDOf(connID string) string {
	info, ok := c.pres.Get(connID)
	if !ok {
		return ""
	}
	return info.UserID
}

func (c *Core) stats() arenadto.QueueStats {
	st := c.queues.Stats()
	return arenadto.QueueStats{Ranked: st.Ranked, Unranked: st.Unranked}
}

func (c *Core) broadcastStats() {
	c.sender.Broadcast(arenadto.EvQueueStats, c.stats())
}

func (c *Core) sendError(connID, msg string) {
	if connID == "" {
		return
	}
	c.sender.Send(connID, arenadto.EvError, arenadto.Error{Message: msg})
}

func (c *Core) notice(key string, data any) string {
	if c.catalog == nil {
		return ""
	}
	s, err := c.catalog.Render(key, data)
	if err != nil {
		obslog.L().Warn("notice_render_failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return s
}

func rosterPayload(roster []presence.Info) arenadto.RosterUpdate {
	out := arenadto.RosterUpdate{Players: make([]arenadto.PresenceEntry, 0, len(roster))}
	for _, p := range roster {
		out.Players = append(out.Players, arenadto.PresenceEntry{
			ConnID:      p.ConnID,
			DisplayName: p.DisplayName,
			Rating:      p.Rating,
			Status:      string(p.Status),
		})
	}
	return out
}

func movePayloads(moves []match.Move) []string {
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, mv.Payload)
	}
	return out
}
