package ops

import (
	"context"
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/tbellem/chess-arena/internal/obslog"
)

// Stats is the operational snapshot served at /stats.
type Stats struct {
	Connections   int    `json:"connections"`
	Online        int    `json:"online"`
	QueuedRanked  int    `json:"queued_ranked"`
	QueuedUnrank  int    `json:"queued_unranked"`
	ActiveMatches int    `json:"active_matches"`
	Uptime        string `json:"uptime"`
}

// Server is the sidecar HTTP endpoint for health checks and live counters.
// It never touches game state beyond the read-only snapshot func.
type Server struct {
	addr     string
	snapshot func() Stats
	started  time.Time
	srv      *fasthttp.Server
}

func NewServer(addr string, snapshot func() Stats) *Server {
	s := &Server{addr: addr, snapshot: snapshot, started: time.Now()}
	s.srv = &fasthttp.Server{
		Handler:      s.handle,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Name:         "arena-ops",
	}
	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe(s.addr) }()
	obslog.L().Info("ops_listen", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		return s.srv.Shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/healthz":
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	case "/stats":
		st := s.snapshot()
		st.Uptime = time.Since(s.started).Round(time.Second).String()
		body, err := json.Marshal(st)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}
