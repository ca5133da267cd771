package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tbellem/chess-arena/internal/arena"
	"github.com/tbellem/chess-arena/internal/obslog"
	"github.com/tbellem/chess-arena/pkg/arenadto"
)

const (
	writeTimeout = 10 * time.Second
	egressBuffer = 64
)

// client is one accepted connection. Writes go through a buffered egress
// channel drained by a single goroutine per connection, so match fan-out
// never interleaves frames.
type client struct {
	id     string
	conn   *websocket.Conn
	egress chan arenadto.Envelope
	closed chan struct{}
	once   sync.Once
}

func (c *client) shutdown() {
	c.once.Do(func() { close(c.closed) })
}

// Hub accepts websocket connections and bridges them onto the session
// core's event channel. It is the core's Sender: delivery to a connection
// that has already gone away is a silent no-op.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*client

	submit func(arena.Event)
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*client)}
}

// Bind wires the hub to the core's inbound channel. Must be called before
// the first Accept; New-time wiring is circular because the core needs the
// hub as its Sender.
func (h *Hub) Bind(submit func(arena.Event)) {
	h.submit = submit
}

// Send implements arena.Sender.
func (h *Hub) Send(connID, event string, payload any) {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.enqueue(c, event, payload)
}

// Broadcast implements arena.Sender.
func (h *Hub) Broadcast(event string, payload any) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.enqueue(c, event, payload)
	}
}

func (h *Hub) enqueue(c *client, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		obslog.L().Error("egress_marshal_failed", zap.String("event", event), zap.Error(err))
		return
	}
	env := arenadto.Envelope{Type: event, Payload: raw}
	select {
	case c.egress <- env:
	case <-c.closed:
	default:
		// a full egress buffer means the peer stopped reading; cut it loose
		obslog.L().Warn("egress_overflow", zap.String("conn_id", c.id), zap.String("event", event))
		c.shutdown()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and runs the connection until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		egress: make(chan arenadto.Envelope, egressBuffer),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	obslog.L().Info("ws_open", zap.String("conn_id", c.id))

	ctx, cancel := context.WithCancel(r.Context())
	go h.writeLoop(ctx, c, cancel)
	h.readLoop(ctx, c)

	cancel()
	c.shutdown()
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	// the core tears down presence, queue membership and any live match
	h.submit(arena.Event{ConnID: c.id, Type: arena.EvDisconnect})
	obslog.L().Info("ws_close", zap.String("conn_id", c.id))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var env arenadto.Envelope
		if err := wsjson.Read(ctx, c.conn, &env); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				obslog.L().Info("ws_read_end", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		if env.Type == "" || env.Type == arena.EvDisconnect {
			continue
		}
		h.submit(arena.Event{ConnID: c.id, Type: env.Type, Payload: env.Payload})
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case env := <-c.egress:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, env)
			wcancel()
			if err != nil {
				obslog.L().Info("ws_write_end", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		}
	}
}
