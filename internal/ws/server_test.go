package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/tbellem/chess-arena/internal/arena"
	"github.com/tbellem/chess-arena/pkg/arenadto"
)

type eventLog struct {
	mu     sync.Mutex
	events []arena.Event
}

func (l *eventLog) add(ev arena.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) waitFor(t *testing.T, typ string) arena.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		for _, ev := range l.events {
			if ev.Type == typ {
				l.mu.Unlock()
				return ev
			}
		}
		l.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s event within deadline", typ)
	return arena.Event{}
}

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn, ctx
}

func TestHubRoundTrip(t *testing.T) {
	hub := NewHub()
	log := &eventLog{}
	hub.Bind(func(ev arena.Event) {
		log.add(ev)
		if ev.Type == arenadto.EvConnect {
			hub.Send(ev.ConnID, arenadto.EvQueueStats, arenadto.QueueStats{Ranked: 3})
		}
	})

	conn, ctx := dialHub(t, hub)
	err := wsjson.Write(ctx, conn, arenadto.Envelope{
		Type:    arenadto.EvConnect,
		Payload: []byte(`{"display_name":"Alice"}`),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	var env arenadto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Type != arenadto.EvQueueStats {
		t.Fatalf("reply type = %s, want %s", env.Type, arenadto.EvQueueStats)
	}
	if !strings.Contains(string(env.Payload), `"ranked":3`) {
		t.Fatalf("unexpected payload: %s", env.Payload)
	}

	got := log.waitFor(t, arenadto.EvConnect)
	if got.ConnID == "" {
		t.Fatal("inbound event missing connection id")
	}
}

func TestHubEmitsDisconnect(t *testing.T) {
	hub := NewHub()
	log := &eventLog{}
	hub.Bind(log.add)

	conn, _ := dialHub(t, hub)
	if err := conn.Close(websocket.StatusNormalClosure, "done"); err != nil {
		t.Fatalf("close: %v", err)
	}

	ev := log.waitFor(t, arena.EvDisconnect)
	if ev.ConnID == "" {
		t.Fatal("disconnect event missing connection id")
	}
	deadline := time.Now().Add(time.Second)
	for hub.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Count() != 0 {
		t.Fatalf("connection still registered after close")
	}
}

func TestSendToUnknownConnIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Bind(func(arena.Event) {})
	hub.Send("nope", arenadto.EvError, arenadto.Error{Message: "x"})
}
