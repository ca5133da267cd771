package arena

import "encoding/json"

// EvDisconnect is the implicit inbound event the transport emits when a
// connection drops. It never arrives over the wire.
const EvDisconnect = "disconnect"

// Event is one tagged inbound event from a connection. All events flow
// through a single dispatcher goroutine, so handlers never race each other;
// only the asynchronous tails (persistence) overlap.
type Event struct {
	ConnID  string
	Type    string
	Payload json.RawMessage
}

// Sender delivers outbound events. The concrete transport implements it;
// sends to connections that no longer exist must be silent no-ops.
type Sender interface {
	Send(connID, event string, payload any)
	Broadcast(event string, payload any)
}
