package arenadto

import "encoding/json"

// Inbound event types. Transport-agnostic: any carrier that can deliver an
// Envelope per message works.
const (
	EvConnect    = "connect_with_identity"
	EvRoster     = "request_roster"
	EvJoinQueue  = "join_queue"
	EvLeaveQueue = "leave_queue"
	EvMove       = "submit_move"
	EvChat       = "chat"
	EvResign     = "resign"
	EvTimeout    = "report_timeout"
	EvNaturalEnd = "report_natural_end"
)

// Outbound event types.
const (
	EvRosterUpdate = "roster_update"
	EvQueueStats   = "queue_stats"
	EvMatchFound   = "match_found"
	EvOpponentMove = "opponent_move"
	EvChatRelay    = "chat"
	EvMatchEnded   = "match_ended"
	EvWarning      = "warning"
	EvError        = "error"
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
