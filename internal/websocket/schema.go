package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing   Action = "ping"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventClock    Event = "clock"
	EventFinished Event = "finished"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// ClockPush is the periodic countdown frame streamed to the client.
type ClockPush struct {
	Event            Event  `json:"event"`
	RemainingSeconds int    `json:"remaining_seconds"`
	SessionStatus    string `json:"session_status"`
}

// FinishedPush notifies the client that the attempt has been sealed,
// either by manual submission or timer expiry.
type FinishedPush struct {
	Event Event  `json:"event"`
	Via   string `json:"via"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
