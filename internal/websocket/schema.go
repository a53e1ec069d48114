package websocket

import (
	"github.com/stemsi/mocktest-backend/internal/model"
	"github.com/stemsi/mocktest-backend/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionChoice  Action = "choice"
	ActionText    Action = "text"
	ActionAdvance Action = "advance"
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionFinish  Action = "finish"
	ActionPing    Action = "ping"
)

// RequestPayload carries every action; fields not used by an action are ignored.
type RequestPayload struct {
	Action      Action `json:"action"`
	OptionIndex *int   `json:"option_index,omitempty"`
	Text        string `json:"text,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventAck      Event = "ack"
	EventPong     Event = "pong"
	EventPhase    Event = Event(session.EventPhase)
	EventTick     Event = Event(session.EventTick)
	EventAnswer   Event = Event(session.EventAnswer)
	EventFinished Event = Event(session.EventFinished)
)

// SessionEventResponse mirrors a session event to the client.
type SessionEventResponse struct {
	Event    Event                 `json:"event"`
	Snapshot model.SessionSnapshot `json:"snapshot"`
	Answer   *model.AnswerRecord   `json:"answer,omitempty"`
	Summary  *model.ResultSummary  `json:"summary,omitempty"`
}

// FromSessionEvent converts a session event for the wire.
func FromSessionEvent(ev session.Event) SessionEventResponse {
	return SessionEventResponse{
		Event:    Event(ev.Type),
		Snapshot: ev.Snapshot,
		Answer:   ev.Answer,
		Summary:  ev.Summary,
	}
}

// AckResponse confirms an action was applied.
type AckResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action"`
}

type ErrorResponse struct {
	Event  Event  `json:"event"`
	Action Action `json:"action,omitempty"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
