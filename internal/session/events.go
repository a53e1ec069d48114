package session

import (
	"context"

	"github.com/stemsi/mocktest-backend/internal/model"
)

// EventType classifies what a subscriber is told.
type EventType string

const (
	EventPhase    EventType = "phase"
	EventTick     EventType = "tick"
	EventAnswer   EventType = "answer"
	EventFinished EventType = "finished"
)

// Event is pushed to subscribers after the loop applies a change.
type Event struct {
	Type     EventType             `json:"type"`
	Snapshot model.SessionSnapshot `json:"snapshot"`
	Answer   *model.AnswerRecord   `json:"answer,omitempty"`
	Summary  *model.ResultSummary  `json:"summary,omitempty"`
}

const subscriberBuffer = 16

// QuestionBank supplies the raw question set for a kind, in bank order.
type QuestionBank interface {
	ListQuestions(ctx context.Context, kind model.TestKind) ([]model.Question, error)
}

// ProgressSink receives each accepted answer of a signed-in user.
type ProgressSink interface {
	RecordProgress(ctx context.Context, userID string, rec model.AnswerRecord) error
}

// OrderRecorder receives the ordering computed for a signed-in user.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, order model.QuestionOrder) error
}

// ResultRecorder receives every finished session's summary. userID is empty
// for anonymous sessions.
type ResultRecorder interface {
	RecordResult(ctx context.Context, sessionID, userID string, summary model.ResultSummary) error
}
