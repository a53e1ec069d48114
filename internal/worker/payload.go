package worker

import (
	"encoding/json"
	"time"
)

// ProgressPayload is one answer on persist_progress_queue.
type ProgressPayload struct {
	UserID           string    `json:"user_id"`
	QuestionID       string    `json:"question_id"`
	QuestionType     string    `json:"question_type"`
	Answer           string    `json:"answer"`
	IsCorrect        *bool     `json:"is_correct"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	AnsweredAt       time.Time `json:"answered_at"`
	Attempts         int       `json:"attempts,omitempty"`
}

// OrderPayload is one computed ordering on persist_question_order_queue.
type OrderPayload struct {
	UserID      string   `json:"user_id"`
	Kind        string   `json:"kind"`
	Variant     int      `json:"variant"`
	Seed        uint64   `json:"seed"`
	QuestionIDs []string `json:"question_ids"`
	Attempts    int      `json:"attempts,omitempty"`
}

// ResultPayload is one finished session on persist_results_queue.
// UserID is nil for anonymous sessions.
type ResultPayload struct {
	SessionID    string          `json:"session_id"`
	UserID       *string         `json:"user_id"`
	Kind         string          `json:"kind"`
	Graded       bool            `json:"graded"`
	Total        int             `json:"total"`
	Answered     int             `json:"answered"`
	Correct      *int            `json:"correct"`
	FinishReason string          `json:"finish_reason"`
	FinishedAt   time.Time       `json:"finished_at"`
	ByQuestion   json.RawMessage `json:"by_question"`
	Attempts     int             `json:"attempts,omitempty"`
}

func (p ProgressPayload) attempts() int { return p.Attempts }
func (p OrderPayload) attempts() int    { return p.Attempts }
func (p ResultPayload) attempts() int   { return p.Attempts }

func (p ProgressPayload) retried() ProgressPayload { p.Attempts++; return p }
func (p OrderPayload) retried() OrderPayload       { p.Attempts++; return p }
func (p ResultPayload) retried() ResultPayload     { p.Attempts++; return p }
