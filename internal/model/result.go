package model

import "time"

// FinishReason records which path ended a session.
type FinishReason string

const (
	FinishReasonTimeout FinishReason = "timeout"
	FinishReasonManual  FinishReason = "manual"
)

// ResultSummary is derived from a finished session's answer log.
// Correct is only set for graded kinds.
type ResultSummary struct {
	Kind         TestKind       `json:"kind"`
	Graded       bool           `json:"graded"`
	Total        int            `json:"total"`
	Answered     int            `json:"answered"`
	Correct      *int           `json:"correct,omitempty"`
	FinishReason FinishReason   `json:"finish_reason,omitempty"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	ByQuestion   []AnswerRecord `json:"by_question"`
}

// QuestionOrder is the ordering computed for a signed-in user's session,
// kept so the permutation can be audited or reproduced.
type QuestionOrder struct {
	UserID      string   `json:"user_id"`
	Kind        TestKind `json:"kind"`
	Variant     int      `json:"variant"`
	Seed        uint64   `json:"seed"`
	QuestionIDs []string `json:"question_ids"`
}
