package model

import (
	"strconv"
	"time"
)

// AnswerValue holds either a selected option index or free text.
type AnswerValue struct {
	OptionIndex *int    `json:"option_index,omitempty"`
	Text        *string `json:"text,omitempty"`
}

// ChoiceAnswer builds an AnswerValue for a selected option.
func ChoiceAnswer(index int) AnswerValue {
	return AnswerValue{OptionIndex: &index}
}

// TextAnswer builds an AnswerValue for a free-text response.
func TextAnswer(text string) AnswerValue {
	return AnswerValue{Text: &text}
}

// String renders the value the way it is stored in user_progress.answer.
func (v AnswerValue) String() string {
	switch {
	case v.Text != nil:
		return *v.Text
	case v.OptionIndex != nil:
		return strconv.Itoa(*v.OptionIndex)
	default:
		return ""
	}
}

// AnswerRecord is one submitted answer. It is created once and never changed.
// IsCorrect is nil for ungraded kinds.
type AnswerRecord struct {
	QuestionID       string      `json:"question_id"`
	QuestionType     TestKind    `json:"question_type"`
	Answer           AnswerValue `json:"answer"`
	IsCorrect        *bool       `json:"is_correct"`
	TimeSpentSeconds int         `json:"time_spent_seconds"`
	AnsweredAt       time.Time   `json:"answered_at"`
}
