package model

import (
	"errors"
	"fmt"
)

// Question validation errors.
var (
	ErrQuestionBodyMismatch = errors.New("question body does not match its kind")
	ErrQuestionOptions      = errors.New("multiple-choice question needs at least two options")
	ErrQuestionCorrectIndex = errors.New("correct option index out of range")
)

// MinChoiceOptions is the smallest option list a multiple-choice question may carry.
const MinChoiceOptions = 2

// Question is a single bank entry. Exactly one of Choice or Open is set,
// matching Kind.
type Question struct {
	ID       string      `json:"id"`
	Kind     TestKind    `json:"kind"`
	Category string      `json:"category,omitempty"`
	Level    int         `json:"level"`
	Choice   *ChoiceBody `json:"choice,omitempty"`
	Open     *OpenBody   `json:"open,omitempty"`
}

// ChoiceBody is the multiple-choice variant.
type ChoiceBody struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Correct     int      `json:"correct"`
	Explanation string   `json:"explanation,omitempty"`
}

// OpenBody is the open-response variant used by technical questions and GD topics.
type OpenBody struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Validate checks the body/kind pairing and the multiple-choice answer key.
func (q *Question) Validate() error {
	if q.Kind.Graded() {
		if q.Choice == nil || q.Open != nil {
			return fmt.Errorf("question %s: %w", q.ID, ErrQuestionBodyMismatch)
		}
		if len(q.Choice.Options) < MinChoiceOptions {
			return fmt.Errorf("question %s: %w", q.ID, ErrQuestionOptions)
		}
		if q.Choice.Correct < 0 || q.Choice.Correct >= len(q.Choice.Options) {
			return fmt.Errorf("question %s: %w", q.ID, ErrQuestionCorrectIndex)
		}
		return nil
	}

	if q.Open == nil || q.Choice != nil {
		return fmt.Errorf("question %s: %w", q.ID, ErrQuestionBodyMismatch)
	}
	return nil
}

// PublicQuestion is a question without its answer key, sent to candidates.
type PublicQuestion struct {
	ID          string   `json:"id"`
	Kind        TestKind `json:"kind"`
	Category    string   `json:"category,omitempty"`
	Level       int      `json:"level"`
	Prompt      string   `json:"prompt,omitempty"`
	Options     []string `json:"options,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Public strips the answer key and explanation.
func (q *Question) Public() PublicQuestion {
	p := PublicQuestion{
		ID:       q.ID,
		Kind:     q.Kind,
		Category: q.Category,
		Level:    q.Level,
	}
	if q.Choice != nil {
		p.Prompt = q.Choice.Prompt
		p.Options = append([]string(nil), q.Choice.Options...)
	}
	if q.Open != nil {
		p.Title = q.Open.Title
		p.Description = q.Open.Description
	}
	return p
}
