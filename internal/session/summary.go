package session

import "github.com/stemsi/mocktest-backend/internal/model"

// Summarize builds a result from a (possibly partial) answer log. Records of
// another kind are ignored. Graded kinds count correct answers; every kind
// counts answered questions.
func Summarize(kind model.TestKind, total int, log []model.AnswerRecord) model.ResultSummary {
	s := model.ResultSummary{
		Kind:       kind,
		Graded:     kind.Graded(),
		Total:      total,
		ByQuestion: make([]model.AnswerRecord, 0, len(log)),
	}

	correct := 0
	for _, rec := range log {
		if rec.QuestionType != kind {
			continue
		}
		s.ByQuestion = append(s.ByQuestion, rec)
		if rec.IsCorrect != nil && *rec.IsCorrect {
			correct++
		}
	}
	s.Answered = len(s.ByQuestion)

	if s.Graded {
		s.Correct = &correct
	}
	return s
}
