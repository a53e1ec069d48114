package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/mocktest-backend/internal/config"
	"github.com/stemsi/mocktest-backend/internal/model"
	"github.com/stemsi/mocktest-backend/internal/worker"
)

// queuePusher is the subset of *redis.Client the producer side uses.
type queuePusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// ProgressService forwards session side effects to the persistence workers.
// Every call is a single RPUSH; PostgreSQL is never touched on this path.
type ProgressService struct {
	rdb queuePusher
	log zerolog.Logger
}

// NewProgressService creates a new ProgressService.
func NewProgressService(rdb queuePusher, log zerolog.Logger) *ProgressService {
	return &ProgressService{
		rdb: rdb,
		log: log.With().Str("component", "progress_service").Logger(),
	}
}

func (s *ProgressService) push(ctx context.Context, queue string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", queue, err)
	}
	if err := s.rdb.RPush(ctx, queue, raw).Err(); err != nil {
		return fmt.Errorf("push %s: %w", queue, err)
	}
	return nil
}

// RecordProgress queues one answer. Anonymous answers are not persisted.
func (s *ProgressService) RecordProgress(ctx context.Context, userID string, rec model.AnswerRecord) error {
	if userID == "" {
		return nil
	}
	return s.push(ctx, config.WorkerKey.PersistProgressQueue, worker.ProgressPayload{
		UserID:           userID,
		QuestionID:       rec.QuestionID,
		QuestionType:     string(rec.QuestionType),
		Answer:           rec.Answer.String(),
		IsCorrect:        rec.IsCorrect,
		TimeSpentSeconds: rec.TimeSpentSeconds,
		AnsweredAt:       rec.AnsweredAt,
	})
}

// RecordOrder queues a computed ordering. Anonymous sessions have none.
func (s *ProgressService) RecordOrder(ctx context.Context, order model.QuestionOrder) error {
	if order.UserID == "" {
		return nil
	}
	return s.push(ctx, config.WorkerKey.PersistQuestionOrderQueue, worker.OrderPayload{
		UserID:      order.UserID,
		Kind:        string(order.Kind),
		Variant:     order.Variant,
		Seed:        order.Seed,
		QuestionIDs: order.QuestionIDs,
	})
}

// RecordResult queues a finished session's summary, including anonymous ones.
func (s *ProgressService) RecordResult(ctx context.Context, sessionID, userID string, summary model.ResultSummary) error {
	detail, err := json.Marshal(summary.ByQuestion)
	if err != nil {
		return fmt.Errorf("marshal result detail: %w", err)
	}

	payload := worker.ResultPayload{
		SessionID:    sessionID,
		Kind:         string(summary.Kind),
		Graded:       summary.Graded,
		Total:        summary.Total,
		Answered:     summary.Answered,
		Correct:      summary.Correct,
		FinishReason: string(summary.FinishReason),
		ByQuestion:   detail,
	}
	if userID != "" {
		payload.UserID = &userID
	}
	if summary.FinishedAt != nil {
		payload.FinishedAt = *summary.FinishedAt
	}

	if err := s.push(ctx, config.WorkerKey.PersistResultsQueue, payload); err != nil {
		return err
	}
	s.log.Debug().Str("session_id", sessionID).Str("kind", payload.Kind).Msg("Result queued")
	return nil
}
