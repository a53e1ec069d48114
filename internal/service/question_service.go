package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/mocktest-backend/internal/config"
	"github.com/stemsi/mocktest-backend/internal/model"
)

// questionSource is the PostgreSQL side of the bank.
type questionSource interface {
	ListByKind(ctx context.Context, kind model.TestKind) ([]model.Question, error)
}

// bankCache is the subset of *redis.Client the bank cache uses.
type bankCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// QuestionService serves the question bank through a Redis read-through
// cache. Redis failures fall back to PostgreSQL.
type QuestionService struct {
	repo  questionSource
	cache bankCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(repo questionSource, cache bankCache, ttl time.Duration, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		repo:  repo,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "question_service").Logger(),
	}
}

// ListQuestions returns the questions of kind in bank order.
func (s *QuestionService) ListQuestions(ctx context.Context, kind model.TestKind) ([]model.Question, error) {
	key := config.CacheKey.BankQuestionsKey(string(kind))

	raw, err := s.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var questions []model.Question
		jsonErr := json.Unmarshal(raw, &questions)
		if jsonErr == nil {
			return questions, nil
		}
		s.log.Warn().Err(jsonErr).Str("key", key).Msg("Corrupt bank cache entry, reloading")
	case errors.Is(err, redis.Nil):
	default:
		s.log.Warn().Err(err).Str("key", key).Msg("Bank cache unavailable, reading PostgreSQL")
	}

	return s.load(ctx, kind, key)
}

func (s *QuestionService) load(ctx context.Context, kind model.TestKind, key string) ([]model.Question, error) {
	questions, err := s.repo.ListByKind(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s questions: %w", kind, err)
	}

	// An empty bank is not cached so new rows show up without waiting for the TTL.
	if len(questions) > 0 {
		if err := s.store(ctx, key, questions); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to populate bank cache")
		}
	}
	return questions, nil
}

func (s *QuestionService) store(ctx context.Context, key string, questions []model.Question) error {
	payload, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

// PrewarmAllCaches loads every kind into Redis on application startup.
func (s *QuestionService) PrewarmAllCaches(ctx context.Context) error {
	var errs []error
	for _, kind := range model.AllTestKinds {
		key := config.CacheKey.BankQuestionsKey(string(kind))
		questions, err := s.repo.ListByKind(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s questions: %w", kind, err))
			continue
		}
		if len(questions) == 0 {
			s.log.Warn().Str("kind", string(kind)).Msg("Question bank is empty")
			continue
		}
		if err := s.store(ctx, key, questions); err != nil {
			errs = append(errs, fmt.Errorf("cache %s questions: %w", kind, err))
			continue
		}
		s.log.Info().Str("kind", string(kind)).Int("questions", len(questions)).Msg("Bank cache warmed")
	}
	return errors.Join(errs...)
}
