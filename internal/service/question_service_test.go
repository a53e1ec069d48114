package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/mocktest-backend/internal/model"
)

type stubSource struct {
	questions map[model.TestKind][]model.Question
	err       error
	calls     int
}

func (s *stubSource) ListByKind(_ context.Context, kind model.TestKind) ([]model.Question, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.questions[kind], nil
}

// memCache mimics the Redis GET/SET replies the service depends on.
type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failErr error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return redis.NewStringResult("", m.failErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (m *memCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return redis.NewStatusResult("", m.failErr)
	}
	m.data[key] = value.([]byte)
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func sampleBank() map[model.TestKind][]model.Question {
	return map[model.TestKind][]model.Question{
		model.TestKindAptitude: {{
			ID: "a1", Kind: model.TestKindAptitude, Level: 1,
			Choice: &model.ChoiceBody{Prompt: "2+2?", Options: []string{"3", "4"}, Correct: 1},
		}},
		model.TestKindGD: {{
			ID: "g1", Kind: model.TestKindGD, Level: 2,
			Open: &model.OpenBody{Title: "Remote work"},
		}},
	}
}

func TestQuestionService_ReadThrough(t *testing.T) {
	src := &stubSource{questions: sampleBank()}
	cache := newMemCache()
	svc := NewQuestionService(src, cache, 10*time.Minute, zerolog.Nop())
	ctx := context.Background()

	qs, err := svc.ListQuestions(ctx, model.TestKindAptitude)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 10*time.Minute, cache.ttls["bank:aptitude:questions"])

	qs, err = svc.ListQuestions(ctx, model.TestKindAptitude)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, qs[0].Choice.Correct)
}

func TestQuestionService_EmptyBankNotCached(t *testing.T) {
	src := &stubSource{questions: sampleBank()}
	cache := newMemCache()
	svc := NewQuestionService(src, cache, time.Minute, zerolog.Nop())

	qs, err := svc.ListQuestions(context.Background(), model.TestKindTechnical)
	require.NoError(t, err)
	assert.Empty(t, qs)
	assert.NotContains(t, cache.data, "bank:technical:questions")
}

func TestQuestionService_RedisDownFallsBack(t *testing.T) {
	src := &stubSource{questions: sampleBank()}
	cache := newMemCache()
	cache.failErr = errors.New("dial tcp: connection refused")
	svc := NewQuestionService(src, cache, time.Minute, zerolog.Nop())

	qs, err := svc.ListQuestions(context.Background(), model.TestKindGD)
	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "g1", qs[0].ID)
}

func TestQuestionService_CorruptEntryReloads(t *testing.T) {
	src := &stubSource{questions: sampleBank()}
	cache := newMemCache()
	cache.data["bank:gd:questions"] = []byte("{not json")
	svc := NewQuestionService(src, cache, time.Minute, zerolog.Nop())

	qs, err := svc.ListQuestions(context.Background(), model.TestKindGD)
	require.NoError(t, err)
	assert.Len(t, qs, 1)
	assert.Equal(t, 1, src.calls)

	var cached []model.Question
	require.NoError(t, json.Unmarshal(cache.data["bank:gd:questions"], &cached))
	assert.Equal(t, "g1", cached[0].ID)
}

func TestQuestionService_SourceError(t *testing.T) {
	src := &stubSource{err: errors.New("db down")}
	svc := NewQuestionService(src, newMemCache(), time.Minute, zerolog.Nop())

	_, err := svc.ListQuestions(context.Background(), model.TestKindAptitude)
	assert.ErrorIs(t, err, src.err)
}

func TestQuestionService_PrewarmAllCaches(t *testing.T) {
	src := &stubSource{questions: sampleBank()}
	cache := newMemCache()
	svc := NewQuestionService(src, cache, time.Minute, zerolog.Nop())

	require.NoError(t, svc.PrewarmAllCaches(context.Background()))
	assert.Contains(t, cache.data, "bank:aptitude:questions")
	assert.Contains(t, cache.data, "bank:gd:questions")
	assert.NotContains(t, cache.data, "bank:technical:questions")
	assert.Equal(t, 3, src.calls)
}
