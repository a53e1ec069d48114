package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/mocktest-backend/internal/config"
	"github.com/stemsi/mocktest-backend/internal/handler"
	"github.com/stemsi/mocktest-backend/internal/model"
	"github.com/stemsi/mocktest-backend/internal/service"
	"github.com/stemsi/mocktest-backend/internal/session"
	"github.com/stemsi/mocktest-backend/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type bankStub map[model.TestKind][]model.Question

func (b bankStub) ListQuestions(_ context.Context, kind model.TestKind) ([]model.Question, error) {
	qs, ok := b[kind]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return qs, nil
}

func aptitude(id string, correct int) model.Question {
	return model.Question{
		ID:   id,
		Kind: model.TestKindAptitude,
		Choice: &model.ChoiceBody{
			Prompt:  "prompt " + id,
			Options: []string{"a", "b", "c"},
			Correct: correct,
		},
	}
}

type testServer struct {
	engine *gin.Engine
	auth   *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		GinMode:                  gin.TestMode,
		JWTSecret:                "router-secret",
		JWTExpiry:                time.Hour,
		AptitudeDurationSeconds:  1200,
		TechnicalDurationSeconds: 1800,
		GDDurationSeconds:        600,
		ShuffleVariant:           1,
	}

	budgets := service.BudgetsFromConfig(cfg)
	registry := session.NewRegistry(session.RunnerConfig{
		Clock:   clockwork.NewFakeClock(),
		Budgets: budgets,
		Bank: bankStub{
			model.TestKindAptitude: {aptitude("q1", 1), aptitude("q2", 0), aptitude("q3", 2)},
		},
		Logger: zerolog.Nop(),
	})
	t.Cleanup(registry.CloseAll)

	auth := service.NewAuthService(cfg)
	sessions := service.NewSessionService(registry, budgets, cfg.ShuffleVariant, zerolog.Nop())
	handlers := &Handlers{
		Health:   handler.NewHealthHandler(nil),
		MockTest: handler.NewMockTestHandler(sessions),
		WS:       handler.NewWSHandler(zerolog.Nop(), nil),
	}
	return &testServer{engine: SetupRouter(auth, registry, handlers, cfg), auth: auth}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.auth.GenerateToken(userID)
	require.NoError(t, err)
	return tok
}

func errCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

type sessionBody struct {
	Session model.SessionSnapshot `json:"session"`
	Answer  *model.AnswerRecord   `json:"answer"`
}

func decodeSession(t *testing.T, env envelope) sessionBody {
	t.Helper()
	var b sessionBody
	require.NoError(t, json.Unmarshal(env.Data, &b))
	return b
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListTests(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodGet, "/api/v1/tests", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))

	var body struct {
		Tests []model.TestCatalogEntry `json:"tests"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Len(t, body.Tests, 3)
	assert.Equal(t, model.TestKindAptitude, body.Tests[0].Kind)
	assert.Equal(t, 1200, body.Tests[0].DurationSeconds)
	assert.Equal(t, "Group Discussion", body.Tests[2].Title)
}

func TestAnonymousSessionFlow(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodPost, "/api/v1/sessions", "", gin.H{"kind": "aptitude"})
	require.Equal(t, http.StatusCreated, w.Code, errCode(env))
	opened := decodeSession(t, env).Session
	assert.Equal(t, model.SessionPhaseRunning, opened.Phase)
	assert.False(t, opened.Shuffled)
	require.NotNil(t, opened.Current)
	assert.Equal(t, "q1", opened.Current.ID)

	base := "/api/v1/sessions/" + opened.SessionID

	w, env = s.do(t, http.MethodPost, base+"/choice", "", gin.H{"option_index": 1})
	require.Equal(t, http.StatusOK, w.Code, errCode(env))
	answered := decodeSession(t, env)
	require.NotNil(t, answered.Answer)
	require.NotNil(t, answered.Answer.IsCorrect)
	assert.True(t, *answered.Answer.IsCorrect)
	assert.Equal(t, 0, answered.Session.Position, "a choice does not move on by itself")

	w, env = s.do(t, http.MethodPost, base+"/choice", "", gin.H{"option_index": 0})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_ANSWERED", errCode(env))

	w, env = s.do(t, http.MethodPost, base+"/text", "", gin.H{"text": "hello"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "WRONG_ANSWER_KIND", errCode(env))

	w, env = s.do(t, http.MethodGet, base+"/result", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RESULT_NOT_AVAILABLE", errCode(env))

	w, _ = s.do(t, http.MethodPost, base+"/advance", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodPost, base+"/choice", "", gin.H{"option_index": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_OPTION", errCode(env))

	w, _ = s.do(t, http.MethodPost, base+"/pause", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodPost, base+"/choice", "", gin.H{"option_index": 0})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_PHASE", errCode(env))
	w, _ = s.do(t, http.MethodPost, base+"/resume", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, base+"/finish", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodGet, base+"/result", "", nil)
	require.Equal(t, http.StatusOK, w.Code, errCode(env))
	var result struct {
		Result model.ResultSummary `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 3, result.Result.Total)
	assert.Equal(t, 1, result.Result.Answered)
	require.NotNil(t, result.Result.Correct)
	assert.Equal(t, 1, *result.Result.Correct)
	assert.Equal(t, model.FinishReasonManual, result.Result.FinishReason)

	w, env = s.do(t, http.MethodPost, base+"/reset", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.SessionPhaseIdle, decodeSession(t, env).Session.Phase)
}

func TestSignedInSessionOwnership(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "u1")

	w, env := s.do(t, http.MethodPost, "/api/v1/sessions", owner, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	snap := decodeSession(t, env).Session
	assert.Equal(t, model.SessionPhaseIdle, snap.Phase)
	base := "/api/v1/sessions/" + snap.SessionID

	w, env = s.do(t, http.MethodGet, base, s.token(t, "u2"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_SESSION_OWNER", errCode(env))

	w, _ = s.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(t, http.MethodPost, base+"/start", owner, gin.H{"kind": "aptitude"})
	require.Equal(t, http.StatusOK, w.Code, errCode(env))
	started := decodeSession(t, env).Session
	assert.True(t, started.Shuffled)
	assert.Equal(t, 1, started.Variant)
	assert.Equal(t, 1200, started.RemainingSeconds)
}

func TestStartErrors(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/api/v1/sessions/" + decodeSession(t, env).Session.SessionID

	w, env = s.do(t, http.MethodPost, base+"/start", "", gin.H{"kind": "history"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(env))
	assert.Contains(t, env.Error.Fields, "kind")

	// The stub bank has no GD topics.
	w, env = s.do(t, http.MethodPost, base+"/start", "", gin.H{"kind": "gd"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "QUESTION_BANK_UNAVAILABLE", errCode(env))

	w, env = s.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSession(t, env).Session
	assert.Equal(t, model.SessionPhaseIdle, snap.Phase)
	assert.NotEmpty(t, snap.LoadError)

	w, env = s.do(t, http.MethodPost, base+"/advance", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_PHASE", errCode(env))
}

func TestSessionLookupErrors(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", errCode(env))

	w, env = s.do(t, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", errCode(env))

	w, env = s.do(t, http.MethodGet, "/api/v1/tests", "Bearer-less-garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TOKEN_INVALID", errCode(env))
}

func TestCloseSession(t *testing.T) {
	s := newTestServer(t)
	w, env := s.do(t, http.MethodPost, "/api/v1/sessions", "", gin.H{"kind": "aptitude"})
	require.Equal(t, http.StatusCreated, w.Code)
	base := "/api/v1/sessions/" + decodeSession(t, env).Session.SessionID

	w, _ = s.do(t, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", errCode(env))
}
