package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/mocktest-backend/internal/middleware"
	"github.com/stemsi/mocktest-backend/internal/model"
	"github.com/stemsi/mocktest-backend/internal/response"
	"github.com/stemsi/mocktest-backend/internal/service"
	"github.com/stemsi/mocktest-backend/internal/session"
	"github.com/stemsi/mocktest-backend/internal/validator"
)

// sessionError maps a session error to its HTTP status and error code.
func sessionError(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, session.ErrInvalidPhase):
		return http.StatusConflict, response.ErrInvalidPhase
	case errors.Is(err, session.ErrAlreadyAnswered):
		return http.StatusConflict, response.ErrAlreadyAnswered
	case errors.Is(err, session.ErrNoCurrentQuestion):
		return http.StatusConflict, response.ErrNoCurrentQuestion
	case errors.Is(err, session.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.Is(err, session.ErrWrongKind):
		return http.StatusBadRequest, response.ErrWrongAnswerKind
	case errors.Is(err, session.ErrInvalidKind):
		return http.StatusBadRequest, response.ErrInvalidTestKind
	case errors.Is(err, session.ErrLoadFailed):
		return http.StatusServiceUnavailable, response.ErrBankUnavailable
	case errors.Is(err, session.ErrLoadCancelled):
		return http.StatusConflict, response.ErrLoadCancelled
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

func failSession(c *gin.Context, err error) {
	status, code := sessionError(err)
	response.Fail(c, status, code)
}

// MockTestHandler serves the test catalog and drives live sessions.
type MockTestHandler struct {
	sessions *service.SessionService
}

// NewMockTestHandler creates a new MockTestHandler.
func NewMockTestHandler(sessions *service.SessionService) *MockTestHandler {
	return &MockTestHandler{sessions: sessions}
}

// ListTests godoc
// GET /api/v1/tests
func (h *MockTestHandler) ListTests(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"tests": h.sessions.Catalog()})
}

// OpenSession godoc
// POST /api/v1/sessions
// Opens a session for the caller. An optional {kind, variant} body starts the
// test right away and blocks until its questions are loaded.
func (h *MockTestHandler) OpenSession(c *gin.Context) {
	var req model.OpenSessionRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	runner, err := h.sessions.Open(c.Request.Context(), middleware.CurrentUserID(c), req.Kind, req.Variant)
	if err != nil {
		failSession(c, err)
		return
	}

	snap, err := runner.Snapshot(c.Request.Context())
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": snap})
}

// GetSession godoc
// GET /api/v1/sessions/:session_id
func (h *MockTestHandler) GetSession(c *gin.Context) {
	h.respondSnapshot(c, middleware.GetSession(c))
}

// StartTest godoc
// POST /api/v1/sessions/:session_id/start
func (h *MockTestHandler) StartTest(c *gin.Context) {
	var req model.StartTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	runner := middleware.GetSession(c)
	if err := h.sessions.Start(c.Request.Context(), runner, req.Kind, req.Variant); err != nil {
		failSession(c, err)
		return
	}
	h.respondSnapshot(c, runner)
}

// SubmitChoice godoc
// POST /api/v1/sessions/:session_id/choice
// Records the selected option. The session stays on the same question.
func (h *MockTestHandler) SubmitChoice(c *gin.Context) {
	var req model.SubmitChoiceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	runner := middleware.GetSession(c)
	rec, err := runner.SubmitChoice(c.Request.Context(), *req.OptionIndex)
	if err != nil {
		failSession(c, err)
		return
	}
	h.respondAnswer(c, runner, rec)
}

// SubmitText godoc
// POST /api/v1/sessions/:session_id/text
// Records a free-text answer and moves to the next question.
func (h *MockTestHandler) SubmitText(c *gin.Context) {
	var req model.SubmitTextRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	runner := middleware.GetSession(c)
	rec, err := runner.SubmitText(c.Request.Context(), req.Text)
	if err != nil {
		failSession(c, err)
		return
	}
	h.respondAnswer(c, runner, rec)
}

// Advance godoc
// POST /api/v1/sessions/:session_id/advance
func (h *MockTestHandler) Advance(c *gin.Context) {
	h.apply(c, (*session.Runner).Advance)
}

// Pause godoc
// POST /api/v1/sessions/:session_id/pause
func (h *MockTestHandler) Pause(c *gin.Context) {
	h.apply(c, (*session.Runner).Pause)
}

// Resume godoc
// POST /api/v1/sessions/:session_id/resume
func (h *MockTestHandler) Resume(c *gin.Context) {
	h.apply(c, (*session.Runner).Resume)
}

// Finish godoc
// POST /api/v1/sessions/:session_id/finish
func (h *MockTestHandler) Finish(c *gin.Context) {
	h.apply(c, (*session.Runner).FinishEarly)
}

// Reset godoc
// POST /api/v1/sessions/:session_id/reset
// Returns the session to IDLE so another test can be picked.
func (h *MockTestHandler) Reset(c *gin.Context) {
	h.apply(c, (*session.Runner).Reset)
}

// GetResult godoc
// GET /api/v1/sessions/:session_id/result
func (h *MockTestHandler) GetResult(c *gin.Context) {
	summary, err := middleware.GetSession(c).Summary(c.Request.Context())
	if err != nil {
		if errors.Is(err, session.ErrInvalidPhase) {
			response.Fail(c, http.StatusConflict, response.ErrResultNotAvailable)
			return
		}
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": summary})
}

// CloseSession godoc
// DELETE /api/v1/sessions/:session_id
func (h *MockTestHandler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(middleware.GetSession(c).ID()); err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Sesi ditutup."})
}

func (h *MockTestHandler) apply(c *gin.Context, action func(*session.Runner, context.Context) error) {
	runner := middleware.GetSession(c)
	if err := action(runner, c.Request.Context()); err != nil {
		failSession(c, err)
		return
	}
	h.respondSnapshot(c, runner)
}

func (h *MockTestHandler) respondSnapshot(c *gin.Context, runner *session.Runner) {
	snap, err := runner.Snapshot(c.Request.Context())
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": snap})
}

func (h *MockTestHandler) respondAnswer(c *gin.Context, runner *session.Runner, rec model.AnswerRecord) {
	snap, err := runner.Snapshot(c.Request.Context())
	if err != nil {
		failSession(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answer": rec, "session": snap})
}
