package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/mocktest-backend/internal/response"
	"github.com/stemsi/mocktest-backend/internal/session"
)

// ContextKeySession is the Gin context key for the resolved session runner.
const ContextKeySession = "mock_session"

// LoadSession resolves :session_id to a live session and enforces ownership.
// A session opened by a signed-in user is only usable by that user; an
// anonymous session is usable by whoever holds its id.
func LoadSession(registry *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("session_id")
		if _, err := uuid.Parse(id); err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}

		runner, err := registry.Get(id)
		if err != nil {
			response.AbortFail(c, http.StatusNotFound, response.ErrSessionNotFound)
			return
		}

		if owner := runner.UserID(); owner != "" && owner != CurrentUserID(c) {
			response.AbortFail(c, http.StatusForbidden, response.ErrNotSessionOwner)
			return
		}

		c.Set(ContextKeySession, runner)
		c.Next()
	}
}

// GetSession retrieves the runner stored by LoadSession.
func GetSession(c *gin.Context) *session.Runner {
	val, exists := c.Get(ContextKeySession)
	if !exists {
		return nil
	}
	runner, _ := val.(*session.Runner)
	return runner
}
