package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/mocktest-backend/internal/response"
)

// HealthHandler reports whether the backing stores are reachable.
type HealthHandler struct {
	ping func(ctx context.Context) error
}

// NewHealthHandler creates a new HealthHandler. ping may be nil for a plain
// liveness check.
func NewHealthHandler(ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

// Health godoc
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Data:     gin.H{"status": "degraded"},
				Error:    &response.ErrorBody{Code: response.ErrInternal, Message: err.Error()},
				Metadata: response.MetadataFor(c),
			})
			return
		}
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}
