package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"TradeSentinel/internal/recorder"
)

// RunsHandler serves recorded backtests.
type RunsHandler struct {
	env *Env
}

func NewRunsHandler(env *Env) *RunsHandler {
	return &RunsHandler{env: env}
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunsHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.env.Recorder.GetRun(id)
	if errors.Is(err, recorder.ErrNotFound) {
		respondError(c, &apiError{status: http.StatusNotFound, code: "NOT_FOUND", err: fmt.Errorf("run %q not found", id)})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Health handles GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
