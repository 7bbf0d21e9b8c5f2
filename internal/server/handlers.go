// Package server exposes a playground session over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/playground/internal/agent"
	"github.com/mesh-intelligence/playground/internal/generation"
	"github.com/mesh-intelligence/playground/internal/session"
	"github.com/mesh-intelligence/playground/pkg/playground"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// LogSource finds the newest agent chat log.
type LogSource interface {
	LatestLog() (string, error)
}

// ModelSource lists the models the agent accepts.
type ModelSource interface {
	Models(ctx context.Context) ([]agent.Model, bool, error)
}

// Handlers serves one session.
type Handlers struct {
	session *session.Session
	logs    LogSource
	models  ModelSource
	logger  *slog.Logger
}

// NewHandlers returns handlers for s. logs and models may be nil, in which
// case their endpoints report not found.
func NewHandlers(s *session.Session, logs LogSource, models ModelSource, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{session: s, logs: logs, models: models, logger: logger.With("component", "server")}
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: playground.Version})
}

// HandleCanvas handles GET /canvas.
func (h *Handlers) HandleCanvas(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.View())
}

// HandleClearCanvas handles DELETE /canvas.
func (h *Handlers) HandleClearCanvas(c *gin.Context) {
	if err := h.session.Clear(c.Request.Context()); err != nil {
		h.writeError(c, "HandleClearCanvas", err)
		return
	}
	c.JSON(http.StatusOK, h.session.View())
}

// HandlePlaceRoot handles POST /canvas/roots.
func (h *Handlers) HandlePlaceRoot(c *gin.Context) {
	var req PlaceRootRequest
	if !h.bind(c, &req) {
		return
	}
	node, err := h.session.PlaceRoot(req.ComponentID, req.Position)
	if err != nil {
		h.writeError(c, "HandlePlaceRoot", err)
		return
	}
	c.JSON(http.StatusCreated, node)
}

// HandleUpdateNode handles PATCH /canvas/nodes/:id.
func (h *Handlers) HandleUpdateNode(c *gin.Context) {
	id := c.Param("id")
	var req UpdateNodeRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Position == nil && req.Size == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "position or size required", Code: "INVALID_REQUEST"})
		return
	}
	if req.Size != nil {
		if err := h.session.SetNodeSize(id, *req.Size); err != nil {
			h.writeError(c, "HandleUpdateNode", err)
			return
		}
	}
	if req.Position != nil {
		if err := h.session.MoveNode(id, *req.Position); err != nil {
			h.writeError(c, "HandleUpdateNode", err)
			return
		}
	}
	node, _ := h.session.Snapshot().Node(id)
	c.JSON(http.StatusOK, node)
}

// HandleToggleCollapse handles POST /canvas/nodes/:id/collapse.
func (h *Handlers) HandleToggleCollapse(c *gin.Context) {
	id := c.Param("id")
	collapsed, err := h.session.ToggleCollapse(id)
	if err != nil {
		h.writeError(c, "HandleToggleCollapse", err)
		return
	}
	c.JSON(http.StatusOK, CollapseResponse{NodeID: id, Collapsed: collapsed})
}

// HandleArrange handles POST /canvas/arrange.
func (h *Handlers) HandleArrange(c *gin.Context) {
	h.session.Arrange()
	c.JSON(http.StatusOK, h.session.View())
}

// HandleListIterations handles GET /iterations.
func (h *Handlers) HandleListIterations(c *gin.Context) {
	items, err := h.session.Iterations(c.Request.Context())
	if err != nil {
		h.writeError(c, "HandleListIterations", err)
		return
	}
	if items == nil {
		items = []types.Iteration{}
	}
	c.JSON(http.StatusOK, IterationsResponse{Iterations: items})
}

// HandleDeleteIteration handles DELETE /iterations.
func (h *Handlers) HandleDeleteIteration(c *gin.Context) {
	var req DeleteIterationRequest
	if !h.bind(c, &req) {
		return
	}
	mode, err := types.ParseDeleteMode(req.Mode)
	if err != nil {
		h.writeError(c, "HandleDeleteIteration", err)
		return
	}
	res, err := h.session.Delete(c.Request.Context(), req.ID, mode)
	if err != nil && len(res.DeletedIDs) == 0 {
		h.writeError(c, "HandleDeleteIteration", err)
		return
	}
	if err != nil {
		// The tree changed but some files could not be removed.
		h.logger.Warn("iteration files not removed", "error", err)
	}
	c.JSON(http.StatusOK, res)
}

// HandleScan handles POST /iterations/scan.
func (h *Handlers) HandleScan(c *gin.Context) {
	res, err := h.session.FetchNow(c.Request.Context())
	if err != nil {
		h.writeError(c, "HandleScan", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleStartPolling handles POST /iterations/poll.
func (h *Handlers) HandleStartPolling(c *gin.Context) {
	h.session.StartPolling()
	c.JSON(http.StatusOK, PollingResponse{Polling: h.session.Polling()})
}

// HandleStopPolling handles DELETE /iterations/poll.
func (h *Handlers) HandleStopPolling(c *gin.Context) {
	h.session.StopPolling()
	c.JSON(http.StatusOK, PollingResponse{Polling: h.session.Polling()})
}

// HandleGenerate handles POST /generate. It blocks until the generation
// ends. A failed run answers 500 with the agent's error.
func (h *Handlers) HandleGenerate(c *gin.Context) {
	var req generation.Request
	if !h.bind(c, &req) {
		return
	}
	out, err := h.session.Generate(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "HandleGenerate", err)
		return
	}
	resp := GenerateResponse{
		ID:       out.ID,
		Success:  out.Success,
		Canceled: out.Canceled,
		Duration: types.FormatDuration(out.Duration),
		Output:   out.Output,
	}
	status := http.StatusOK
	if out.Err != nil {
		resp.Error = out.Err.Error()
		if !out.Canceled {
			status = http.StatusInternalServerError
		}
	}
	c.JSON(status, resp)
}

// HandleCancelGeneration handles DELETE /generate.
func (h *Handlers) HandleCancelGeneration(c *gin.Context) {
	if err := h.session.CancelGeneration(); err != nil {
		h.writeError(c, "HandleCancelGeneration", err)
		return
	}
	c.JSON(http.StatusAccepted, h.session.GenerationStatus())
}

// HandleGenerationStatus handles GET /generate/status.
func (h *Handlers) HandleGenerationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.GenerationStatus())
}

// HandleGenerationLog handles GET /generate/log by sending the newest chat
// log as an attachment.
func (h *Handlers) HandleGenerationLog(c *gin.Context) {
	if h.logs == nil {
		h.writeError(c, "HandleGenerationLog", types.ErrNotFound)
		return
	}
	path, err := h.logs.LatestLog()
	if err != nil {
		h.writeError(c, "HandleGenerationLog", err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// HandleModels handles GET /models.
func (h *Handlers) HandleModels(c *gin.Context) {
	if h.models == nil {
		h.writeError(c, "HandleModels", types.ErrNotFound)
		return
	}
	models, cached, err := h.models.Models(c.Request.Context())
	if err != nil {
		h.writeError(c, "HandleModels", err)
		return
	}
	source := "agent"
	if cached {
		source = "cache"
	}
	c.JSON(http.StatusOK, ModelsResponse{Models: models, Source: source})
}

func (h *Handlers) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("invalid request body", "request_id", requestID(c), "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return false
	}
	return true
}

// writeError maps domain errors to status codes.
func (h *Handlers) writeError(c *gin.Context, handler string, err error) {
	status, code := statusFor(err)
	logger := h.logger.With("request_id", requestID(c), "handler", handler)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Info("request rejected", "status", status, "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, types.ErrGenerationInProgress):
		return http.StatusConflict, "GENERATION_IN_PROGRESS"
	case errors.Is(err, types.ErrNotGenerating):
		return http.StatusConflict, "NOT_GENERATING"
	case errors.Is(err, types.ErrGenerationTarget):
		return http.StatusConflict, "GENERATION_TARGET"
	case errors.Is(err, types.ErrNoReparentTarget):
		return http.StatusConflict, "NO_REPARENT_TARGET"
	case errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrInvalidNode),
		errors.Is(err, types.ErrInvalidCount),
		errors.Is(err, types.ErrInvalidDeleteMode),
		errors.Is(err, types.ErrInvalidFilename),
		errors.Is(err, types.ErrInvalidParent),
		errors.Is(err, types.ErrCycle):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELED"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

const requestIDKey = "request_id"

// requestIDMiddleware echoes X-Request-ID, generating one when absent.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
