package server

import (
	"github.com/mesh-intelligence/playground/internal/agent"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse reports service liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// PlaceRootRequest adds a root node. Without a position the canvas is
// re-arranged.
type PlaceRootRequest struct {
	ComponentID string          `json:"component_id" binding:"required"`
	Position    *types.Position `json:"position,omitempty"`
}

// UpdateNodeRequest moves a node or records its measured size.
type UpdateNodeRequest struct {
	Position *types.Position `json:"position,omitempty"`
	Size     *types.Size     `json:"size,omitempty"`
}

// CollapseResponse reports a node's collapsed flag after a toggle.
type CollapseResponse struct {
	NodeID    string `json:"node_id"`
	Collapsed bool   `json:"collapsed"`
}

// DeleteIterationRequest deletes an iteration by iteration id or node id.
// Mode defaults to cascade.
type DeleteIterationRequest struct {
	ID   string `json:"id" binding:"required"`
	Mode string `json:"mode"`
}

// IterationsResponse lists iteration files.
type IterationsResponse struct {
	Iterations []types.Iteration `json:"iterations"`
}

// PollingResponse reports whether adaptive polling is running.
type PollingResponse struct {
	Polling bool `json:"polling"`
}

// GenerateResponse is the terminal outcome of a generation.
type GenerateResponse struct {
	ID       string `json:"id"`
	Success  bool   `json:"success"`
	Canceled bool   `json:"canceled"`
	Duration string `json:"duration"`
	Output   string `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ModelsResponse lists agent models.
type ModelsResponse struct {
	Models []agent.Model `json:"models"`
	Source string        `json:"source"`
}
