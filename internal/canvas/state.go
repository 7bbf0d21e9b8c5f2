package canvas

import (
	"context"
	"errors"

	"github.com/mesh-intelligence/playground/pkg/types"
)

// ErrCorrupt is returned by a Store when the saved canvas cannot be parsed.
var ErrCorrupt = errors.New("canvas state is corrupt")

// State is the durable mirror of the canvas.
type State struct {
	Nodes     []types.Node `json:"nodes"`
	Edges     []types.Edge `json:"edges"`
	Counter   int          `json:"counter"`
	Known     []string     `json:"known"`
	Collapsed []string     `json:"collapsed"`
}

// Store persists canvas state.
type Store interface {
	// LoadCanvas returns the saved state, or a zero State if none exists.
	LoadCanvas(ctx context.Context) (State, error)
	SaveCanvas(ctx context.Context, st State) error
}
