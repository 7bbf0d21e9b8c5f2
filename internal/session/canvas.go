package session

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/playground/internal/generation"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// NodeView is a node with its presentation flags.
type NodeView struct {
	types.Node
	HasChildren bool `json:"has_children"`
	Collapsed   bool `json:"collapsed"`
	Hidden      bool `json:"hidden"`
}

// View is the canvas as a client renders it.
type View struct {
	Nodes      []NodeView        `json:"nodes"`
	Edges      []types.Edge      `json:"edges"`
	Generation generation.Status `json:"generation"`
	Polling    bool              `json:"polling"`
	Scanning   bool              `json:"scanning"`
}

// View returns the canvas with per-node flags.
func (s *Session) View() View {
	var v View
	s.serial.Do(func() {
		snap := s.model.Snapshot()
		hidden := s.model.Hidden()
		collapsed := s.model.Collapsed()
		v.Nodes = make([]NodeView, 0, snap.Len())
		for _, n := range snap.Nodes() {
			v.Nodes = append(v.Nodes, NodeView{
				Node:        n,
				HasChildren: s.model.HasChildren(n.ID),
				Collapsed:   collapsed[n.ID],
				Hidden:      hidden[n.ID],
			})
		}
		v.Edges = snap.Edges()
		if v.Edges == nil {
			v.Edges = []types.Edge{}
		}
		v.Generation = s.machine.StatusLocked()
	})
	v.Polling = s.loop.Polling()
	v.Scanning = s.loop.Scanning()
	return v
}

// PlaceRoot adds a root node for componentID. With no position the canvas
// is re-arranged to place it.
func (s *Session) PlaceRoot(componentID string, pos *types.Position) (types.Node, error) {
	if componentID == "" {
		return types.Node{}, fmt.Errorf("component id: %w", types.ErrInvalidID)
	}
	var node types.Node
	s.serial.Do(func() {
		var p types.Position
		if pos != nil {
			p = *pos
		}
		node = types.NewRootNode(s.seq.Next(), componentID, p)
		s.model.Commit(s.model.Snapshot().AddNodes(node))
		if pos == nil {
			s.arrangeLocked()
			node, _ = s.model.Snapshot().Node(node.ID)
			return
		}
		s.persistLocked()
	})
	s.logger.Info("root placed", "node_id", node.ID, "component_id", componentID)
	return node, nil
}

// MoveNode sets a node's position.
func (s *Session) MoveNode(id string, pos types.Position) error {
	return s.mutateNode(id, func() {
		s.model.Commit(s.model.Snapshot().UpdateNodePosition(id, pos))
	})
}

// SetNodeSize records a node's measured size.
func (s *Session) SetNodeSize(id string, size types.Size) error {
	if size.Width <= 0 || size.Height <= 0 {
		return fmt.Errorf("size %vx%v: %w", size.Width, size.Height, types.ErrInvalidNode)
	}
	return s.mutateNode(id, func() {
		s.model.Commit(s.model.Snapshot().SetNodeSize(id, size))
	})
}

func (s *Session) mutateNode(id string, fn func()) error {
	var err error
	s.serial.Do(func() {
		if _, ok := s.model.Snapshot().Node(id); !ok {
			err = fmt.Errorf("node %s: %w", id, types.ErrNotFound)
			return
		}
		fn()
		s.persistLocked()
	})
	return err
}

// ToggleCollapse flips a node's collapsed flag, re-arranges, and returns the
// new flag.
func (s *Session) ToggleCollapse(id string) (bool, error) {
	var collapsed bool
	var err error
	s.serial.Do(func() {
		collapsed, err = s.model.ToggleCollapsed(id)
		if err != nil {
			return
		}
		s.arrangeLocked()
	})
	return collapsed, err
}

// Arrange lays out the whole canvas.
func (s *Session) Arrange() {
	s.serial.Do(s.arrangeLocked)
}

// arrangeLocked applies the layout and saves the canvas. It runs inside the
// serial section.
func (s *Session) arrangeLocked() {
	snap := s.model.Snapshot()
	pos := s.layoutPositions(snap.Nodes(), snap.Edges(), s.model.Collapsed())
	s.model.Commit(snap.ApplyPositions(pos))
	s.persistLocked()
}

// Clear empties the canvas, stops polling, and forgets every known
// iteration so the next scan rediscovers them. The manifest is kept. Clear
// is rejected while a generation runs.
func (s *Session) Clear(ctx context.Context) error {
	s.loop.StopPolling()
	var err error
	s.serial.Do(func() {
		if s.machine.StatusLocked().State == types.GenerationGenerating {
			err = types.ErrGenerationInProgress
			return
		}
		s.model.Clear()
		s.seq.Reset()
		s.persistLocked()
	})
	if err == nil {
		s.logger.Info("canvas cleared")
	}
	return err
}
