package types

import "fmt"

// NodeKind discriminates the payload carried by a Node.
type NodeKind string

// Node kinds.
const (
	KindRoot        NodeKind = "root"
	KindIteration   NodeKind = "iteration"
	KindPlaceholder NodeKind = "placeholder"
)

// Position is a canvas coordinate of a node's top-left corner.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is the rendered size of a node.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RootData identifies the source component a root node shows.
type RootData struct {
	ComponentID string `json:"component_id"`
}

// IterationData describes a materialized iteration file.
type IterationData struct {
	IterationID   string `json:"iteration_id"`
	ComponentName string `json:"component_name"`
	Index         int    `json:"index"`
	ParentNodeID  string `json:"parent_node_id"`
	Mode          string `json:"mode,omitempty"`
	Description   string `json:"description,omitempty"`
}

// PlaceholderData marks a slot reserved for an iteration that is still being
// generated. Placeholders are never persisted.
type PlaceholderData struct {
	ParentNodeID  string `json:"parent_node_id"`
	ComponentName string `json:"component_name"`
	Ordinal       int    `json:"ordinal"`
	Total         int    `json:"total"`
}

// Node is a canvas node. Exactly one of Root, Iteration, or Placeholder is
// set, matching Kind. Nodes are treated as values: mutation produces a copy.
type Node struct {
	ID          string           `json:"id"`
	Kind        NodeKind         `json:"kind"`
	Position    Position         `json:"position"`
	Size        *Size            `json:"size,omitempty"`
	Root        *RootData        `json:"root,omitempty"`
	Iteration   *IterationData   `json:"iteration,omitempty"`
	Placeholder *PlaceholderData `json:"placeholder,omitempty"`
}

// NewRootNode returns a root node for componentID at pos.
func NewRootNode(id, componentID string, pos Position) Node {
	return Node{ID: id, Kind: KindRoot, Position: pos, Root: &RootData{ComponentID: componentID}}
}

// NewIterationNode returns an iteration node with the given payload.
func NewIterationNode(id string, data IterationData, pos Position) Node {
	return Node{ID: id, Kind: KindIteration, Position: pos, Iteration: &data}
}

// NewPlaceholderNode returns a placeholder node with the given payload.
func NewPlaceholderNode(id string, data PlaceholderData, pos Position) Node {
	return Node{ID: id, Kind: KindPlaceholder, Position: pos, Placeholder: &data}
}

// Validate reports ErrInvalidNode when the payload does not match Kind.
func (n Node) Validate() error {
	if n.ID == "" {
		return ErrInvalidID
	}
	set := 0
	if n.Root != nil {
		set++
	}
	if n.Iteration != nil {
		set++
	}
	if n.Placeholder != nil {
		set++
	}
	ok := set == 1
	switch n.Kind {
	case KindRoot:
		ok = ok && n.Root != nil
	case KindIteration:
		ok = ok && n.Iteration != nil
	case KindPlaceholder:
		ok = ok && n.Placeholder != nil
	default:
		ok = false
	}
	if !ok {
		return fmt.Errorf("node %s (%s): %w", n.ID, n.Kind, ErrInvalidNode)
	}
	return nil
}

// ParentID returns the parent node id of an iteration or placeholder. Root
// nodes have no parent.
func (n Node) ParentID() (string, bool) {
	switch {
	case n.Iteration != nil:
		return n.Iteration.ParentNodeID, n.Iteration.ParentNodeID != ""
	case n.Placeholder != nil:
		return n.Placeholder.ParentNodeID, n.Placeholder.ParentNodeID != ""
	}
	return "", false
}

// WithParent returns a copy of n attached to parentID. Root nodes are
// returned unchanged.
func (n Node) WithParent(parentID string) Node {
	switch {
	case n.Iteration != nil:
		d := *n.Iteration
		d.ParentNodeID = parentID
		n.Iteration = &d
	case n.Placeholder != nil:
		d := *n.Placeholder
		d.ParentNodeID = parentID
		n.Placeholder = &d
	}
	return n
}

// ComponentName returns the component a node belongs to.
func (n Node) ComponentName() string {
	switch {
	case n.Root != nil:
		return n.Root.ComponentID
	case n.Iteration != nil:
		return n.Iteration.ComponentName
	case n.Placeholder != nil:
		return n.Placeholder.ComponentName
	}
	return ""
}

// Edge is a directed parent to child link between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// NewEdge returns the edge from source to target with its canonical id.
func NewEdge(source, target string) Edge {
	return Edge{ID: "edge_" + source + "_" + target, Source: source, Target: target}
}
