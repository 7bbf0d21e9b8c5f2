// Package canvas holds the canvas graph: nodes, parent to child edges, the
// collapsed set, and the known iteration ids. Mutations are pure functions
// over immutable snapshots; a Model swaps whole snapshots in one step.
package canvas

import (
	"github.com/mesh-intelligence/playground/pkg/types"
)

// Snapshot is an immutable view of the canvas nodes and edges. Operations
// return a new Snapshot and never modify the receiver.
type Snapshot struct {
	nodes []types.Node
	edges []types.Edge
	index map[string]int
}

// NewSnapshot builds a snapshot from nodes and edges. Duplicate node ids keep
// the first occurrence; invalid edges are pruned.
func NewSnapshot(nodes []types.Node, edges []types.Edge) Snapshot {
	s := Snapshot{}.AddNodes(nodes...)
	return s.AddEdges(edges...)
}

// Nodes returns a copy of the nodes in insertion order.
func (s Snapshot) Nodes() []types.Node {
	return append([]types.Node(nil), s.nodes...)
}

// Edges returns a copy of the edges in insertion order.
func (s Snapshot) Edges() []types.Edge {
	return append([]types.Edge(nil), s.edges...)
}

// Len returns the number of nodes.
func (s Snapshot) Len() int { return len(s.nodes) }

// Node returns the node with id.
func (s Snapshot) Node(id string) (types.Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return types.Node{}, false
	}
	return s.nodes[i], true
}

// AddNodes appends nodes whose ids are not yet present.
func (s Snapshot) AddNodes(nodes ...types.Node) Snapshot {
	out := Snapshot{
		nodes: make([]types.Node, len(s.nodes), len(s.nodes)+len(nodes)),
		edges: s.edges,
		index: make(map[string]int, len(s.nodes)+len(nodes)),
	}
	copy(out.nodes, s.nodes)
	for id, i := range s.index {
		out.index[id] = i
	}
	for _, n := range nodes {
		if _, dup := out.index[n.ID]; dup || n.ID == "" {
			continue
		}
		out.index[n.ID] = len(out.nodes)
		out.nodes = append(out.nodes, n)
	}
	return out
}

// AddEdges appends edges whose endpoints both exist and that are not already
// present. A target keeps a single incoming edge; later edges to the same
// target are dropped.
func (s Snapshot) AddEdges(edges ...types.Edge) Snapshot {
	out := s
	out.edges = append([]types.Edge(nil), s.edges...)

	targets := make(map[string]bool, len(out.edges))
	for _, e := range out.edges {
		targets[e.Target] = true
	}
	for _, e := range edges {
		if !s.validEdge(e) || targets[e.Target] {
			continue
		}
		if e.ID == "" {
			e = types.NewEdge(e.Source, e.Target)
		}
		targets[e.Target] = true
		out.edges = append(out.edges, e)
	}
	return out
}

// RemoveNodes drops every node matching pred and every edge touching one.
func (s Snapshot) RemoveNodes(pred func(types.Node) bool) Snapshot {
	var kept []types.Node
	for _, n := range s.nodes {
		if !pred(n) {
			kept = append(kept, n)
		}
	}
	out := Snapshot{}.AddNodes(kept...)
	out.edges = s.edges
	return out.Prune()
}

// RemoveEdges drops every edge matching pred.
func (s Snapshot) RemoveEdges(pred func(types.Edge) bool) Snapshot {
	out := s
	out.edges = nil
	for _, e := range s.edges {
		if !pred(e) {
			out.edges = append(out.edges, e)
		}
	}
	return out
}

// UpdateNodePosition returns a snapshot where node id sits at pos.
func (s Snapshot) UpdateNodePosition(id string, pos types.Position) Snapshot {
	return s.replace(id, func(n types.Node) types.Node {
		n.Position = pos
		return n
	})
}

// SetNodeSize records the measured size of node id.
func (s Snapshot) SetNodeSize(id string, size types.Size) Snapshot {
	return s.replace(id, func(n types.Node) types.Node {
		n.Size = &size
		return n
	})
}

// ReplaceNode swaps node n.ID for n.
func (s Snapshot) ReplaceNode(n types.Node) Snapshot {
	return s.replace(n.ID, func(types.Node) types.Node { return n })
}

// ApplyPositions moves every node listed in pos.
func (s Snapshot) ApplyPositions(pos map[string]types.Position) Snapshot {
	out := s
	out.nodes = make([]types.Node, len(s.nodes))
	for i, n := range s.nodes {
		if p, ok := pos[n.ID]; ok {
			n.Position = p
		}
		out.nodes[i] = n
	}
	return out
}

// Prune drops edges whose endpoints do not both resolve, duplicate edges,
// and any second incoming edge of a node.
func (s Snapshot) Prune() Snapshot {
	out := s
	out.edges = nil
	targets := make(map[string]bool, len(s.edges))
	for _, e := range s.edges {
		if !s.validEdge(e) || targets[e.Target] {
			continue
		}
		targets[e.Target] = true
		out.edges = append(out.edges, e)
	}
	return out
}

// Children returns the ids of the direct children of id in edge order.
func (s Snapshot) Children(id string) []string {
	var out []string
	for _, e := range s.edges {
		if e.Source == id {
			out = append(out, e.Target)
		}
	}
	return out
}

// Parent returns the source of the edge into id.
func (s Snapshot) Parent(id string) (string, bool) {
	for _, e := range s.edges {
		if e.Target == id {
			return e.Source, true
		}
	}
	return "", false
}

// Descendants returns every node reachable from id over edges, excluding id,
// in breadth-first order.
func (s Snapshot) Descendants(id string) []string {
	adj := s.adjacency()
	visited := map[string]bool{id: true}
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, kid := range adj[cur] {
			if visited[kid] {
				continue
			}
			visited[kid] = true
			out = append(out, kid)
			queue = append(queue, kid)
		}
	}
	return out
}

// FindIteration returns the node materializing iteration iterationID.
func (s Snapshot) FindIteration(iterationID string) (types.Node, bool) {
	for _, n := range s.nodes {
		if n.Iteration != nil && n.Iteration.IterationID == iterationID {
			return n, true
		}
	}
	return types.Node{}, false
}

// Roots returns the root nodes in insertion order.
func (s Snapshot) Roots() []types.Node {
	var out []types.Node
	for _, n := range s.nodes {
		if n.Kind == types.KindRoot {
			out = append(out, n)
		}
	}
	return out
}

func (s Snapshot) adjacency() map[string][]string {
	adj := make(map[string][]string)
	for _, e := range s.edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

func (s Snapshot) validEdge(e types.Edge) bool {
	if e.Source == "" || e.Target == "" || e.Source == e.Target {
		return false
	}
	_, src := s.index[e.Source]
	_, dst := s.index[e.Target]
	return src && dst
}

func (s Snapshot) replace(id string, fn func(types.Node) types.Node) Snapshot {
	i, ok := s.index[id]
	if !ok {
		return s
	}
	out := s
	out.nodes = append([]types.Node(nil), s.nodes...)
	out.nodes[i] = fn(s.nodes[i])
	return out
}
