package canvas

import (
	"sort"
	"sync"

	"github.com/mesh-intelligence/playground/pkg/types"
)

// Model is the live canvas: the current snapshot plus the collapsed set and
// the known iteration ids.
type Model struct {
	mu        sync.RWMutex
	snap      Snapshot
	collapsed map[string]bool
	known     map[string]bool
}

// NewModel returns an empty canvas.
func NewModel() *Model {
	return &Model{
		collapsed: make(map[string]bool),
		known:     make(map[string]bool),
	}
}

// Snapshot returns the current snapshot.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// Commit makes s the current snapshot. Collapsed ids that no longer name a
// node are dropped.
func (m *Model) Commit(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s
	for id := range m.collapsed {
		if _, ok := s.Node(id); !ok {
			delete(m.collapsed, id)
		}
	}
}

// IsCollapsed reports whether id is in the collapsed set.
func (m *Model) IsCollapsed(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collapsed[id]
}

// SetCollapsed adds or removes id from the collapsed set.
func (m *Model) SetCollapsed(id string, collapsed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snap.Node(id); !ok {
		return types.ErrNotFound
	}
	if collapsed {
		m.collapsed[id] = true
	} else {
		delete(m.collapsed, id)
	}
	return nil
}

// ToggleCollapsed flips id's membership in the collapsed set and returns the
// new value.
func (m *Model) ToggleCollapsed(id string) (bool, error) {
	next := !m.IsCollapsed(id)
	if err := m.SetCollapsed(id, next); err != nil {
		return false, err
	}
	return next, nil
}

// Collapsed returns a copy of the collapsed set.
func (m *Model) Collapsed() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.collapsed))
	for id := range m.collapsed {
		out[id] = true
	}
	return out
}

// HasChildren reports whether any edge leaves id.
func (m *Model) HasChildren(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.snap.edges {
		if e.Source == id {
			return true
		}
	}
	return false
}

// Hidden returns the ids hidden by the collapsed set.
func (m *Model) Hidden() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Hidden(m.snap.edges, m.collapsed)
}

// IsKnown reports whether iteration id has been materialized, either through
// the known set or an iteration node on the canvas. A manifest entry alone
// does not make an id known, so a cleared canvas rediscovers every file.
func (m *Model) IsKnown(iterationID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.known[iterationID] {
		return true
	}
	_, ok := m.snap.FindIteration(iterationID)
	return ok
}

// MarkKnown adds ids to the known set.
func (m *Model) MarkKnown(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.known[id] = true
	}
}

// ForgetKnown removes ids from the known set.
func (m *Model) ForgetKnown(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.known, id)
	}
}

// Clear empties the canvas, the collapsed set, and the known set.
func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{}
	m.collapsed = make(map[string]bool)
	m.known = make(map[string]bool)
}

// State returns the durable part of the canvas. Placeholders are left out.
func (m *Model) State(counter int) State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snap.RemoveNodes(func(n types.Node) bool { return n.Kind == types.KindPlaceholder })
	return State{
		Nodes:     s.Nodes(),
		Edges:     s.Edges(),
		Counter:   counter,
		Known:     sortedKeys(m.known),
		Collapsed: sortedKeys(m.collapsed),
	}
}

// Restore replaces the canvas with st. Invalid nodes and placeholders are
// dropped.
func (m *Model) Restore(st State) {
	var nodes []types.Node
	for _, n := range st.Nodes {
		if n.Kind == types.KindPlaceholder || n.Validate() != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	snap := NewSnapshot(nodes, st.Edges)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.known = make(map[string]bool, len(st.Known))
	for _, id := range st.Known {
		m.known[id] = true
	}
	m.collapsed = make(map[string]bool, len(st.Collapsed))
	for _, id := range st.Collapsed {
		if _, ok := snap.Node(id); ok {
			m.collapsed[id] = true
		}
	}
}

// Hidden returns every node below a collapsed node. The walk visits each
// node once, so cyclic edges terminate.
func Hidden(edges []types.Edge, collapsed map[string]bool) map[string]bool {
	hidden := make(map[string]bool)
	if len(collapsed) == 0 {
		return hidden
	}
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	starts := sortedKeys(collapsed)
	visited := make(map[string]bool)
	for _, start := range starts {
		queue := append([]string(nil), adj[start]...)
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if visited[cur] {
				continue
			}
			visited[cur] = true
			hidden[cur] = true
			queue = append(queue, adj[cur]...)
		}
	}
	return hidden
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
