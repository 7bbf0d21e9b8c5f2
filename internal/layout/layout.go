// Package layout positions the canvas forest: each root tree grows left to
// right by depth, siblings stack top to bottom, and root trees stack
// vertically. Layout is a pure function of its inputs.
package layout

import (
	"sort"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// Default node sizes used when a node has not been measured.
var (
	RootSize      = types.Size{Width: 650, Height: 450}
	IterationSize = types.Size{Width: 400, Height: 300}
)

// Options holds the placement constants.
type Options struct {
	BaseX       float64
	BaseY       float64
	ColumnWidth float64
	Gap         float64
	GroupGap    float64
}

// DefaultOptions returns the standard placement constants.
func DefaultOptions() Options {
	return Options{
		BaseX:       50,
		BaseY:       50,
		ColumnWidth: 500,
		Gap:         60,
		GroupGap:    100,
	}
}

// SizeFunc returns the size of a node.
type SizeFunc func(types.Node) types.Size

// DefaultSize returns the measured size of n, or the default for its kind.
func DefaultSize(n types.Node) types.Size {
	if n.Size != nil && n.Size.Width > 0 && n.Size.Height > 0 {
		return *n.Size
	}
	if n.Kind == types.KindRoot {
		return RootSize
	}
	return IterationSize
}

// Layout positions nodes with the default options.
func Layout(nodes []types.Node, edges []types.Edge, collapsed map[string]bool, sizeOf SizeFunc) map[string]types.Position {
	return DefaultOptions().Layout(nodes, edges, collapsed, sizeOf)
}

// Layout returns a position for every visible node. Nodes hidden by the
// collapsed set get no position.
func (o Options) Layout(nodes []types.Node, edges []types.Edge, collapsed map[string]bool, sizeOf SizeFunc) map[string]types.Position {
	if sizeOf == nil {
		sizeOf = DefaultSize
	}
	r := newRun(o, nodes, edges, collapsed, sizeOf)

	y := o.BaseY
	for _, id := range r.order {
		if r.nodes[id].Kind != types.KindRoot || r.placed[id] {
			continue
		}
		r.place(id, 0, y)
		y += r.height(id) + o.GroupGap
	}

	// Nodes no root reaches go to the overflow column, true orphans first
	// and then members of parentless cycles.
	for _, pass := range []func(string) bool{
		func(id string) bool { return !r.hasParent[id] },
		func(string) bool { return true },
	} {
		for _, id := range r.order {
			if r.placed[id] || !pass(id) {
				continue
			}
			r.place(id, 1, y)
			y += r.height(id) + o.Gap
		}
	}
	return r.pos
}

type run struct {
	opts      Options
	order     []string
	nodes     map[string]types.Node
	sizes     map[string]types.Size
	children  map[string][]string
	hasParent map[string]bool

	memo     map[string]float64
	visiting map[string]bool
	placed   map[string]bool
	pos      map[string]types.Position
}

func newRun(o Options, nodes []types.Node, edges []types.Edge, collapsed map[string]bool, sizeOf SizeFunc) *run {
	hidden := canvas.Hidden(edges, collapsed)
	r := &run{
		opts:      o,
		nodes:     make(map[string]types.Node, len(nodes)),
		sizes:     make(map[string]types.Size, len(nodes)),
		children:  make(map[string][]string),
		hasParent: make(map[string]bool),
		memo:      make(map[string]float64),
		visiting:  make(map[string]bool),
		placed:    make(map[string]bool),
		pos:       make(map[string]types.Position, len(nodes)),
	}

	rank := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if hidden[n.ID] {
			continue
		}
		if _, dup := r.nodes[n.ID]; dup {
			continue
		}
		rank[n.ID] = len(r.order)
		r.order = append(r.order, n.ID)
		r.nodes[n.ID] = n
		r.sizes[n.ID] = sizeOf(n)
	}

	for _, e := range edges {
		_, src := r.nodes[e.Source]
		_, dst := r.nodes[e.Target]
		if !src || !dst || e.Source == e.Target {
			continue
		}
		r.children[e.Source] = append(r.children[e.Source], e.Target)
		r.hasParent[e.Target] = true
	}
	for id, kids := range r.children {
		sort.SliceStable(kids, func(i, j int) bool {
			a, b := r.nodes[kids[i]], r.nodes[kids[j]]
			if ka, kb := childKey(a), childKey(b); ka != kb {
				return ka < kb
			}
			return rank[a.ID] < rank[b.ID]
		})
		r.children[id] = kids
	}
	return r
}

// childKey orders iterations by index ahead of placeholders by ordinal.
func childKey(n types.Node) int {
	switch {
	case n.Iteration != nil:
		return n.Iteration.Index
	case n.Placeholder != nil:
		return 1<<20 + n.Placeholder.Ordinal
	}
	return 0
}

// height returns the vertical extent of the subtree under id. A child that is
// still being visited closes a cycle and counts as a leaf.
func (r *run) height(id string) float64 {
	if h, ok := r.memo[id]; ok {
		return h
	}
	own := r.sizes[id].Height
	if r.visiting[id] {
		return own
	}
	r.visiting[id] = true
	defer delete(r.visiting, id)

	kids := r.children[id]
	if len(kids) == 0 {
		r.memo[id] = own
		return own
	}
	span := r.opts.Gap * float64(len(kids)-1)
	for _, k := range kids {
		span += r.height(k)
	}
	h := max(own, span)
	r.memo[id] = h
	return h
}

// place positions the subtree under id inside [y0, y0+height(id)].
func (r *run) place(id string, depth int, y0 float64) {
	r.placed[id] = true
	x := r.opts.BaseX + float64(depth)*r.opts.ColumnWidth
	own := r.sizes[id].Height

	var kids []string
	for _, k := range r.children[id] {
		if !r.placed[k] {
			kids = append(kids, k)
		}
	}
	if len(kids) == 0 {
		r.pos[id] = types.Position{X: x, Y: y0}
		return
	}
	// Mark first so a cycle back to a sibling is not placed twice.
	for _, k := range kids {
		r.placed[k] = true
	}

	span := r.opts.Gap * float64(len(kids)-1)
	for _, k := range kids {
		span += r.height(k)
	}

	childY, parentY := y0, y0+span/2-own/2
	if own > span {
		childY, parentY = y0+(own-span)/2, y0
	}
	r.pos[id] = types.Position{X: x, Y: parentY}

	for _, k := range kids {
		r.place(k, depth+1, childY)
		childY += r.height(k) + r.opts.Gap
	}
}
