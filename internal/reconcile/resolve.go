package reconcile

import (
	"regexp"
	"strings"

	"github.com/mesh-intelligence/playground/pkg/types"
)

var upperRun = regexp.MustCompile(`([A-Z])`)

// KebabCase converts a component name such as "PricingCard" to the registry
// identifier form "pricing-card".
func KebabCase(name string) string {
	s := upperRun.ReplaceAllString(name, "-$1")
	s = strings.TrimPrefix(strings.ToLower(s), "-")
	return strings.Join(strings.Fields(s), "-")
}

// candidateIDs returns the root identifiers an iteration of componentRef may
// belong to.
func candidateIDs(componentRef, parentRef string) []string {
	kebab := KebabCase(componentRef)
	ids := []string{
		kebab,
		strings.ToLower(componentRef),
		kebab + "-expanded",
		kebab + "-minimal",
	}
	if parentRef != "" {
		ids = append(ids, parentRef)
	}
	return ids
}

// Collision records a heuristic match that had several equally good roots.
type Collision struct {
	IterationID string   `json:"iteration_id"`
	Candidates  []string `json:"candidates"`
	Chosen      string   `json:"chosen"`
}

const (
	rankExact = iota
	rankContains
	rankNone
)

// matchRoot picks the root whose component id best matches the iteration.
// Exact matches beat substring matches; ties go to the first root in canvas
// order and are reported as a collision.
func matchRoot(it types.Iteration, roots []types.Node) (types.Node, *Collision, bool) {
	ids := candidateIDs(it.ComponentRef, it.ParentRef)

	best := rankNone
	var matches []types.Node
	for _, r := range roots {
		if r.Root == nil {
			continue
		}
		rank := rankFor(r.Root.ComponentID, ids)
		switch {
		case rank < best:
			best = rank
			matches = []types.Node{r}
		case rank == best && rank != rankNone:
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return types.Node{}, nil, false
	}
	if len(matches) == 1 {
		return matches[0], nil, true
	}

	c := &Collision{IterationID: it.ID, Chosen: matches[0].ID}
	for _, m := range matches {
		c.Candidates = append(c.Candidates, m.ID)
	}
	return matches[0], c, true
}

func rankFor(componentID string, ids []string) int {
	if componentID == "" {
		return rankNone
	}
	rank := rankNone
	for _, id := range ids {
		if id == "" {
			continue
		}
		if componentID == id {
			return rankExact
		}
		if strings.Contains(componentID, id) {
			rank = rankContains
		}
	}
	return rank
}
