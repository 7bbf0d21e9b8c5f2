// Package manifest maintains the tree manifest: the persisted child to parent
// map that records the ancestry of every generated iteration.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mesh-intelligence/playground/pkg/types"
)

// ErrCorrupt is returned by a Store when the persisted manifest cannot be
// parsed.
var ErrCorrupt = errors.New("manifest is corrupt")

// Store persists the manifest as a map from child id to parent id.
type Store interface {
	// Load returns the stored map. A missing manifest is an empty map.
	Load(ctx context.Context) (map[string]string, error)
	// Save replaces the stored map.
	Save(ctx context.Context, parents map[string]string) error
}

// Manifest is the in-memory cache of the tree manifest backed by a Store.
type Manifest struct {
	mu      sync.RWMutex
	store   Store
	logger  *slog.Logger
	parents map[string]string
}

// New returns an empty manifest backed by store. Call Load to read it.
func New(store Store, logger *slog.Logger) *Manifest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manifest{
		store:   store,
		logger:  logger,
		parents: make(map[string]string),
	}
}

// Load replaces the cache with the stored manifest. A manifest that cannot be
// parsed is treated as empty and logged; other read failures are returned and
// leave the cache unchanged.
func (m *Manifest) Load(ctx context.Context) error {
	parents, err := m.store.Load(ctx)
	if errors.Is(err, ErrCorrupt) {
		m.logger.Warn("tree manifest unreadable, starting empty", "error", err)
		parents = nil
	} else if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents = make(map[string]string, len(parents))
	for id, p := range parents {
		m.parents[id] = p
	}
	return nil
}

// Save writes the cache to the store.
func (m *Manifest) Save(ctx context.Context) error {
	m.mu.RLock()
	parents := copyMap(m.parents)
	m.mu.RUnlock()

	if err := m.store.Save(ctx, parents); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Update runs fn against a copy of the manifest, persists the copy, and only
// then makes it live. If fn or the write fails the manifest is unchanged.
func (m *Manifest) Update(ctx context.Context, fn func(tx *Manifest) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &Manifest{store: m.store, logger: m.logger, parents: copyMap(m.parents)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := m.store.Save(ctx, tx.parents); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	m.parents = tx.parents
	return nil
}

// Get returns the parent of id.
func (m *Manifest) Get(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parents[id]
	return p, ok
}

// Set records parent as the parent of id. It returns types.ErrCycle if id is
// parent or an ancestor of parent.
func (m *Manifest) Set(id, parent string) error {
	if id == "" || parent == "" {
		return types.ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for cur, ok := parent, true; ok; cur, ok = m.parents[cur] {
		if cur == id {
			return fmt.Errorf("set %s -> %s: %w", id, parent, types.ErrCycle)
		}
		if seen[cur] {
			break
		}
		seen[cur] = true
	}
	m.parents[id] = parent
	return nil
}

// Remove deletes the entry for id. Children of id keep pointing at it.
func (m *Manifest) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parents, id)
}

// Children returns the direct children of id in sorted order.
func (m *Manifest) Children(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for child, p := range m.parents {
		if p == id {
			out = append(out, child)
		}
	}
	sort.Strings(out)
	return out
}

// Descendants returns every transitive child of id in breadth-first order,
// excluding id. Corrupt cyclic data terminates because each id is visited once.
func (m *Manifest) Descendants(id string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	children := make(map[string][]string)
	for child, p := range m.parents {
		children[p] = append(children[p], child)
	}

	visited := map[string]bool{id: true}
	var out []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		kids := children[cur]
		sort.Strings(kids)
		for _, kid := range kids {
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

// Entries returns all entries sorted by id.
func (m *Manifest) Entries() []types.ManifestEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.ManifestEntry, 0, len(m.parents))
	for id, p := range m.parents {
		out = append(out, types.ManifestEntry{ID: id, Parent: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.parents)
}

func copyMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
