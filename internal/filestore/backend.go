// Package filestore persists the tree manifest and the canvas as JSON files in
// the data directory.
//
// tree.json holds the manifest as a flat object mapping each iteration id to
// its parent id. canvas.json holds the canvas nodes, edges, counter, known
// set, and collapsed set.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/manifest"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// File names inside DataDir.
const (
	ManifestFile = "tree.json"
	CanvasFile   = "canvas.json"
)

// Backend stores playground state as JSON files.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	dir      string
}

// NewBackend returns a detached backend. Call Attach before use.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach validates config and creates DataDir if needed.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	dir := config.DataDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	b.dir = dir
	b.attached = true
	return nil
}

// Detach releases the backend. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached = false
	return nil
}

// Load reads tree.json. A missing file is an empty manifest; a file that does
// not parse is reported as manifest.ErrCorrupt.
func (b *Backend) Load(ctx context.Context) (map[string]string, error) {
	path, err := b.path(ManifestFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	parents := map[string]string{}
	if err := json.Unmarshal(data, &parents); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", path, manifest.ErrCorrupt, err)
	}
	return parents, nil
}

// Save writes tree.json atomically.
func (b *Backend) Save(ctx context.Context, parents map[string]string) error {
	path, err := b.path(ManifestFile)
	if err != nil {
		return err
	}
	if parents == nil {
		parents = map[string]string{}
	}
	data, err := json.MarshalIndent(parents, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeFileAtomic(path, data)
}

// LoadCanvas reads canvas.json. A missing file is a zero State.
func (b *Backend) LoadCanvas(ctx context.Context) (canvas.State, error) {
	path, err := b.path(CanvasFile)
	if err != nil {
		return canvas.State{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return canvas.State{}, nil
	}
	if err != nil {
		return canvas.State{}, fmt.Errorf("read %s: %w", path, err)
	}

	var st canvas.State
	if err := json.Unmarshal(data, &st); err != nil {
		return canvas.State{}, fmt.Errorf("parse %s: %w: %w", path, canvas.ErrCorrupt, err)
	}
	return st, nil
}

// SaveCanvas writes canvas.json atomically.
func (b *Backend) SaveCanvas(ctx context.Context, st canvas.State) error {
	path, err := b.path(CanvasFile)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode canvas: %w", err)
	}
	return writeFileAtomic(path, data)
}

func (b *Backend) path(name string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return "", types.ErrDetached
	}
	return filepath.Join(b.dir, name), nil
}
