// Package store selects and attaches the storage backend named in the
// configuration.
package store

import (
	"fmt"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/filestore"
	"github.com/mesh-intelligence/playground/internal/manifest"
	"github.com/mesh-intelligence/playground/internal/sqlite"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// Backend persists the tree manifest and the canvas.
type Backend interface {
	manifest.Store
	canvas.Store
	Attach(config types.Config) error
	Detach() error
}

// New returns a detached backend for config.Backend.
func New(config types.Config) (Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Backend {
	case types.BackendSQLite:
		return sqlite.NewBackend(), nil
	default:
		return filestore.NewBackend(), nil
	}
}

// Open returns an attached backend for config.
func Open(config types.Config) (Backend, error) {
	b, err := New(config)
	if err != nil {
		return nil, err
	}
	if err := b.Attach(config); err != nil {
		return nil, fmt.Errorf("attach %s backend: %w", config.Backend, err)
	}
	return b, nil
}
