// Package session owns one playground canvas: its graph model, tree
// manifest, reconciliation loop, generation lifecycle, and deletion engine.
// Every mutation runs on the session's serial section.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/deletion"
	"github.com/mesh-intelligence/playground/internal/generation"
	"github.com/mesh-intelligence/playground/internal/layout"
	"github.com/mesh-intelligence/playground/internal/manifest"
	"github.com/mesh-intelligence/playground/internal/reconcile"
	"github.com/mesh-intelligence/playground/internal/schedule"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// Store persists the manifest and the canvas.
type Store interface {
	manifest.Store
	canvas.Store
}

// Source lists iteration files and removes them.
type Source interface {
	reconcile.Lister
	deletion.Remover
}

// Config wires a Session.
type Config struct {
	Store     Store
	Source    Source
	Job       generation.Job
	Scheduler schedule.Scheduler
	Logger    *slog.Logger
	Layout    layout.Options

	PollInterval         time.Duration
	PollWindow           time.Duration
	ScanGrace            time.Duration
	ArrangeDelay         time.Duration
	PostScanArrangeDelay time.Duration
}

// Session is the live state of one canvas.
type Session struct {
	cfg    Config
	logger *slog.Logger

	serial   *schedule.Serial
	model    *canvas.Model
	manifest *manifest.Manifest
	seq      *canvas.Sequence

	loop    *reconcile.Loop
	machine *generation.Machine
	deleter *deletion.Engine

	pollCtx    context.Context
	pollCancel context.CancelFunc
}

// Open builds a Session and loads its persisted state. A canvas that cannot
// be parsed starts empty.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil || cfg.Source == nil || cfg.Job == nil {
		return nil, errors.New("session: store, source, and job are required")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.Real{}
	}
	if cfg.Layout == (layout.Options{}) {
		cfg.Layout = layout.DefaultOptions()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:      cfg,
		logger:   logger.With("component", "session"),
		serial:   &schedule.Serial{},
		model:    canvas.NewModel(),
		manifest: manifest.New(cfg.Store, logger),
		seq:      &canvas.Sequence{},
	}
	s.pollCtx, s.pollCancel = context.WithCancel(context.Background())

	if err := s.manifest.Load(ctx); err != nil {
		return nil, err
	}
	st, err := cfg.Store.LoadCanvas(ctx)
	switch {
	case errors.Is(err, canvas.ErrCorrupt):
		s.logger.Warn("canvas state unreadable, starting empty", "error", err)
		st = canvas.State{}
	case err != nil:
		return nil, fmt.Errorf("load canvas: %w", err)
	}
	s.model.Restore(st)
	ids := make([]string, 0, len(st.Nodes))
	for _, n := range st.Nodes {
		ids = append(ids, n.ID)
	}
	s.seq.Restore(st.Counter, ids...)

	s.loop, err = reconcile.New(reconcile.Config{
		Lister:       cfg.Source,
		Model:        s.model,
		Manifest:     s.manifest,
		Sequence:     s.seq,
		Serial:       s.serial,
		Scheduler:    cfg.Scheduler,
		Logger:       logger,
		OnChange:     s.arrangeLocked,
		PollInterval: cfg.PollInterval,
		PollWindow:   cfg.PollWindow,
	})
	if err != nil {
		return nil, err
	}

	s.machine, err = generation.New(generation.Config{
		Model:                s.model,
		Sequence:             s.seq,
		Serial:               s.serial,
		Scheduler:            cfg.Scheduler,
		Job:                  cfg.Job,
		Scanner:              s.loop,
		Layout:               s.layoutPositions,
		Logger:               logger,
		Arrange:              s.arrangeLocked,
		ScanGrace:            cfg.ScanGrace,
		ArrangeDelay:         cfg.ArrangeDelay,
		PostScanArrangeDelay: cfg.PostScanArrangeDelay,
	})
	if err != nil {
		return nil, err
	}

	s.deleter, err = deletion.New(deletion.Config{
		Model:    s.model,
		Manifest: s.manifest,
		Remover:  cfg.Source,
		Logger:   logger,
		ActiveTarget: func() (string, bool) {
			st := s.machine.StatusLocked()
			if st.Active == nil {
				return "", false
			}
			return st.Active.ParentNodeID, true
		},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session opened", "nodes", len(st.Nodes), "manifest_entries", s.manifest.Len())
	return s, nil
}

// Close stops polling and pending timers and saves the canvas.
func (s *Session) Close() {
	s.loop.StopPolling()
	s.pollCancel()
	s.machine.Close()
	s.serial.Do(s.persistLocked)
}

// Manifest returns the tree manifest.
func (s *Session) Manifest() *manifest.Manifest { return s.manifest }

// Snapshot returns the current canvas graph.
func (s *Session) Snapshot() canvas.Snapshot { return s.model.Snapshot() }

// layoutPositions runs the configured layout with measured sizes.
func (s *Session) layoutPositions(nodes []types.Node, edges []types.Edge, collapsed map[string]bool) map[string]types.Position {
	return s.cfg.Layout.Layout(nodes, edges, collapsed, layout.DefaultSize)
}

// persistLocked saves the canvas. Failures are logged; the in-memory canvas
// stays authoritative until the next save.
func (s *Session) persistLocked() {
	st := s.model.State(s.seq.Value())
	if err := s.cfg.Store.SaveCanvas(context.Background(), st); err != nil {
		s.logger.Warn("canvas save failed", "error", err)
	}
}
