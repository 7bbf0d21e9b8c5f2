// Package deletion removes iterations from the canvas and the tree manifest
// together. The manifest write happens first; the canvas changes only when
// it succeeds.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/manifest"
	"github.com/mesh-intelligence/playground/pkg/types"
)

var deletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "playground_deletions_total",
	Help: "Total iteration deletions by mode and result",
}, []string{"mode", "result"})

// Remover deletes the stored artifact of an iteration. A missing artifact
// should be reported as types.ErrNotFound.
type Remover interface {
	Remove(ctx context.Context, iterationID string) error
}

// Config wires an Engine.
type Config struct {
	Model    *canvas.Model
	Manifest *manifest.Manifest
	Remover  Remover
	Logger   *slog.Logger

	// ActiveTarget returns the node a running generation is attached to.
	ActiveTarget func() (string, bool)
}

// Engine performs cascade and reparent deletes. Its methods must run inside
// the session's serial section.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Model == nil || cfg.Manifest == nil {
		return nil, errors.New("deletion: model and manifest are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger.With("component", "deletion")}, nil
}

// target is the resolved deletion subject.
type target struct {
	iterationID string
	node        types.Node
	onCanvas    bool
}

// Delete removes id with the given mode. id is an iteration id or the canvas
// node id of an iteration.
func (e *Engine) Delete(ctx context.Context, id string, mode types.DeleteMode) (types.DeleteResult, error) {
	tgt, err := e.resolve(id)
	if err != nil {
		deletionsTotal.WithLabelValues(string(mode), "not_found").Inc()
		return types.DeleteResult{}, err
	}

	var res types.DeleteResult
	switch mode {
	case types.DeleteCascade:
		res, err = e.cascade(ctx, tgt)
	case types.DeleteReparent:
		res, err = e.reparent(ctx, tgt)
	default:
		return types.DeleteResult{}, fmt.Errorf("%q: %w", mode, types.ErrInvalidDeleteMode)
	}
	if err != nil && len(res.DeletedIDs) == 0 {
		deletionsTotal.WithLabelValues(string(mode), "error").Inc()
		e.logger.Warn("delete failed", "iteration_id", tgt.iterationID, "mode", mode, "error", err)
		return res, err
	}
	deletionsTotal.WithLabelValues(string(mode), "ok").Inc()
	e.logger.Info("deleted", "iteration_id", tgt.iterationID, "mode", mode, "deleted", res.DeletedIDs)
	return res, err
}

func (e *Engine) resolve(id string) (target, error) {
	snap := e.cfg.Model.Snapshot()
	if n, ok := snap.FindIteration(id); ok {
		return target{iterationID: id, node: n, onCanvas: true}, nil
	}
	if n, ok := snap.Node(id); ok && n.Iteration != nil {
		return target{iterationID: n.Iteration.IterationID, node: n, onCanvas: true}, nil
	}
	if _, ok := e.cfg.Manifest.Get(id); ok {
		return target{iterationID: id}, nil
	}
	return target{}, fmt.Errorf("iteration %s: %w", id, types.ErrNotFound)
}

func (e *Engine) cascade(ctx context.Context, tgt target) (types.DeleteResult, error) {
	snap := e.cfg.Model.Snapshot()

	seen := map[string]bool{tgt.iterationID: true}
	removed := []string{tgt.iterationID}
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			removed = append(removed, id)
		}
	}
	for _, d := range e.cfg.Manifest.Descendants(tgt.iterationID) {
		add(d)
	}

	dropNodes := make(map[string]bool)
	if tgt.onCanvas {
		dropNodes[tgt.node.ID] = true
		for _, nid := range snap.Descendants(tgt.node.ID) {
			dropNodes[nid] = true
			if n, ok := snap.Node(nid); ok && n.Iteration != nil {
				add(n.Iteration.IterationID)
			}
		}
	}
	for _, id := range removed {
		if n, ok := snap.FindIteration(id); ok {
			dropNodes[n.ID] = true
		}
	}

	if active, ok := e.activeTarget(); ok && dropNodes[active] {
		return types.DeleteResult{}, types.ErrGenerationTarget
	}

	err := e.cfg.Manifest.Update(ctx, func(tx *manifest.Manifest) error {
		for _, id := range removed {
			tx.Remove(id)
		}
		return nil
	})
	if err != nil {
		return types.DeleteResult{}, fmt.Errorf("delete %s: %w", tgt.iterationID, err)
	}

	e.cfg.Model.Commit(snap.RemoveNodes(func(n types.Node) bool { return dropNodes[n.ID] }))
	e.cfg.Model.ForgetKnown(removed...)

	return types.DeleteResult{DeletedIDs: removed}, e.removeArtifacts(ctx, removed)
}

func (e *Engine) reparent(ctx context.Context, tgt target) (types.DeleteResult, error) {
	snap := e.cfg.Model.Snapshot()

	if active, ok := e.activeTarget(); ok && tgt.onCanvas && active == tgt.node.ID {
		return types.DeleteResult{}, types.ErrGenerationTarget
	}

	parentRef, hasParent := e.cfg.Manifest.Get(tgt.iterationID)
	parentNodeID, hasParentNode := "", false
	if tgt.onCanvas {
		parentNodeID, hasParentNode = snap.Parent(tgt.node.ID)
		if !hasParent && hasParentNode {
			if p, ok := snap.Node(parentNodeID); ok {
				parentRef, hasParent = reference(p)
			}
		}
	}
	// Every non-root id keeps exactly one manifest entry.
	if !hasParent {
		hasKids := len(e.cfg.Manifest.Children(tgt.iterationID)) > 0
		if tgt.onCanvas && len(snap.Children(tgt.node.ID)) > 0 {
			hasKids = true
		}
		if hasKids {
			return types.DeleteResult{}, fmt.Errorf("reparent %s: %w", tgt.iterationID, types.ErrNoReparentTarget)
		}
	}

	err := e.cfg.Manifest.Update(ctx, func(tx *manifest.Manifest) error {
		for _, c := range tx.Children(tgt.iterationID) {
			if err := tx.Set(c, parentRef); err != nil {
				return err
			}
		}
		tx.Remove(tgt.iterationID)
		return nil
	})
	if err != nil {
		return types.DeleteResult{}, fmt.Errorf("delete %s: %w", tgt.iterationID, err)
	}

	if tgt.onCanvas {
		next := snap.RemoveNodes(func(n types.Node) bool { return n.ID == tgt.node.ID })
		for _, cid := range snap.Children(tgt.node.ID) {
			c, ok := snap.Node(cid)
			if !ok {
				continue
			}
			next = next.ReplaceNode(c.WithParent(parentNodeID))
			if hasParentNode {
				next = next.AddEdges(types.NewEdge(parentNodeID, cid))
			}
		}
		e.cfg.Model.Commit(next)
	}
	e.cfg.Model.ForgetKnown(tgt.iterationID)

	removed := []string{tgt.iterationID}
	return types.DeleteResult{DeletedIDs: removed}, e.removeArtifacts(ctx, removed)
}

// removeArtifacts deletes stored files. Ids whose removal fails stay known so
// the next scan does not bring them back.
func (e *Engine) removeArtifacts(ctx context.Context, ids []string) error {
	if e.cfg.Remover == nil {
		return nil
	}
	var errs []error
	for _, id := range ids {
		err := e.cfg.Remover.Remove(ctx, id)
		if err == nil || errors.Is(err, types.ErrNotFound) {
			continue
		}
		e.cfg.Model.MarkKnown(id)
		errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
	}
	return errors.Join(errs...)
}

func (e *Engine) activeTarget() (string, bool) {
	if e.cfg.ActiveTarget == nil {
		return "", false
	}
	return e.cfg.ActiveTarget()
}

// reference returns the manifest identifier of a canvas node.
func reference(n types.Node) (string, bool) {
	switch {
	case n.Iteration != nil:
		return n.Iteration.IterationID, true
	case n.Root != nil:
		return n.Root.ComponentID, true
	}
	return "", false
}
