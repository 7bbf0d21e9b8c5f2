// Package reconcile keeps the canvas in step with the iteration files on
// disk. A scan lists the iterations, adds the ones the canvas has not seen
// under their resolved parents, and records their ancestry in the tree
// manifest. Adaptive polling repeats scans while discoveries keep arriving.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/manifest"
	"github.com/mesh-intelligence/playground/internal/schedule"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// Lister returns the current iteration listing. Calls must be idempotent.
type Lister interface {
	List(ctx context.Context) ([]types.Iteration, error)
}

// Config wires a Loop to the session state it reconciles.
type Config struct {
	Lister    Lister
	Model     *canvas.Model
	Manifest  *manifest.Manifest
	Sequence  *canvas.Sequence
	Serial    *schedule.Serial
	Scheduler schedule.Scheduler
	Logger    *slog.Logger

	// OnChange runs inside the serial section after a scan adds nodes.
	OnChange func()

	PollInterval time.Duration
	PollWindow   time.Duration
}

// Result summarizes one scan.
type Result struct {
	Added      []string    `json:"added"`
	NodeIDs    []string    `json:"node_ids"`
	Skipped    []string    `json:"skipped"`
	Collisions []Collision `json:"collisions,omitempty"`
}

// Loop runs scans and adaptive polling.
type Loop struct {
	cfg    Config
	logger *slog.Logger

	scanning atomic.Int32

	mu       sync.Mutex
	polling  bool
	pollCtx  context.Context
	interval schedule.Timer
	watchdog schedule.Timer
}

// New validates cfg and returns a Loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Lister == nil || cfg.Model == nil || cfg.Manifest == nil || cfg.Sequence == nil || cfg.Serial == nil {
		return nil, errors.New("reconcile: lister, model, manifest, sequence, and serial are required")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.Real{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = types.DefaultPollInterval
	}
	if cfg.PollWindow <= 0 {
		cfg.PollWindow = types.DefaultPollWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{cfg: cfg, logger: logger.With("component", "reconcile")}, nil
}

// Scan lists iterations and materializes the unknown ones. When extendWindow
// is set and something was added, the polling watchdog restarts. A listing
// or manifest write failure aborts the scan with the canvas unchanged.
func (l *Loop) Scan(ctx context.Context, extendWindow bool) (Result, error) {
	l.scanning.Add(1)
	defer l.scanning.Add(-1)

	items, err := l.cfg.Lister.List(ctx)
	if err != nil {
		scansTotal.WithLabelValues("list_error").Inc()
		l.logger.Warn("iteration listing failed", "error", err)
		return Result{}, fmt.Errorf("list iterations: %w", err)
	}

	var res Result
	var applyErr error
	l.cfg.Serial.Do(func() {
		res, applyErr = l.apply(ctx, items)
	})
	if applyErr != nil {
		scansTotal.WithLabelValues("write_error").Inc()
		l.logger.Warn("scan aborted", "error", applyErr)
		return Result{}, applyErr
	}

	scansTotal.WithLabelValues("ok").Inc()
	if len(res.Added) > 0 {
		l.logger.Info("iterations added", "count", len(res.Added), "ids", res.Added)
		if extendWindow {
			l.extendWindow()
		}
	}
	return res, nil
}

// Scanning reports whether a scan is in flight.
func (l *Loop) Scanning() bool {
	return l.scanning.Load() > 0
}

type resolved struct {
	item       types.Iteration
	nodeID     string
	parentNode types.Node
	parentRef  string
}

// apply runs inside the serial section.
func (l *Loop) apply(ctx context.Context, items []types.Iteration) (Result, error) {
	var res Result
	snap := l.cfg.Model.Snapshot()

	fresh := make(map[string]bool)
	var queue []types.Iteration
	for _, it := range items {
		if it.ID == "" || fresh[it.ID] || l.cfg.Model.IsKnown(it.ID) {
			continue
		}
		fresh[it.ID] = true
		queue = append(queue, it)
	}
	if len(queue) == 0 {
		return res, nil
	}

	// Entries whose source is new in this scan wait for it; repeat until a
	// pass makes no progress so chains resolve in any listing order.
	pending := make(map[string]types.Node)
	var out []resolved
	for progress := true; progress && len(queue) > 0; {
		progress = false
		var next []types.Iteration
		for _, it := range queue {
			parent, parentRef, wait, col := l.resolve(snap, pending, fresh, it)
			if wait {
				next = append(next, it)
				continue
			}
			if parent.ID == "" {
				res.Skipped = append(res.Skipped, it.ID)
				continue
			}
			if col != nil {
				res.Collisions = append(res.Collisions, *col)
			}
			r := resolved{item: it, nodeID: l.cfg.Sequence.Next(), parentNode: parent, parentRef: parentRef}
			pending[it.ID] = types.NewIterationNode(r.nodeID, iterationData(it, parent.ID), parent.Position)
			out = append(out, r)
			progress = true
		}
		queue = next
	}
	for _, it := range queue {
		res.Skipped = append(res.Skipped, it.ID)
	}
	for _, id := range res.Skipped {
		unresolvedTotal.Inc()
		l.logger.Info("no parent resolved, will retry", "iteration_id", id)
	}
	for _, c := range res.Collisions {
		collisionsTotal.Inc()
		l.logger.Warn("ambiguous root match", "iteration_id", c.IterationID, "candidates", c.Candidates, "chosen", c.Chosen)
	}
	if len(out) == 0 {
		return res, nil
	}

	err := l.cfg.Manifest.Update(ctx, func(tx *manifest.Manifest) error {
		for _, r := range out {
			if _, ok := tx.Get(r.item.ID); ok {
				continue
			}
			if err := tx.Set(r.item.ID, r.parentRef); err != nil {
				if errors.Is(err, types.ErrCycle) {
					l.logger.Warn("manifest entry skipped", "iteration_id", r.item.ID, "parent", r.parentRef, "error", err)
					continue
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("record manifest entries: %w", err)
	}

	var nodes []types.Node
	var edges []types.Edge
	for _, r := range out {
		n := pending[r.item.ID]
		nodes = append(nodes, n)
		edges = append(edges, types.NewEdge(r.parentNode.ID, n.ID))
		res.Added = append(res.Added, r.item.ID)
		res.NodeIDs = append(res.NodeIDs, n.ID)
	}
	l.cfg.Model.Commit(snap.AddNodes(nodes...).AddEdges(edges...))
	l.cfg.Model.MarkKnown(res.Added...)
	iterationsAdded.Add(float64(len(res.Added)))

	if l.cfg.OnChange != nil {
		l.cfg.OnChange()
	}
	return res, nil
}

// resolve finds the parent node for it: the canvas node of its recorded
// parent, then a node added earlier in this scan, then the best-matching root.
// The manifest entry is tried before the @source header, which goes stale
// once a reparent moves the file. wait is set when a reference is new in this
// scan but not yet resolved.
func (l *Loop) resolve(snap canvas.Snapshot, pending map[string]types.Node, fresh map[string]bool, it types.Iteration) (parent types.Node, parentRef string, wait bool, col *Collision) {
	var refs []string
	if p, ok := l.cfg.Manifest.Get(it.ID); ok && p != "" {
		refs = append(refs, p)
	}
	if it.SourceRef != "" && (len(refs) == 0 || refs[0] != it.SourceRef) {
		refs = append(refs, it.SourceRef)
	}

	for _, ref := range refs {
		if n, ok := snap.FindIteration(ref); ok {
			return n, ref, false, nil
		}
		if n, ok := pending[ref]; ok {
			return n, ref, false, nil
		}
		if fresh[ref] {
			return types.Node{}, "", true, nil
		}
		for _, r := range snap.Roots() {
			if r.Root.ComponentID == ref {
				return r, ref, false, nil
			}
		}
		l.logger.Debug("parent not on canvas", "iteration_id", it.ID, "ref", ref)
	}

	root, c, ok := matchRoot(it, snap.Roots())
	if !ok {
		return types.Node{}, "", false, nil
	}
	return root, root.Root.ComponentID, false, c
}

func iterationData(it types.Iteration, parentNodeID string) types.IterationData {
	return types.IterationData{
		IterationID:   it.ID,
		ComponentName: it.ComponentRef,
		Index:         it.IterationIndex,
		ParentNodeID:  parentNodeID,
		Mode:          it.Mode,
		Description:   it.Description,
	}
}

// StartPolling scans immediately and then every PollInterval until the
// watchdog fires PollWindow after the last discovery. Calling it while
// polling is a no-op.
func (l *Loop) StartPolling(ctx context.Context) {
	l.mu.Lock()
	if l.polling {
		l.mu.Unlock()
		return
	}
	l.polling = true
	l.pollCtx = ctx
	l.interval = l.cfg.Scheduler.Every(l.cfg.PollInterval, l.tick)
	l.watchdog = l.cfg.Scheduler.AfterFunc(l.cfg.PollWindow, l.StopPolling)
	l.mu.Unlock()

	pollingActive.Set(1)
	l.logger.Info("polling started", "interval", l.cfg.PollInterval, "window", l.cfg.PollWindow)
	l.tick()
}

// StopPolling cancels the interval and the watchdog. It is idempotent.
func (l *Loop) StopPolling() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.polling {
		return
	}
	l.polling = false
	if l.interval != nil {
		l.interval.Stop()
		l.interval = nil
	}
	if l.watchdog != nil {
		l.watchdog.Stop()
		l.watchdog = nil
	}
	pollingActive.Set(0)
	l.logger.Info("polling stopped")
}

// Polling reports whether adaptive polling is running.
func (l *Loop) Polling() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.polling
}

// FetchNow runs a single scan that extends the polling window on discovery.
func (l *Loop) FetchNow(ctx context.Context) (Result, error) {
	return l.Scan(ctx, true)
}

func (l *Loop) tick() {
	l.mu.Lock()
	ctx := l.pollCtx
	active := l.polling
	l.mu.Unlock()
	if !active || ctx.Err() != nil {
		return
	}
	// Errors are logged by Scan; the next tick retries.
	_, _ = l.Scan(ctx, true)
}

// extendWindow restarts the watchdog while polling.
func (l *Loop) extendWindow() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.polling {
		return
	}
	if l.watchdog != nil {
		l.watchdog.Stop()
	}
	l.watchdog = l.cfg.Scheduler.AfterFunc(l.cfg.PollWindow, l.StopPolling)
}
