// Package generation runs the generation lifecycle: it reserves placeholder
// nodes under a target, drives one external job at a time, and on completion
// clears the placeholders and asks the reconciliation loop to pick up the new
// iterations.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/layout"
	"github.com/mesh-intelligence/playground/internal/reconcile"
	"github.com/mesh-intelligence/playground/internal/schedule"
	"github.com/mesh-intelligence/playground/pkg/types"
)

// Scanner is the part of the reconciliation loop the lifecycle needs.
type Scanner interface {
	Scan(ctx context.Context, extendWindow bool) (reconcile.Result, error)
}

// LayoutFunc positions nodes for placeholder placement.
type LayoutFunc func(nodes []types.Node, edges []types.Edge, collapsed map[string]bool) map[string]types.Position

// Config wires a Machine to the session.
type Config struct {
	Model     *canvas.Model
	Sequence  *canvas.Sequence
	Serial    *schedule.Serial
	Scheduler schedule.Scheduler
	Job       Job
	Scanner   Scanner
	Layout    LayoutFunc
	Logger    *slog.Logger

	// Arrange runs inside the serial section to re-layout the canvas.
	Arrange func()

	ScanGrace            time.Duration
	ArrangeDelay         time.Duration
	PostScanArrangeDelay time.Duration
}

// Request asks for Count new iterations under ParentNodeID.
type Request struct {
	ParentNodeID string `json:"parent_node_id"`
	Count        int    `json:"count"`
	Instructions string `json:"instructions"`
	Model        string `json:"model"`
}

// Status is a point-in-time view of the lifecycle.
type Status struct {
	State        types.GenerationState `json:"state"`
	Active       *types.GenerationInfo `json:"active,omitempty"`
	Elapsed      string                `json:"elapsed,omitempty"`
	LastDuration string                `json:"last_duration,omitempty"`
	LastError    string                `json:"last_error,omitempty"`
}

// Run tracks one generation until its terminal event.
type Run struct {
	info    types.GenerationInfo
	done    chan struct{}
	outcome types.Outcome
}

// Info returns the run's metadata.
func (r *Run) Info() types.GenerationInfo { return r.info }

// Done is closed when the run ends.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends or ctx is done.
func (r *Run) Wait(ctx context.Context) (types.Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return types.Outcome{}, ctx.Err()
	}
}

// Machine is the generation state machine. State changes happen inside the
// serial section; the job runs outside it.
type Machine struct {
	cfg    Config
	logger *slog.Logger

	state        types.GenerationState
	run          *Run
	lastDuration time.Duration
	lastErr      error

	timersMu sync.Mutex
	timers   []schedule.Timer
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// New validates cfg and returns an idle Machine.
func New(cfg Config) (*Machine, error) {
	if cfg.Model == nil || cfg.Sequence == nil || cfg.Serial == nil || cfg.Job == nil || cfg.Scanner == nil {
		return nil, errors.New("generation: model, sequence, serial, job, and scanner are required")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = schedule.Real{}
	}
	if cfg.Layout == nil {
		cfg.Layout = func(nodes []types.Node, edges []types.Edge, collapsed map[string]bool) map[string]types.Position {
			return layout.Layout(nodes, edges, collapsed, layout.DefaultSize)
		}
	}
	if cfg.ScanGrace <= 0 {
		cfg.ScanGrace = types.DefaultScanGrace
	}
	if cfg.ArrangeDelay <= 0 {
		cfg.ArrangeDelay = types.DefaultArrangeDelay
	}
	if cfg.PostScanArrangeDelay <= 0 {
		cfg.PostScanArrangeDelay = types.DefaultPostScanArrangeDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		cfg:     cfg,
		logger:  logger.With("component", "generation"),
		state:   types.GenerationIdle,
		baseCtx: ctx,
		cancel:  cancel,
	}, nil
}

// Start inserts placeholders under the target and launches the job. It fails
// with types.ErrGenerationInProgress while another run is active. If the job
// cannot be launched the placeholders are removed and the error returned.
func (m *Machine) Start(ctx context.Context, req Request) (*Run, error) {
	if req.Count <= 0 {
		return nil, types.ErrInvalidCount
	}

	var run *Run
	var jobReq JobRequest
	var err error
	m.cfg.Serial.Do(func() {
		run, jobReq, err = m.begin(req)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("generation started",
		"run_id", run.info.ID, "component", run.info.ComponentName, "count", run.info.Count)

	startErr := m.cfg.Job.Start(ctx, jobReq, func(res JobResult) {
		m.finish(run.info.ID, res)
	})
	if startErr != nil {
		m.finish(run.info.ID, JobResult{Err: startErr})
		return nil, fmt.Errorf("start job: %w", startErr)
	}
	return run, nil
}

// begin runs inside the serial section.
func (m *Machine) begin(req Request) (*Run, JobRequest, error) {
	if m.state == types.GenerationGenerating {
		return nil, JobRequest{}, types.ErrGenerationInProgress
	}

	snap := m.cfg.Model.Snapshot()
	parent, ok := snap.Node(req.ParentNodeID)
	if !ok {
		return nil, JobRequest{}, fmt.Errorf("parent %s: %w", req.ParentNodeID, types.ErrNotFound)
	}
	if parent.Kind == types.KindPlaceholder {
		return nil, JobRequest{}, types.ErrInvalidParent
	}

	var sourceID string
	if parent.Iteration != nil {
		sourceID = parent.Iteration.IterationID
	}
	prompt, err := BuildPrompt(PromptData{
		ComponentName: componentName(parent),
		SourceID:      sourceID,
		Count:         req.Count,
		Instructions:  req.Instructions,
	})
	if err != nil {
		return nil, JobRequest{}, fmt.Errorf("build prompt: %w", err)
	}

	ids := make([]string, req.Count)
	nodes := make([]types.Node, req.Count)
	edges := make([]types.Edge, req.Count)
	for i := range ids {
		ids[i] = m.cfg.Sequence.Next()
		nodes[i] = types.NewPlaceholderNode(ids[i], types.PlaceholderData{
			ParentNodeID:  parent.ID,
			ComponentName: componentName(parent),
			Ordinal:       i + 1,
			Total:         req.Count,
		}, parent.Position)
		edges[i] = types.NewEdge(parent.ID, ids[i])
	}

	// Place the placeholders where a full layout would put them.
	synthetic := snap.AddNodes(nodes...).AddEdges(edges...)
	pos := m.cfg.Layout(synthetic.Nodes(), synthetic.Edges(), m.cfg.Model.Collapsed())
	for i, n := range nodes {
		if p, ok := pos[n.ID]; ok {
			nodes[i].Position = p
		}
	}
	m.cfg.Model.Commit(snap.AddNodes(nodes...).AddEdges(edges...))

	info := types.GenerationInfo{
		ID:             newRunID(),
		ParentNodeID:   parent.ID,
		ComponentName:  componentName(parent),
		Count:          req.Count,
		PlaceholderIDs: ids,
		StartedAt:      m.cfg.Scheduler.Now(),
	}
	run := &Run{info: info, done: make(chan struct{})}
	m.state = types.GenerationGenerating
	m.run = run
	generationActive.Set(1)
	m.scheduleArrange(m.cfg.ArrangeDelay)

	return run, JobRequest{
		RunID:         info.ID,
		ComponentName: info.ComponentName,
		ParentNodeID:  parent.ID,
		Count:         req.Count,
		Prompt:        prompt,
		Model:         req.Model,
	}, nil
}

// finish handles the job's terminal event. Events for a run that is no
// longer active are ignored.
func (m *Machine) finish(runID string, res JobResult) {
	var outcome types.Outcome
	stale := false
	m.cfg.Serial.Do(func() {
		if m.state != types.GenerationGenerating || m.run == nil || m.run.info.ID != runID {
			stale = true
			return
		}
		run := m.run
		dur := m.cfg.Scheduler.Now().Sub(run.info.StartedAt)

		placeholders := make(map[string]bool, len(run.info.PlaceholderIDs))
		for _, id := range run.info.PlaceholderIDs {
			placeholders[id] = true
		}
		snap := m.cfg.Model.Snapshot()
		m.cfg.Model.Commit(snap.RemoveNodes(func(n types.Node) bool { return placeholders[n.ID] }))

		outcome = types.Outcome{
			ID:       runID,
			Success:  res.Err == nil && !res.Canceled,
			Canceled: res.Canceled,
			Duration: dur,
			Output:   res.Output,
			Err:      res.Err,
		}
		if res.Canceled && outcome.Err == nil {
			outcome.Err = errors.New("generation canceled")
		}

		m.state = types.GenerationIdle
		m.run = nil
		m.lastDuration = dur
		m.lastErr = outcome.Err
		generationActive.Set(0)

		run.outcome = outcome
		close(run.done)
	})
	if stale {
		m.logger.Debug("ignoring terminal event for inactive run", "run_id", runID)
		return
	}

	generationDuration.Observe(outcome.Duration.Seconds())
	if !outcome.Success {
		result := "error"
		if outcome.Canceled {
			result = "canceled"
		}
		generationsTotal.WithLabelValues(result).Inc()
		m.logger.Warn("generation failed", "run_id", runID, "elapsed", types.FormatDuration(outcome.Duration), "error", outcome.Err)
		return
	}

	generationsTotal.WithLabelValues("ok").Inc()
	m.logger.Info("generation complete", "run_id", runID, "elapsed", types.FormatDuration(outcome.Duration))
	m.track(m.cfg.Scheduler.AfterFunc(m.cfg.ScanGrace, func() {
		if _, err := m.cfg.Scanner.Scan(m.baseCtx, false); err != nil {
			m.logger.Warn("post-generation scan failed", "run_id", runID, "error", err)
		}
		m.scheduleArrange(m.cfg.PostScanArrangeDelay)
	}))
}

// Cancel asks the running job to stop. Cleanup happens when the job reports
// its terminal event.
func (m *Machine) Cancel() error {
	var runID string
	m.cfg.Serial.Do(func() {
		if m.run != nil {
			runID = m.run.info.ID
		}
	})
	if runID == "" {
		return types.ErrNotGenerating
	}
	m.logger.Info("cancel requested", "run_id", runID)
	return m.cfg.Job.Cancel(runID)
}

// Status returns the current lifecycle state.
func (m *Machine) Status() Status {
	var st Status
	m.cfg.Serial.Do(func() {
		st = m.StatusLocked()
	})
	return st
}

// StatusLocked is Status for callers already inside the serial section.
func (m *Machine) StatusLocked() Status {
	st := Status{State: m.state}
	if m.run != nil {
		info := m.run.info
		info.PlaceholderIDs = append([]string(nil), info.PlaceholderIDs...)
		st.Active = &info
		st.Elapsed = types.FormatDuration(m.cfg.Scheduler.Now().Sub(info.StartedAt))
	}
	if m.lastDuration > 0 {
		st.LastDuration = types.FormatDuration(m.lastDuration)
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Close stops pending timers and abandons post-generation scans.
func (m *Machine) Close() {
	m.cancel()
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
}

func (m *Machine) scheduleArrange(d time.Duration) {
	if m.cfg.Arrange == nil {
		return
	}
	m.track(m.cfg.Scheduler.AfterFunc(d, func() {
		if m.baseCtx.Err() != nil {
			return
		}
		m.cfg.Serial.Do(m.cfg.Arrange)
	}))
}

func (m *Machine) track(t schedule.Timer) {
	m.timersMu.Lock()
	defer m.timersMu.Unlock()
	m.timers = append(m.timers, t)
}

// componentName returns the file-level component name: roots carry a
// kebab-case registry id, iterations the component name itself.
func componentName(n types.Node) string {
	if n.Root == nil {
		return n.ComponentName()
	}
	var b strings.Builder
	for _, part := range strings.Split(n.Root.ComponentID, "-") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

// newRunID generates a UUID v7 run id.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
