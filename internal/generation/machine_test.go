package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/reconcile"
	"github.com/mesh-intelligence/playground/internal/schedule"
	"github.com/mesh-intelligence/playground/pkg/types"
)

type fakeJob struct {
	mu       sync.Mutex
	requests []JobRequest
	done     func(JobResult)
	startErr error
	canceled []string
}

func (j *fakeJob) Start(ctx context.Context, req JobRequest, done func(JobResult)) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.startErr != nil {
		return j.startErr
	}
	j.requests = append(j.requests, req)
	j.done = done
	return nil
}

func (j *fakeJob) Cancel(runID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.canceled = append(j.canceled, runID)
	return nil
}

func (j *fakeJob) finish(res JobResult) {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	done(res)
}

type fakeScanner struct {
	mu      sync.Mutex
	extends []bool
}

func (s *fakeScanner) Scan(ctx context.Context, extendWindow bool) (reconcile.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extends = append(s.extends, extendWindow)
	return reconcile.Result{}, nil
}

func (s *fakeScanner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.extends)
}

type harness struct {
	m        *Machine
	model    *canvas.Model
	job      *fakeJob
	scanner  *fakeScanner
	clock    *schedule.Fake
	arranges int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		model:   canvas.NewModel(),
		job:     &fakeJob{},
		scanner: &fakeScanner{},
		clock:   schedule.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	seq := &canvas.Sequence{}
	root := types.NewRootNode(seq.Next(), "pricing-card", types.Position{X: 50, Y: 50})
	it := types.NewIterationNode(seq.Next(), types.IterationData{
		IterationID:   "PricingCard.iteration-1.tsx",
		ComponentName: "PricingCard",
		Index:         1,
		ParentNodeID:  root.ID,
	}, types.Position{})
	h.model.Commit(canvas.NewSnapshot([]types.Node{root, it}, []types.Edge{types.NewEdge(root.ID, it.ID)}))

	m, err := New(Config{
		Model:     h.model,
		Sequence:  seq,
		Serial:    &schedule.Serial{},
		Scheduler: h.clock,
		Job:       h.job,
		Scanner:   h.scanner,
		Arrange:   func() { h.arranges++ },
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	h.m = m
	return h
}

func (h *harness) placeholders() []types.Node {
	var out []types.Node
	for _, n := range h.model.Snapshot().Nodes() {
		if n.Kind == types.KindPlaceholder {
			out = append(out, n)
		}
	}
	return out
}

func TestStartInsertsPlaceholders(t *testing.T) {
	h := newHarness(t)

	run, err := h.m.Start(context.Background(), Request{ParentNodeID: "node_1", Count: 3, Instructions: "make it denser"})
	require.NoError(t, err)

	ph := h.placeholders()
	require.Len(t, ph, 3)
	for i, n := range ph {
		assert.Equal(t, "node_1", n.Placeholder.ParentNodeID)
		assert.Equal(t, i+1, n.Placeholder.Ordinal)
		assert.Equal(t, 550.0, n.Position.X, "placeholders sit in the child column")
	}
	assert.ElementsMatch(t, []string{"node_2", "node_3", "node_4", "node_5"}, h.model.Snapshot().Children("node_1"))
	assert.Equal(t, run.Info().PlaceholderIDs, []string{ph[0].ID, ph[1].ID, ph[2].ID})

	st := h.m.Status()
	assert.Equal(t, types.GenerationGenerating, st.State)
	require.NotNil(t, st.Active)
	assert.Equal(t, "PricingCard", st.Active.ComponentName)

	require.Len(t, h.job.requests, 1)
	req := h.job.requests[0]
	assert.Equal(t, 3, req.Count)
	assert.Contains(t, req.Prompt, "PricingCard.iteration-N.tsx")
	assert.Contains(t, req.Prompt, "make it denser")

	h.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, h.arranges)
}

func TestSecondStartRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Start(ctx, Request{ParentNodeID: "node_1", Count: 2})
	require.NoError(t, err)

	_, err = h.m.Start(ctx, Request{ParentNodeID: "node_2", Count: 4})
	assert.ErrorIs(t, err, types.ErrGenerationInProgress)
	assert.Len(t, h.placeholders(), 2)
	assert.Len(t, h.job.requests, 1)
}

func TestCompleteCleansUpThenScans(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run, err := h.m.Start(ctx, Request{ParentNodeID: "node_2", Count: 2})
	require.NoError(t, err)
	h.clock.Advance(100 * time.Millisecond)

	h.clock.Advance(64*time.Second + 900*time.Millisecond)
	h.job.finish(JobResult{Output: "wrote 2 files"})

	out, err := run.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "wrote 2 files", out.Output)
	assert.Equal(t, "1m:05s", types.FormatDuration(out.Duration))

	assert.Empty(t, h.placeholders())
	assert.Equal(t, []string{"node_2"}, h.model.Snapshot().Children("node_1"))
	assert.Empty(t, h.model.Snapshot().Children("node_2"))

	st := h.m.Status()
	assert.Equal(t, types.GenerationIdle, st.State)
	assert.Equal(t, "1m:05s", st.LastDuration)

	assert.Equal(t, 0, h.scanner.count(), "scan waits for the grace delay")
	h.clock.Advance(time.Second)
	require.Equal(t, 1, h.scanner.count())
	assert.False(t, h.scanner.extends[0], "post-generation scan does not extend polling")

	h.clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 2, h.arranges)
}

func TestErrorCleansUpWithoutScan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run, err := h.m.Start(ctx, Request{ParentNodeID: "node_1", Count: 1})
	require.NoError(t, err)

	h.job.finish(JobResult{Err: errors.New("agent exited with code 1: rate limited")})

	out, err := run.Wait(ctx)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "agent exited with code 1: rate limited", out.Reason())
	assert.Empty(t, h.placeholders())

	h.clock.Advance(time.Minute)
	assert.Equal(t, 0, h.scanner.count())
	assert.Equal(t, "agent exited with code 1: rate limited", h.m.Status().LastError)

	_, err = h.m.Start(ctx, Request{ParentNodeID: "node_1", Count: 1})
	assert.NoError(t, err, "idle again after an error")
}

func TestCancelWaitsForTerminalEvent(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.m.Cancel(), types.ErrNotGenerating)

	run, err := h.m.Start(context.Background(), Request{ParentNodeID: "node_1", Count: 2})
	require.NoError(t, err)

	require.NoError(t, h.m.Cancel())
	assert.Equal(t, []string{run.Info().ID}, h.job.canceled)
	assert.Len(t, h.placeholders(), 2, "placeholders stay until the job reports")
	assert.Equal(t, types.GenerationGenerating, h.m.Status().State)

	h.job.finish(JobResult{Canceled: true})
	<-run.Done()
	assert.Empty(t, h.placeholders())
	assert.Equal(t, types.GenerationIdle, h.m.Status().State)

	h.clock.Advance(time.Minute)
	assert.Equal(t, 0, h.scanner.count())
}

func TestJobStartFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.job.startErr = errors.New("exec: \"cursor\": executable file not found in $PATH")

	_, err := h.m.Start(context.Background(), Request{ParentNodeID: "node_1", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable file not found")
	assert.Empty(t, h.placeholders())
	assert.Equal(t, types.GenerationIdle, h.m.Status().State)
}

func TestStaleTerminalEventIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.m.Start(ctx, Request{ParentNodeID: "node_1", Count: 1})
	require.NoError(t, err)
	first := h.job.done
	first(JobResult{})

	_, err = h.m.Start(ctx, Request{ParentNodeID: "node_1", Count: 2})
	require.NoError(t, err)

	first(JobResult{Err: errors.New("late duplicate")})
	assert.Len(t, h.placeholders(), 2)
	assert.Equal(t, types.GenerationGenerating, h.m.Status().State)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.m.Start(ctx, Request{ParentNodeID: "node_1", Count: 0})
	assert.ErrorIs(t, err, types.ErrInvalidCount)

	_, err = h.m.Start(ctx, Request{ParentNodeID: "node_404", Count: 1})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, types.GenerationIdle, h.m.Status().State)
}

func TestPromptForIterationSource(t *testing.T) {
	h := newHarness(t)
	_, err := h.m.Start(context.Background(), Request{ParentNodeID: "node_2", Count: 1})
	require.NoError(t, err)

	prompt := h.job.requests[0].Prompt
	assert.Contains(t, prompt, "Create 1 new iteration of the PricingCard component.")
	assert.Contains(t, prompt, "@source PricingCard.iteration-1.tsx")
}
