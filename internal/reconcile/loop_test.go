package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/manifest"
	"github.com/mesh-intelligence/playground/internal/schedule"
	"github.com/mesh-intelligence/playground/pkg/types"
)

type fakeLister struct {
	mu    sync.Mutex
	items []types.Iteration
	err   error
	calls int
}

func (f *fakeLister) List(ctx context.Context) ([]types.Iteration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]types.Iteration(nil), f.items...), nil
}

func (f *fakeLister) set(items ...types.Iteration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	loop    *Loop
	lister  *fakeLister
	model   *canvas.Model
	man     *manifest.Manifest
	store   *manifest.MemoryStore
	clock   *schedule.Fake
	changes int
}

func newHarness(t *testing.T, roots ...string) *harness {
	t.Helper()
	h := &harness{
		lister: &fakeLister{},
		model:  canvas.NewModel(),
		store:  manifest.NewMemoryStore(nil),
		clock:  schedule.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	h.man = manifest.New(h.store, nil)
	seq := &canvas.Sequence{}

	var nodes []types.Node
	for _, r := range roots {
		nodes = append(nodes, types.NewRootNode(seq.Next(), r, types.Position{}))
	}
	h.model.Commit(canvas.NewSnapshot(nodes, nil))

	loop, err := New(Config{
		Lister:    h.lister,
		Model:     h.model,
		Manifest:  h.man,
		Sequence:  seq,
		Serial:    &schedule.Serial{},
		Scheduler: h.clock,
		OnChange:  func() { h.changes++ },
	})
	require.NoError(t, err)
	h.loop = loop
	return h
}

func iteration(component string, index int) types.Iteration {
	id := component + ".iteration-" + string(rune('0'+index)) + ".tsx"
	return types.Iteration{ID: id, ComponentRef: component, IterationIndex: index, ParentRef: KebabCase(component)}
}

func TestScanAddsUnderMatchingRoot(t *testing.T) {
	h := newHarness(t, "pricing-card")
	it := iteration("PricingCard", 1)
	h.lister.set(it)

	res, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, []string{it.ID}, res.Added)

	snap := h.model.Snapshot()
	n, ok := snap.FindIteration(it.ID)
	require.True(t, ok)
	assert.Equal(t, "node_1", n.Iteration.ParentNodeID)
	assert.Equal(t, []string{n.ID}, snap.Children("node_1"))

	p, ok := h.man.Get(it.ID)
	require.True(t, ok)
	assert.Equal(t, "pricing-card", p)
	assert.True(t, h.model.IsKnown(it.ID))
	assert.Equal(t, 1, h.changes)
}

func TestScanIsIdempotent(t *testing.T) {
	h := newHarness(t, "pricing-card")
	h.lister.set(iteration("PricingCard", 1), iteration("PricingCard", 2))
	ctx := context.Background()

	_, err := h.loop.Scan(ctx, false)
	require.NoError(t, err)
	res, err := h.loop.Scan(ctx, false)
	require.NoError(t, err)

	assert.Empty(t, res.Added)
	assert.Equal(t, 3, h.model.Snapshot().Len())
	assert.Equal(t, 1, h.changes)
}

func TestScanDeduplicatesWithinListing(t *testing.T) {
	h := newHarness(t, "pricing-card")
	it := iteration("PricingCard", 1)
	h.lister.set(it, it)

	res, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.Equal(t, 2, h.model.Snapshot().Len())
}

func TestScanResolvesChainInAnyOrder(t *testing.T) {
	h := newHarness(t, "pricing-card")
	a := iteration("PricingCard", 1)
	b := iteration("PricingCard", 2)
	b.SourceRef = a.ID
	c := iteration("PricingCard", 3)
	c.SourceRef = b.ID
	h.lister.set(c, b, a)

	res, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID, c.ID}, res.Added)

	snap := h.model.Snapshot()
	na, _ := snap.FindIteration(a.ID)
	nb, _ := snap.FindIteration(b.ID)
	nc, _ := snap.FindIteration(c.ID)
	assert.Equal(t, "node_1", na.Iteration.ParentNodeID)
	assert.Equal(t, na.ID, nb.Iteration.ParentNodeID)
	assert.Equal(t, nb.ID, nc.Iteration.ParentNodeID)

	p, _ := h.man.Get(c.ID)
	assert.Equal(t, b.ID, p)

	res, err = h.loop.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Equal(t, 4, snap.Len())
}

func TestScanUsesManifestAncestry(t *testing.T) {
	h := newHarness(t, "pricing-card")
	a := iteration("PricingCard", 1)
	b := iteration("PricingCard", 2)
	require.NoError(t, h.man.Set(a.ID, "pricing-card"))
	require.NoError(t, h.man.Set(b.ID, a.ID))
	h.lister.set(a, b)

	_, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)

	snap := h.model.Snapshot()
	na, _ := snap.FindIteration(a.ID)
	nb, _ := snap.FindIteration(b.ID)
	assert.Equal(t, na.ID, nb.Iteration.ParentNodeID)
}

func TestScanPrefersManifestOverStaleSource(t *testing.T) {
	h := newHarness(t, "pricing-card")
	a := iteration("PricingCard", 1)
	b := iteration("PricingCard", 2)
	c := iteration("PricingCard", 3)
	c.SourceRef = b.ID
	// b was removed with its children moved up to a; c's header still names b.
	require.NoError(t, h.man.Set(a.ID, "pricing-card"))
	require.NoError(t, h.man.Set(c.ID, a.ID))
	h.lister.set(a, c)

	res, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, c.ID}, res.Added)
	assert.Empty(t, res.Collisions)

	snap := h.model.Snapshot()
	na, _ := snap.FindIteration(a.ID)
	nc, ok := snap.FindIteration(c.ID)
	require.True(t, ok)
	assert.Equal(t, na.ID, nc.Iteration.ParentNodeID)
	assert.Equal(t, []string{nc.ID}, snap.Children(na.ID))

	p, _ := h.man.Get(c.ID)
	assert.Equal(t, a.ID, p)
}

func TestScanFallsBackToSourceWhenManifestParentMissing(t *testing.T) {
	h := newHarness(t, "pricing-card")
	a := iteration("PricingCard", 1)
	b := iteration("PricingCard", 2)
	b.SourceRef = a.ID
	require.NoError(t, h.man.Set(b.ID, "PricingCard.iteration-9.tsx"))
	h.lister.set(a, b)

	_, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)

	snap := h.model.Snapshot()
	na, _ := snap.FindIteration(a.ID)
	nb, ok := snap.FindIteration(b.ID)
	require.True(t, ok)
	assert.Equal(t, na.ID, nb.Iteration.ParentNodeID)
}

type gatedLister struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLister) List(ctx context.Context) ([]types.Iteration, error) {
	close(g.entered)
	<-g.release
	return nil, nil
}

func TestScanningReportsInFlightScan(t *testing.T) {
	h := newHarness(t, "pricing-card")
	gate := &gatedLister{entered: make(chan struct{}), release: make(chan struct{})}
	h.loop.cfg.Lister = gate
	assert.False(t, h.loop.Scanning())

	done := make(chan error, 1)
	go func() {
		_, err := h.loop.Scan(context.Background(), false)
		done <- err
	}()

	<-gate.entered
	assert.True(t, h.loop.Scanning())
	close(gate.release)
	require.NoError(t, <-done)
	assert.False(t, h.loop.Scanning())
}

func TestScanSkipsUnresolvableAndRetries(t *testing.T) {
	h := newHarness(t, "button")
	it := iteration("PricingCard", 1)
	h.lister.set(it)
	ctx := context.Background()

	res, err := h.loop.Scan(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, res.Added)
	assert.Equal(t, []string{it.ID}, res.Skipped)
	assert.False(t, h.model.IsKnown(it.ID))

	snap := h.model.Snapshot()
	h.model.Commit(snap.AddNodes(types.NewRootNode("node_9", "pricing-card", types.Position{})))

	res, err = h.loop.Scan(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{it.ID}, res.Added)
}

func TestScanFlagsCollisions(t *testing.T) {
	h := newHarness(t, "card-wide", "card-narrow")
	it := iteration("Card", 1)
	h.lister.set(it)

	res, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, res.Collisions, 1)
	assert.Equal(t, []string{"node_1", "node_2"}, res.Collisions[0].Candidates)
	assert.Equal(t, "node_1", res.Collisions[0].Chosen)
}

func TestExactMatchBeatsSubstring(t *testing.T) {
	h := newHarness(t, "pricing-card-legacy", "pricing-card")
	h.lister.set(iteration("PricingCard", 1))

	res, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, res.Collisions)

	n, _ := h.model.Snapshot().FindIteration(iteration("PricingCard", 1).ID)
	assert.Equal(t, "node_2", n.Iteration.ParentNodeID)
}

func TestScanListingFailureLeavesCanvas(t *testing.T) {
	h := newHarness(t, "pricing-card")
	h.lister.err = errors.New("connection refused")

	_, err := h.loop.Scan(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, 1, h.model.Snapshot().Len())
}

func TestScanManifestFailureAborts(t *testing.T) {
	h := newHarness(t, "pricing-card")
	it := iteration("PricingCard", 1)
	h.lister.set(it)
	h.store.SaveErr = errors.New("read-only file system")

	_, err := h.loop.Scan(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, 1, h.model.Snapshot().Len())
	assert.False(t, h.model.IsKnown(it.ID))
	assert.Equal(t, 0, h.changes)

	h.store.SaveErr = nil
	res, err := h.loop.Scan(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{it.ID}, res.Added)
}

func TestPollingWindowExtendsOnDiscovery(t *testing.T) {
	h := newHarness(t, "pricing-card")
	ctx := context.Background()

	h.loop.StartPolling(ctx)
	assert.True(t, h.loop.Polling())
	assert.Equal(t, 1, h.lister.callCount(), "immediate scan")

	h.loop.StartPolling(ctx)
	assert.Equal(t, 1, h.lister.callCount(), "second start is a no-op")

	h.clock.Advance(20 * time.Second)
	assert.Equal(t, 3, h.lister.callCount())

	// Discovered on the 30s tick: the window now ends at 150s.
	h.lister.set(iteration("PricingCard", 1))
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, 2, h.model.Snapshot().Len())

	h.clock.Advance(110 * time.Second)
	assert.True(t, h.loop.Polling(), "window was extended past 120s")

	h.clock.Advance(10 * time.Second)
	assert.False(t, h.loop.Polling())
	assert.Equal(t, 0, h.clock.Pending())

	calls := h.lister.callCount()
	h.clock.Advance(time.Minute)
	assert.Equal(t, calls, h.lister.callCount())
}

func TestPollingStopsAfterQuietWindow(t *testing.T) {
	h := newHarness(t, "pricing-card")
	h.loop.StartPolling(context.Background())

	h.clock.Advance(119 * time.Second)
	assert.True(t, h.loop.Polling())
	h.clock.Advance(time.Second)
	assert.False(t, h.loop.Polling())

	h.loop.StopPolling()
	assert.False(t, h.loop.Polling())
}

func TestPollingContinuesAfterListingError(t *testing.T) {
	h := newHarness(t, "pricing-card")
	h.lister.err = errors.New("timeout")
	h.loop.StartPolling(context.Background())

	h.clock.Advance(10 * time.Second)
	assert.True(t, h.loop.Polling())
	assert.Equal(t, 2, h.lister.callCount())
}

func TestFetchNowDoesNotStartPolling(t *testing.T) {
	h := newHarness(t, "pricing-card")
	h.lister.set(iteration("PricingCard", 1))

	res, err := h.loop.FetchNow(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.False(t, h.loop.Polling())
	assert.Equal(t, 0, h.clock.Pending())
}

func TestKebabCase(t *testing.T) {
	tests := map[string]string{
		"PricingCard":                "pricing-card",
		"Button":                     "button",
		"SubscriptionExpiringBanner": "subscription-expiring-banner",
		"card":                       "card",
	}
	for in, want := range tests {
		assert.Equal(t, want, KebabCase(in), in)
	}
}
