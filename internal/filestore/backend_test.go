package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/playground/internal/canvas"
	"github.com/mesh-intelligence/playground/internal/manifest"
	"github.com/mesh-intelligence/playground/pkg/types"
)

func attached(t *testing.T) (*Backend, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendFile, DataDir: dir}))
	t.Cleanup(func() { b.Detach() })
	return b, dir
}

func TestAttachLifecycle(t *testing.T) {
	b, dir := attached(t)
	_, err := os.Stat(dir)
	require.NoError(t, err, "data dir created")

	assert.ErrorIs(t, b.Attach(types.Config{Backend: types.BackendFile, DataDir: dir}), types.ErrAlreadyAttached)

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach())
	_, err = b.Load(context.Background())
	assert.ErrorIs(t, err, types.ErrDetached)

	assert.ErrorIs(t, NewBackend().Attach(types.Config{}), types.ErrBackendEmpty)
}

func TestManifestRoundTrip(t *testing.T) {
	b, dir := attached(t)
	ctx := context.Background()

	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "missing file is empty")

	want := map[string]string{
		"PricingCard.iteration-1.tsx": "pricing-card",
		"PricingCard.iteration-2.tsx": "PricingCard.iteration-1.tsx",
	}
	require.NoError(t, b.Save(ctx, want))

	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	require.NoError(t, err)
	var flat map[string]string
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Equal(t, want, flat, "tree.json is a flat id to parent object")

	got, err = b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestManifestCorrupt(t *testing.T) {
	b, dir := attached(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte("{not json"), 0o644))

	_, err := b.Load(context.Background())
	assert.ErrorIs(t, err, manifest.ErrCorrupt)

	m := manifest.New(b, nil)
	require.NoError(t, m.Load(context.Background()))
	assert.Zero(t, m.Len())
}

func TestCanvasRoundTrip(t *testing.T) {
	b, _ := attached(t)
	ctx := context.Background()

	st, err := b.LoadCanvas(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Counter)

	root := types.NewRootNode("node_1", "pricing-card", types.Position{X: 50, Y: 50})
	child := types.NewIterationNode("node_2", types.IterationData{
		IterationID:   "PricingCard.iteration-1.tsx",
		ComponentName: "PricingCard",
		Index:         1,
		ParentNodeID:  "node_1",
		Mode:          types.ModeVibe,
	}, types.Position{X: 550, Y: 125})
	child.Size = &types.Size{Width: 420, Height: 310}

	want := canvas.State{
		Nodes:     []types.Node{root, child},
		Edges:     []types.Edge{types.NewEdge("node_1", "node_2")},
		Counter:   2,
		Known:     []string{"PricingCard.iteration-1.tsx"},
		Collapsed: []string{"node_1"},
	}
	require.NoError(t, b.SaveCanvas(ctx, want))

	got, err := b.LoadCanvas(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCanvasCorrupt(t *testing.T) {
	b, dir := attached(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, CanvasFile), []byte("[]"), 0o644))

	_, err := b.LoadCanvas(context.Background())
	assert.ErrorIs(t, err, canvas.ErrCorrupt)
}
