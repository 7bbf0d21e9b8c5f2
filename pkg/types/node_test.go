package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		name    string
		node    Node
		wantErr error
	}{
		{
			name: "root with root payload",
			node: NewRootNode("node_1", "pricing-card", Position{}),
		},
		{
			name: "iteration with iteration payload",
			node: NewIterationNode("node_2", IterationData{IterationID: "PricingCard.iteration-1.tsx"}, Position{}),
		},
		{
			name: "placeholder with placeholder payload",
			node: NewPlaceholderNode("node_3", PlaceholderData{ParentNodeID: "node_1"}, Position{}),
		},
		{
			name:    "empty id",
			node:    Node{Kind: KindRoot, Root: &RootData{}},
			wantErr: ErrInvalidID,
		},
		{
			name:    "kind does not match payload",
			node:    Node{ID: "n", Kind: KindIteration, Root: &RootData{}},
			wantErr: ErrInvalidNode,
		},
		{
			name:    "two payloads",
			node:    Node{ID: "n", Kind: KindRoot, Root: &RootData{}, Iteration: &IterationData{}},
			wantErr: ErrInvalidNode,
		},
		{
			name:    "unknown kind",
			node:    Node{ID: "n", Kind: "group", Root: &RootData{}},
			wantErr: ErrInvalidNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNodeWithParentCopies(t *testing.T) {
	orig := NewIterationNode("node_2", IterationData{IterationID: "A.iteration-1.tsx", ParentNodeID: "node_1"}, Position{})

	moved := orig.WithParent("node_9")

	parent, ok := moved.ParentID()
	require.True(t, ok)
	assert.Equal(t, "node_9", parent)

	parent, _ = orig.ParentID()
	assert.Equal(t, "node_1", parent, "original node must not change")
}

func TestRootHasNoParent(t *testing.T) {
	root := NewRootNode("node_1", "button", Position{})
	_, ok := root.ParentID()
	assert.False(t, ok)
	assert.Equal(t, root, root.WithParent("node_2"))
	assert.Equal(t, "button", root.ComponentName())
}
