package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modelsOutput = `Available models

auto - Auto
opus-4.6-thinking - Claude 4.6 Opus (Thinking)  (default)
grok - Grok (current)

Tip: use --model <id> to switch
`

func TestParseModels(t *testing.T) {
	assert.Equal(t, []Model{
		{Value: "", Label: "Auto (Default)"},
		{Value: "auto", Label: "Auto"},
		{Value: "opus-4.6-thinking", Label: "Claude 4.6 Opus (Thinking)"},
		{Value: "grok", Label: "Grok"},
	}, ParseModels(modelsOutput))
}

func TestModelListerCaches(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewModelLister([]string{"printf", modelsOutput}, func() time.Time { return now })
	ctx := context.Background()

	models, cached, err := l.Models(ctx)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, models, 4)

	now = now.Add(time.Minute)
	_, cached, err = l.Models(ctx)
	require.NoError(t, err)
	assert.True(t, cached)

	now = now.Add(ModelsCacheTTL)
	_, cached, err = l.Models(ctx)
	require.NoError(t, err)
	assert.False(t, cached, "cache expires")
}

func TestModelListerErrors(t *testing.T) {
	_, _, err := NewModelLister([]string{"sh", "-c", "echo not logged in >&2; exit 1"}, nil).Models(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")

	_, _, err = NewModelLister([]string{"echo", "nothing here"}, nil).Models(context.Background())
	assert.ErrorIs(t, err, ErrNoModels)
}
