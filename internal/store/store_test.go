package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/playground/internal/filestore"
	"github.com/mesh-intelligence/playground/internal/sqlite"
	"github.com/mesh-intelligence/playground/pkg/types"
)

func TestOpenSelectsBackend(t *testing.T) {
	tests := []struct {
		backend string
		want    any
	}{
		{types.BackendFile, &filestore.Backend{}},
		{types.BackendSQLite, &sqlite.Backend{}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			b, err := Open(types.Config{Backend: tt.backend, DataDir: t.TempDir()})
			require.NoError(t, err)
			defer b.Detach()
			assert.IsType(t, tt.want, b)

			ctx := context.Background()
			require.NoError(t, b.Save(ctx, map[string]string{"A": "root"}))
			got, err := b.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"A": "root"}, got)
		})
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(types.Config{Backend: "etcd"})
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
}
