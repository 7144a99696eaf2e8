package fsstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestStore_CreateWithoutParent(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	err = s.Create(ctx, "claims/MS1/U1", []byte("x"))
	assert.ErrorIs(t, err, store.ErrParentMissing)

	require.NoError(t, s.EnsureParent(ctx, "claims/MS1/U1"))
	require.NoError(t, s.Create(ctx, "claims/MS1/U1", []byte("x")))
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "claims/MS1/U1", []byte("a")))
	_ = s.Create(ctx, "claims/MS1/U1", []byte("b"))
	require.NoError(t, s.Create(ctx, "claims/MS1/U2", []byte("c")))

	entries, err := os.ReadDir(filepath.Join(root, "claims", "MS1"))
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"U1", "U2"}, names)
}

func TestStore_SharedBetweenHandles(t *testing.T) {
	// Two handles on one root behave like two processes on one volume
	root := t.TempDir()
	a, err := New(root)
	require.NoError(t, err)
	b, err := New(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.EnsureParent(ctx, "claims/MS1/U1"))
	require.NoError(t, a.Create(ctx, "claims/MS1/U1", []byte("a")))
	assert.ErrorIs(t, b.Create(ctx, "claims/MS1/U1", []byte("b")), store.ErrExists)
}

func TestNew_EmptyRoot(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}
