package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	s, err := New(filepath.Join(t.TempDir(), "swarm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestStore_ListEscapesWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "claims/MS_1/U1", []byte("x")))
	require.NoError(t, s.Put(ctx, "claims/MSX1/U2", []byte("x")))

	units, err := s.List(ctx, "claims/MS_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, units)
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
