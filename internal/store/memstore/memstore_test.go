package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store/storetest"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestStore_CreateWithoutParent(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Create(ctx, "claims/MS1/U1", nil)
	assert.ErrorIs(t, err, store.ErrParentMissing)

	require.NoError(t, s.EnsureParent(ctx, "claims/MS1/U1"))
	require.NoError(t, s.Create(ctx, "claims/MS1/U1", nil))
	assert.Equal(t, 1, s.Len())
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "instances/w1", []byte("abc")))

	got, err := s.Get(ctx, "instances/w1")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := s.Get(ctx, "instances/w1")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
