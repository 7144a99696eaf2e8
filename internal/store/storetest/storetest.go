// Package storetest holds the behavioural suite every store.Store backend
// must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

// Factory returns a fresh, empty store for one subtest
type Factory func(t *testing.T) store.Store

// Run exercises the store.Store contract against a backend
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateGetDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := "claims/MS1/U1"

		require.NoError(t, s.EnsureParent(ctx, key))
		require.NoError(t, s.Create(ctx, key, []byte("one")))

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "one", string(got))

		err = s.Create(ctx, key, []byte("two"))
		assert.ErrorIs(t, err, store.ErrExists)

		got, err = s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "one", string(got), "losing create must not overwrite")

		require.NoError(t, s.Delete(ctx, key))
		_, err = s.Get(ctx, key)
		assert.ErrorIs(t, err, store.ErrNotFound)

		// Deleting twice is fine, and the key is creatable again
		require.NoError(t, s.Delete(ctx, key))
		require.NoError(t, s.EnsureParent(ctx, key))
		require.NoError(t, s.Create(ctx, key, []byte("three")))
	})

	t.Run("PutReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, "instances/w1", []byte("a")))
		require.NoError(t, s.Put(ctx, "instances/w1", []byte("b")))

		got, err := s.Get(ctx, "instances/w1")
		require.NoError(t, err)
		assert.Equal(t, "b", string(got))
	})

	t.Run("ListChildren", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, k := range []string{"claims/MS1/U2", "claims/MS1/U1", "claims/MS2/U1", "instances/w1"} {
			require.NoError(t, s.Put(ctx, k, []byte("x")))
		}

		top, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"claims", "instances"}, top)

		milestones, err := s.List(ctx, "claims")
		require.NoError(t, err)
		assert.Equal(t, []string{"MS1", "MS2"}, milestones)

		units, err := s.List(ctx, "claims/MS1")
		require.NoError(t, err)
		assert.Equal(t, []string{"U1", "U2"}, units)

		none, err := s.List(ctx, "claims/MS9")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ListPrefixIsExact", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, k := range []string{"claims/MS1/U1", "claims/MX1/U2", "claims/MS10/U3"} {
			require.NoError(t, s.Put(ctx, k, []byte("x")))
		}

		tests := []struct {
			prefix string
			want   []string
		}{
			{"claims/ms1", nil},
			{"claims/M_1", nil},
			{"claims/MS1", []string{"U1"}},
			{"claims/MS10", []string{"U3"}},
		}
		for _, tt := range tests {
			got, err := s.List(ctx, tt.prefix)
			require.NoError(t, err, tt.prefix)
			if tt.want == nil {
				assert.Empty(t, got, tt.prefix)
				continue
			}
			assert.Equal(t, tt.want, got, tt.prefix)
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, k := range []string{"", "claims/../x", "claims//x", "claims/./x"} {
			err := s.Create(ctx, k, nil)
			assert.ErrorIs(t, err, store.ErrInvalidKey, "key %q", k)
		}
	})

	t.Run("ConcurrentCreateHasOneWinner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := "claims/MS1/contended"
		require.NoError(t, s.EnsureParent(ctx, key))

		const n = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.Create(ctx, key, []byte(fmt.Sprintf("w%d", i)))
				if err == nil {
					wins.Add(1)
					return
				}
				assert.ErrorIs(t, err, store.ErrExists)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})
}
