package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store/storetest"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Store) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(client, "")
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		_, s := setupTestRedis(t)
		return s
	})
}

func TestStore_KeysArePrefixed(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "claims/MS1/U1", []byte("x")))
	assert.True(t, mr.Exists("swarm:claims/MS1/U1"))
}

func TestStore_CreateNeedsNoParent(t *testing.T) {
	_, s := setupTestRedis(t)
	assert.NoError(t, s.Create(context.Background(), "claims/MS1/U1", nil))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `swarm:claims/a\*b/`, escapeGlob("swarm:claims/a*b/"))
}
