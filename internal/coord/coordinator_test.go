package coord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store/fsstore"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRecorder struct {
	won, lost, reaped atomic.Int32
}

func (r *countingRecorder) ClaimAttempt(won bool) {
	if won {
		r.won.Add(1)
	} else {
		r.lost.Add(1)
	}
}

func (r *countingRecorder) Reaped(n int) { r.reaped.Add(int32(n)) }

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(memstore.New(), Config{Now: clock.Now}), clock
}

func TestClaim_ReleaseLifecycle(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "MS1", "U1", "W-A", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Claim(ctx, "MS1", "U1", "W-B", "")
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	// Wrong owner: no-op
	require.NoError(t, c.Release(ctx, "MS1", "U1", "W-B"))
	claimed, err := c.ListClaimed(ctx, "MS1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, claimed)

	require.NoError(t, c.Release(ctx, "MS1", "U1", "W-A"))
	claimed, err = c.ListClaimed(ctx, "MS1")
	require.NoError(t, err)
	assert.Empty(t, claimed)

	ok, err = c.Claim(ctx, "MS1", "U1", "W-B", "")
	require.NoError(t, err)
	assert.True(t, ok, "unit must be claimable again after release")
}

func TestClaim_RecordFields(t *testing.T) {
	c, clock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "MS1", "U1", "W-A", "ws-1")
	require.NoError(t, err)

	claims, err := c.ListClaims(ctx, "MS1")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "W-A", claims[0].InstanceID)
	assert.Equal(t, "ws-1", claims[0].Workspace)
	assert.True(t, clock.Now().Equal(claims[0].ClaimedAt))
	assert.True(t, claims[0].ClaimedAt.Equal(claims[0].HeartbeatAt))
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	for name, newStore := range map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return memstore.New() },
		"fs": func(t *testing.T) store.Store {
			s, err := fsstore.New(t.TempDir())
			require.NoError(t, err)
			return s
		},
	} {
		t.Run(name, func(t *testing.T) {
			rec := &countingRecorder{}
			c := New(newStore(t), Config{Metrics: rec})
			ctx := context.Background()

			const n = 20
			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ok, err := c.Claim(ctx, "MS1", "U1", fmt.Sprintf("W-%d", i), "")
					assert.NoError(t, err)
					if ok {
						wins.Add(1)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			assert.Equal(t, int32(1), rec.won.Load())
			assert.Equal(t, int32(n-1), rec.lost.Load())
		})
	}
}

func TestClaim_InvalidIDs(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Claim(context.Background(), "MS1", "../U1", "W-A", "")
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}

func TestHeartbeat(t *testing.T) {
	c, clock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Heartbeat(ctx, "MS1", "U1", "W-A")
	assert.ErrorIs(t, err, ErrClaimNotFound)

	_, err = c.Claim(ctx, "MS1", "U1", "W-A", "")
	require.NoError(t, err)

	_, err = c.Heartbeat(ctx, "MS1", "U1", "W-B")
	assert.ErrorIs(t, err, ErrNotOwner)

	claims, err := c.ListClaims(ctx, "MS1")
	require.NoError(t, err)
	before := claims[0].HeartbeatAt

	clock.Advance(30 * time.Second)
	ts, err := c.Heartbeat(ctx, "MS1", "U1", "W-A")
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	claims, err = c.ListClaims(ctx, "MS1")
	require.NoError(t, err)
	assert.True(t, ts.Equal(claims[0].HeartbeatAt))
}

func TestHeartbeat_NeverMovesBackwards(t *testing.T) {
	c, clock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "MS1", "U1", "W-A", "")
	require.NoError(t, err)
	first, err := c.Heartbeat(ctx, "MS1", "U1", "W-A")
	require.NoError(t, err)

	clock.Advance(-time.Minute)
	second, err := c.Heartbeat(ctx, "MS1", "U1", "W-A")
	require.NoError(t, err)
	assert.False(t, second.Before(first))
}

func TestReapStale(t *testing.T) {
	rec := &countingRecorder{}
	clock := newFakeClock()
	c := New(memstore.New(), Config{Now: clock.Now, Metrics: rec})
	ctx := context.Background()

	_, err := c.Claim(ctx, "MS1", "old", "W-A", "")
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	_, err = c.Claim(ctx, "MS1", "fresh", "W-B", "")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute) // old: 6m, fresh: 2m
	reaped, err := c.ReapStale(ctx, "MS1")
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, reaped)
	assert.Equal(t, int32(1), rec.reaped.Load())

	claimed, err := c.ListClaimed(ctx, "MS1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, claimed)

	ok, err := c.Claim(ctx, "MS1", "old", "W-C", "")
	require.NoError(t, err)
	assert.True(t, ok, "reaped unit must be claimable")
}

func TestReapStale_HeartbeatKeepsClaimAlive(t *testing.T) {
	c, clock := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "MS1", "U1", "W-A", "")
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	_, err = c.Heartbeat(ctx, "MS1", "U1", "W-A")
	require.NoError(t, err)

	clock.Advance(4 * time.Minute)
	reaped, err := c.ReapStale(ctx, "MS1")
	require.NoError(t, err)
	assert.Empty(t, reaped)
}

func TestReapStale_UnreadableRecord(t *testing.T) {
	s := memstore.New()
	c := New(s, Config{})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "claims/MS1/U1", []byte("{not json")))
	reaped, err := c.ReapStale(ctx, "MS1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, reaped)
}

func TestClaimBatch(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "MS1", "U2", "W-B", "")
	require.NoError(t, err)

	claimed, err := c.ClaimBatch(ctx, "MS1", []string{"U1", "U2", "U3"}, "W-A", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U3"}, claimed)
}

func TestClaimBatch_PartialOnError(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	claimed, err := c.ClaimBatch(ctx, "MS1", []string{"U1", "bad/unit", "U3"}, "W-A", "")
	assert.Error(t, err)
	assert.Equal(t, []string{"U1"}, claimed)

	// Earlier successes remain claimed
	units, err := c.ListClaimed(ctx, "MS1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, units)
}

func TestReleaseAll(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	for _, tc := range []struct{ ms, unit, owner string }{
		{"MS1", "U1", "W-A"},
		{"MS1", "U2", "W-B"},
		{"MS2", "U1", "W-A"},
		{"MS3", "U9", "W-A"},
	} {
		ok, err := c.Claim(ctx, tc.ms, tc.unit, tc.owner, "")
		require.NoError(t, err)
		require.True(t, ok)
	}

	n, err := c.ReleaseAll(ctx, "W-A")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ms1, err := c.ListClaimed(ctx, "MS1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U2"}, ms1)

	ms2, err := c.ListClaimed(ctx, "MS2")
	require.NoError(t, err)
	assert.Empty(t, ms2)
}

func TestClaim_WritesActivity(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "MS1", "U1", "W-A", "")
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, "MS1", "U1", "W-A"))

	entries, err := c.Activity(ctx, "MS1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActionClaim, entries[0].Action)
	assert.Equal(t, domain.ActionRelease, entries[1].Action)
	assert.Equal(t, "U1", entries[1].UnitID)
}
