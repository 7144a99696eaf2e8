package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/coord"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store/fsstore"
)

func TestWatcher_DebouncesCreates(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var batches [][]string
	w, err := New(dir, func(names []string) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, names)
	}, nil)
	require.NoError(t, err)
	w.SetDebounce(50 * time.Millisecond)
	w.Start(context.Background())
	defer w.Stop()

	for _, name := range []string{"b", "a", ".tmp-123"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, batches[0])
}

func TestTail_DeliversNewMessages(t *testing.T) {
	root := t.TempDir()
	s, err := fsstore.New(root)
	require.NoError(t, err)
	c := coord.New(s, coord.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domain.CoordinationMessage, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- Tail(ctx, filepath.Join(root, store.MessagesPrefix), c, "MS1", func(m domain.CoordinationMessage) {
			got <- m
		}, nil)
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, c.PostMessage(ctx, domain.CoordinationMessage{
		FromInstance: "W-A", Type: "status", MilestoneID: "MS1", Payload: map[string]any{"unit": "U1"},
	}))
	require.NoError(t, c.PostMessage(ctx, domain.CoordinationMessage{
		FromInstance: "W-B", Type: "status", MilestoneID: "MS2",
	}))

	select {
	case m := <-got:
		assert.Equal(t, "W-A", m.FromInstance)
		assert.Equal(t, "U1", m.Payload["unit"])
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	assert.NoError(t, <-errc)
	assert.Empty(t, got, "other milestones are filtered")
}

// postbox mimics coord.GetMessages: newest first, Since inclusive, Limit
// defaulting to coord.DefaultMessageLimit
type postbox struct {
	mu   sync.Mutex
	msgs []domain.CoordinationMessage
}

func (p *postbox) add(m domain.CoordinationMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, m)
}

func (p *postbox) GetMessages(_ context.Context, q coord.MessageQuery) ([]domain.CoordinationMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	limit := q.Limit
	if limit <= 0 {
		limit = coord.DefaultMessageLimit
	}
	var out []domain.CoordinationMessage
	for i := len(p.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if p.msgs[i].Timestamp.Before(q.Since) {
			break
		}
		out = append(out, p.msgs[i])
	}
	return out, nil
}

func TestTailer_DeliversBurstLargerThanDefaultLimit(t *testing.T) {
	src := &postbox{}
	var got []string
	tl := newTailer(src, "", func(m domain.CoordinationMessage) {
		got = append(got, m.FromInstance)
	}, zap.NewNop())
	base := tl.since

	n := coord.DefaultMessageLimit + 10
	var want []string
	for i := 0; i < n; i++ {
		from := fmt.Sprintf("W-%03d", i)
		want = append(want, from)
		src.add(domain.CoordinationMessage{FromInstance: from, Type: "status",
			Timestamp: base.Add(time.Duration(i) * time.Millisecond)})
	}

	tl.poll(context.Background())
	assert.Equal(t, want, got)

	got = nil
	tl.poll(context.Background())
	assert.Empty(t, got, "nothing new")

	// same millisecond as the newest delivered message, different sender
	last := base.Add(time.Duration(n-1) * time.Millisecond)
	src.add(domain.CoordinationMessage{FromInstance: "W-late", Type: "status", Timestamp: last})
	src.add(domain.CoordinationMessage{FromInstance: "W-next", Type: "status", Timestamp: last.Add(time.Millisecond)})
	tl.poll(context.Background())
	assert.Equal(t, []string{"W-late", "W-next"}, got)
	assert.True(t, tl.since.Equal(last.Add(time.Millisecond)), "since advances to the newest message")
}
