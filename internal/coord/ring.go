package coord

import "github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"

// ring is a fixed-capacity buffer of activity entries that overwrites the
// oldest entry once full.
type ring struct {
	buf   []domain.ActivityEntry
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]domain.ActivityEntry, capacity)}
}

// Push appends e, dropping the oldest entry when full
func (r *ring) Push(e domain.ActivityEntry) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// Entries returns the buffered entries oldest first
func (r *ring) Entries() []domain.ActivityEntry {
	out := make([]domain.ActivityEntry, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered entries
func (r *ring) Len() int {
	return r.size
}
