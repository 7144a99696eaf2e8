package coord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

// maxPostAttempts bounds the timestamp bumps on a key collision
const maxPostAttempts = 5

// MessageQuery filters GetMessages
type MessageQuery struct {
	Milestone string
	Since     time.Time
	Limit     int
}

// MessageName returns the postbox entry name for a message. The timestamp is
// zero-padded so names sort chronologically.
func MessageName(ts time.Time, from, msgType string) string {
	return fmt.Sprintf("%013d_%s_%s", ts.UnixMilli(), from, msgType)
}

func parseMessageTime(name string) (time.Time, bool) {
	head, _, ok := strings.Cut(name, "_")
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// PostMessage appends an immutable message to the shared postbox
func (c *Coordinator) PostMessage(ctx context.Context, msg domain.CoordinationMessage) error {
	if err := store.ValidateSegment(msg.FromInstance); err != nil {
		return fmt.Errorf("post message: from: %w", err)
	}
	if err := store.ValidateSegment(msg.Type); err != nil {
		return fmt.Errorf("post message: type: %w", err)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.now()
	}

	for attempt := 0; attempt < maxPostAttempts; attempt++ {
		key := store.MessagesPrefix + "/" + MessageName(msg.Timestamp, msg.FromInstance, msg.Type)
		err := c.createJSON(ctx, key, &msg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrExists) {
			return fmt.Errorf("post message: %w", err)
		}
		// Same sender and type within one millisecond
		msg.Timestamp = msg.Timestamp.Add(time.Millisecond)
	}
	return fmt.Errorf("post message: %w", store.ErrExists)
}

// GetMessages returns the newest matching messages first. Scanning stops at
// the first entry older than q.Since, relying on time-ordered entry names.
func (c *Coordinator) GetMessages(ctx context.Context, q MessageQuery) ([]domain.CoordinationMessage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	names, err := c.store.List(ctx, store.MessagesPrefix)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var out []domain.CoordinationMessage
	for i := len(names) - 1; i >= 0 && len(out) < limit; i-- {
		name := names[i]
		if ts, ok := parseMessageTime(name); ok && !q.Since.IsZero() && ts.Before(q.Since) {
			break
		}

		var msg domain.CoordinationMessage
		if err := c.getJSON(ctx, store.MessagesPrefix+"/"+name, &msg); err != nil {
			continue
		}
		if q.Milestone != "" && msg.MilestoneID != q.Milestone {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}
