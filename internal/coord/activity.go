package coord

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

func activityKey(milestone string) (string, error) {
	return store.Join(store.ActivityPrefix, milestone)
}

// LogActivity appends an entry to the milestone's bounded activity log,
// keeping only the most recent ActivityCapacity entries.
func (c *Coordinator) LogActivity(ctx context.Context, milestone, instance, action, unit string) error {
	key, err := activityKey(milestone)
	if err != nil {
		return err
	}

	c.activityMu.Lock()
	defer c.activityMu.Unlock()

	var existing []domain.ActivityEntry
	if err := c.getJSON(ctx, key, &existing); err != nil && !errors.Is(err, store.ErrNotFound) {
		// A corrupt log is replaced rather than blocking every future write
		c.logger.Warn("discarding unreadable activity log", zap.String("milestone", milestone), zap.Error(err))
		existing = nil
	}

	r := newRing(c.config.ActivityCapacity)
	for _, e := range existing {
		r.Push(e)
	}
	r.Push(domain.ActivityEntry{
		Timestamp:  c.now(),
		InstanceID: instance,
		Action:     action,
		UnitID:     unit,
	})

	if err := c.putJSON(ctx, key, r.Entries()); err != nil {
		return fmt.Errorf("log activity %s: %w", milestone, err)
	}
	return nil
}

// Activity returns a milestone's activity log, oldest first
func (c *Coordinator) Activity(ctx context.Context, milestone string) ([]domain.ActivityEntry, error) {
	key, err := activityKey(milestone)
	if err != nil {
		return nil, err
	}
	var entries []domain.ActivityEntry
	if err := c.getJSON(ctx, key, &entries); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read activity %s: %w", milestone, err)
	}
	return entries, nil
}

func (c *Coordinator) logActivityBestEffort(ctx context.Context, milestone, instance, action, unit string) {
	if err := c.LogActivity(ctx, milestone, instance, action, unit); err != nil {
		c.logger.Warn("failed to log activity",
			zap.String("milestone", milestone),
			zap.String("action", action),
			zap.Error(err))
	}
}
