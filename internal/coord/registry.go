package coord

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

func instanceKey(instance string) (string, error) {
	return store.Join(store.InstancesPrefix, instance)
}

// Register writes (or rewrites) the record of a worker instance. Each
// instance only ever writes its own record, so no locking is needed.
func (c *Coordinator) Register(ctx context.Context, instance, workspace, branch string) error {
	key, err := instanceKey(instance)
	if err != nil {
		return err
	}

	now := c.now()
	rec := domain.InstanceRecord{
		InstanceID:  instance,
		Workspace:   workspace,
		Branch:      branch,
		StartedAt:   now,
		HeartbeatAt: now,
		Status:      domain.InstanceActive,
	}

	var prev domain.InstanceRecord
	if err := c.getJSON(ctx, key, &prev); err == nil {
		rec.StartedAt = prev.StartedAt
		rec.CurrentMilestone = prev.CurrentMilestone
	}

	if err := c.putJSON(ctx, key, &rec); err != nil {
		return fmt.Errorf("register %s: %w", instance, err)
	}
	c.logger.Debug("instance registered",
		zap.String("instance", instance),
		zap.String("workspace", workspace))
	return nil
}

// Touch refreshes an instance's heartbeat and records what it is working on.
// An empty status leaves the current status unchanged.
func (c *Coordinator) Touch(ctx context.Context, instance string, status domain.InstanceStatus, milestone string) error {
	key, err := instanceKey(instance)
	if err != nil {
		return err
	}

	var rec domain.InstanceRecord
	if err := c.getJSON(ctx, key, &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("touch %s: %w", instance, ErrInstanceNotFound)
		}
		return fmt.Errorf("touch %s: %w", instance, err)
	}

	rec.HeartbeatAt = c.now()
	if status != "" {
		rec.Status = status
	}
	rec.CurrentMilestone = milestone

	if err := c.putJSON(ctx, key, &rec); err != nil {
		return fmt.Errorf("touch %s: %w", instance, err)
	}
	return nil
}

// ListActive returns instances whose heartbeat is younger than the active
// window, optionally only those working on milestone. Inactive records are
// filtered out, never deleted.
func (c *Coordinator) ListActive(ctx context.Context, milestone string) ([]domain.InstanceRecord, error) {
	ids, err := c.store.List(ctx, store.InstancesPrefix)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	now := c.now()
	var active []domain.InstanceRecord
	for _, id := range ids {
		var rec domain.InstanceRecord
		if err := c.getJSON(ctx, store.InstancesPrefix+"/"+id, &rec); err != nil {
			continue
		}
		if now.Sub(rec.HeartbeatAt) >= c.config.ActiveWindow {
			continue
		}
		if milestone != "" && rec.CurrentMilestone != milestone {
			continue
		}
		active = append(active, rec)
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].InstanceID < active[j].InstanceID
	})
	return active, nil
}
