package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

func claimKey(milestone, unit string) (string, error) {
	return store.Join(store.ClaimsPrefix, milestone, unit)
}

func milestoneKey(milestone string) (string, error) {
	return store.Join(store.ClaimsPrefix, milestone)
}

// Claim tries to take exclusive ownership of a unit. Losing the race is the
// normal outcome under contention and returns false with a nil error.
func (c *Coordinator) Claim(ctx context.Context, milestone, unit, instance, workspace string) (bool, error) {
	key, err := claimKey(milestone, unit)
	if err != nil {
		return false, err
	}

	now := c.now()
	rec := domain.ClaimRecord{
		MilestoneID: milestone,
		UnitID:      unit,
		InstanceID:  instance,
		Workspace:   workspace,
		ClaimedAt:   now,
		HeartbeatAt: now,
	}

	err = c.createJSON(ctx, key, &rec)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrExists):
		c.recordClaim(false)
		c.logger.Debug("unit already claimed",
			zap.String("milestone", milestone),
			zap.String("unit", unit),
			zap.String("instance", instance))
		return false, nil
	default:
		return false, fmt.Errorf("claim %s/%s: %w", milestone, unit, err)
	}

	c.recordClaim(true)
	c.logger.Info("unit claimed",
		zap.String("milestone", milestone),
		zap.String("unit", unit),
		zap.String("instance", instance))
	c.logActivityBestEffort(ctx, milestone, instance, domain.ActionClaim, unit)
	return true, nil
}

// Release gives up a claim. Releasing a claim held by someone else is
// tolerated and leaves the record in place.
func (c *Coordinator) Release(ctx context.Context, milestone, unit, instance string) error {
	key, err := claimKey(milestone, unit)
	if err != nil {
		return err
	}

	var rec domain.ClaimRecord
	err = c.getJSON(ctx, key, &rec)
	switch {
	case err == nil:
		if !rec.OwnedBy(instance) {
			c.logger.Warn("release by non-owner ignored",
				zap.String("milestone", milestone),
				zap.String("unit", unit),
				zap.String("instance", instance),
				zap.String("owner", rec.InstanceID))
			return nil
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("release %s/%s: %w", milestone, unit, err)
	}

	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("release %s/%s: %w", milestone, unit, err)
	}

	c.logger.Info("unit released",
		zap.String("milestone", milestone),
		zap.String("unit", unit),
		zap.String("instance", instance))
	c.logActivityBestEffort(ctx, milestone, instance, domain.ActionRelease, unit)
	return nil
}

// Heartbeat refreshes the lease on a claim the caller asserts it owns. Unlike
// Release, a missing or foreign claim is an error.
func (c *Coordinator) Heartbeat(ctx context.Context, milestone, unit, instance string) (time.Time, error) {
	key, err := claimKey(milestone, unit)
	if err != nil {
		return time.Time{}, err
	}

	var rec domain.ClaimRecord
	if err := c.getJSON(ctx, key, &rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, fmt.Errorf("heartbeat %s/%s: %w", milestone, unit, ErrClaimNotFound)
		}
		return time.Time{}, fmt.Errorf("heartbeat %s/%s: %w", milestone, unit, err)
	}
	if !rec.OwnedBy(instance) {
		return time.Time{}, fmt.Errorf("heartbeat %s/%s by %s (owner %s): %w",
			milestone, unit, instance, rec.InstanceID, ErrNotOwner)
	}

	now := c.now()
	if now.Before(rec.HeartbeatAt) {
		now = rec.HeartbeatAt
	}
	rec.HeartbeatAt = now

	if err := c.putJSON(ctx, key, &rec); err != nil {
		return time.Time{}, fmt.Errorf("heartbeat %s/%s: %w", milestone, unit, err)
	}
	return now, nil
}

// ReapStale removes every claim in the milestone whose heartbeat is older
// than the stale threshold, whoever owns it, and returns the reclaimed units.
func (c *Coordinator) ReapStale(ctx context.Context, milestone string) ([]string, error) {
	prefix, err := milestoneKey(milestone)
	if err != nil {
		return nil, err
	}
	units, err := c.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("reap %s: %w", milestone, err)
	}

	now := c.now()
	var reaped []string
	for _, unit := range units {
		key := prefix + "/" + unit

		var rec domain.ClaimRecord
		err := c.getJSON(ctx, key, &rec)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		owner := rec.InstanceID
		if err == nil && rec.Age(now) <= c.config.StaleThreshold {
			continue
		}
		if err != nil {
			// Unreadable records can never be heartbeated again
			owner = ""
			c.logger.Warn("reaping unreadable claim", zap.String("key", key), zap.Error(err))
		}

		if err := c.store.Delete(ctx, key); err != nil {
			return reaped, fmt.Errorf("reap %s/%s: %w", milestone, unit, err)
		}
		reaped = append(reaped, unit)
		c.logger.Warn("reaped stale claim",
			zap.String("milestone", milestone),
			zap.String("unit", unit),
			zap.String("owner", owner),
			zap.Duration("age", rec.Age(now)))
		c.logActivityBestEffort(ctx, milestone, owner, domain.ActionReap, unit)
	}

	if c.config.Metrics != nil && len(reaped) > 0 {
		c.config.Metrics.Reaped(len(reaped))
	}
	return reaped, nil
}

// ListClaimed returns the units that currently have a claim record, live or
// not yet reaped.
func (c *Coordinator) ListClaimed(ctx context.Context, milestone string) ([]string, error) {
	prefix, err := milestoneKey(milestone)
	if err != nil {
		return nil, err
	}
	units, err := c.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list claims %s: %w", milestone, err)
	}
	return units, nil
}

// ListClaims returns the readable claim records of a milestone
func (c *Coordinator) ListClaims(ctx context.Context, milestone string) ([]domain.ClaimRecord, error) {
	units, err := c.ListClaimed(ctx, milestone)
	if err != nil {
		return nil, err
	}

	claims := make([]domain.ClaimRecord, 0, len(units))
	for _, unit := range units {
		var rec domain.ClaimRecord
		if err := c.getJSON(ctx, store.ClaimsPrefix+"/"+milestone+"/"+unit, &rec); err != nil {
			continue
		}
		claims = append(claims, rec)
	}
	return claims, nil
}

// ClaimBatch claims units one at a time. It is not transactional: on error
// the units claimed so far stay claimed and are returned alongside the error.
// Callers must treat the returned slice as what they own.
func (c *Coordinator) ClaimBatch(ctx context.Context, milestone string, units []string, instance, workspace string) ([]string, error) {
	claimed := make([]string, 0, len(units))
	for _, unit := range units {
		ok, err := c.Claim(ctx, milestone, unit, instance, workspace)
		if err != nil {
			return claimed, err
		}
		if ok {
			claimed = append(claimed, unit)
		}
	}
	return claimed, nil
}

// ReleaseAll removes every claim held by instance across all milestones and
// returns how many were removed. Used on process exit.
func (c *Coordinator) ReleaseAll(ctx context.Context, instance string) (int, error) {
	milestones, err := c.store.List(ctx, store.ClaimsPrefix)
	if err != nil {
		return 0, fmt.Errorf("release all: %w", err)
	}

	count := 0
	var errs []error
	for _, milestone := range milestones {
		units, err := c.store.List(ctx, store.ClaimsPrefix+"/"+milestone)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, unit := range units {
			key := store.ClaimsPrefix + "/" + milestone + "/" + unit

			var rec domain.ClaimRecord
			if err := c.getJSON(ctx, key, &rec); err != nil || !rec.OwnedBy(instance) {
				continue
			}
			if err := c.store.Delete(ctx, key); err != nil {
				errs = append(errs, err)
				continue
			}
			count++
			c.logActivityBestEffort(ctx, milestone, instance, domain.ActionReleaseAll, unit)
		}
	}

	c.logger.Info("released all claims", zap.String("instance", instance), zap.Int("count", count))
	if len(errs) > 0 {
		return count, fmt.Errorf("release all: %w", errors.Join(errs...))
	}
	return count, nil
}

func (c *Coordinator) recordClaim(won bool) {
	if c.config.Metrics != nil {
		c.config.Metrics.ClaimAttempt(won)
	}
}
