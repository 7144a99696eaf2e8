// Package coord implements serverless coordination between worker processes
// that share a store.Store: exclusive unit claims with heartbeats and stale
// reclamation, an instance registry, a message postbox and per-milestone
// activity logs.
//
// Ownership is advisory. Instance identities are never verified, so a buggy
// worker can release or heartbeat a claim it does not hold. The only
// cross-process guarantee comes from store.Store.Create.
package coord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"
)

var (
	// ErrClaimNotFound is returned by Heartbeat when no claim exists.
	ErrClaimNotFound = errors.New("coord: claim not found")
	// ErrNotOwner is returned by Heartbeat when another instance holds the claim.
	ErrNotOwner = errors.New("coord: claim owned by another instance")
	// ErrInstanceNotFound is returned by Touch for unregistered instances.
	ErrInstanceNotFound = errors.New("coord: instance not registered")
)

// Defaults for Config fields left zero
const (
	DefaultStaleThreshold   = 5 * time.Minute
	DefaultActiveWindow     = 10 * time.Minute
	DefaultActivityCapacity = 500
	DefaultMessageLimit     = 50
)

// Recorder receives claim protocol metrics
type Recorder interface {
	ClaimAttempt(won bool)
	Reaped(n int)
}

// Config configures a Coordinator
type Config struct {
	// StaleThreshold is the heartbeat age after which a claim may be reaped.
	StaleThreshold time.Duration
	// ActiveWindow is the heartbeat age after which an instance is hidden.
	ActiveWindow time.Duration
	// ActivityCapacity bounds each milestone's activity log.
	ActivityCapacity int

	Logger  *zap.Logger
	Metrics Recorder
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Coordinator implements the claim protocol, instance registry and messaging
type Coordinator struct {
	store  store.Store
	config Config
	logger *zap.Logger

	// serializes read-modify-write of activity logs within this process
	activityMu sync.Mutex
}

// New creates a Coordinator over s
func New(s store.Store, config Config) *Coordinator {
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = DefaultStaleThreshold
	}
	if config.ActiveWindow <= 0 {
		config.ActiveWindow = DefaultActiveWindow
	}
	if config.ActivityCapacity <= 0 {
		config.ActivityCapacity = DefaultActivityCapacity
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		store:  s,
		config: config,
		logger: logger.With(zap.String("component", "coord")),
	}
}

// Store returns the underlying record store
func (c *Coordinator) Store() store.Store {
	return c.store
}

// StaleThreshold returns the configured claim staleness threshold
func (c *Coordinator) StaleThreshold() time.Duration {
	return c.config.StaleThreshold
}

func (c *Coordinator) now() time.Time {
	return c.config.Now().UTC()
}

func (c *Coordinator) getJSON(ctx context.Context, key string, v any) error {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Coordinator) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Put(ctx, key, data)
}

// createJSON is an atomic create that builds a missing parent namespace and
// retries exactly once.
func (c *Coordinator) createJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	err = c.store.Create(ctx, key, data)
	if !errors.Is(err, store.ErrParentMissing) {
		return err
	}
	if err := c.store.EnsureParent(ctx, key); err != nil {
		return fmt.Errorf("create namespace for %s: %w", key, err)
	}
	return c.store.Create(ctx, key, data)
}
