// Package batch runs task groups in dependency waves and schedules recurring
// batches.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/domain"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/engine"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/notify"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/scheduler"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/synth"
)

// DepKeyPrefix prefixes the input key under which a dependency's result is
// injected into a dependent group
const DepKeyPrefix = "dep_"

var (
	errGroupTimeout = errors.New("group timed out")
	errNoResult     = errors.New("engine returned no result")
	errDeadlineSkip = errors.New("batch deadline exceeded before group started")
)

// Recorder receives executor metrics
type Recorder interface {
	GroupFinished(status string, d time.Duration)
	BatchFinished(d time.Duration)
}

// Options tunes the executor. Zero values take the defaults, except
// SchedulingBuffer and TimeoutGrace where zero means none.
type Options struct {
	DefaultDeadline     time.Duration
	DefaultGroupTimeout time.Duration
	MinGroupTimeout     time.Duration
	SchedulingBuffer    time.Duration
	TimeoutGrace        time.Duration
	MaxFindings         int
	MaxFindingLen       int
	MaxErrorLen         int

	Notifier notify.Port
	Logger   *zap.Logger
	Metrics  Recorder
}

// DefaultOptions returns the stock executor settings
func DefaultOptions() Options {
	return Options{
		DefaultDeadline:     45 * time.Second,
		DefaultGroupTimeout: 30 * time.Second,
		MinGroupTimeout:     5 * time.Second,
		SchedulingBuffer:    2 * time.Second,
		TimeoutGrace:        time.Second,
		MaxFindings:         synth.DefaultMax,
		MaxFindingLen:       synth.DefaultMaxLen,
		MaxErrorLen:         200,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.DefaultDeadline <= 0 {
		o.DefaultDeadline = def.DefaultDeadline
	}
	if o.DefaultGroupTimeout <= 0 {
		o.DefaultGroupTimeout = def.DefaultGroupTimeout
	}
	if o.MinGroupTimeout <= 0 {
		o.MinGroupTimeout = def.MinGroupTimeout
	}
	if o.SchedulingBuffer < 0 {
		o.SchedulingBuffer = 0
	}
	if o.TimeoutGrace < 0 {
		o.TimeoutGrace = 0
	}
	if o.MaxFindings <= 0 {
		o.MaxFindings = def.MaxFindings
	}
	if o.MaxFindingLen <= 0 {
		o.MaxFindingLen = def.MaxFindingLen
	}
	if o.MaxErrorLen <= 0 {
		o.MaxErrorLen = def.MaxErrorLen
	}
	if o.Notifier == nil {
		o.Notifier = notify.NopPort{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Executor runs batches of task groups against an engine
type Executor struct {
	engine engine.Engine
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewExecutor creates an executor. Start from DefaultOptions() to keep the
// stock buffer and grace.
func NewExecutor(eng engine.Engine, opts Options) *Executor {
	opts = opts.withDefaults()
	return &Executor{
		engine: eng,
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "batch")),
		now:    time.Now,
	}
}

// Options returns the effective options
func (e *Executor) Options() Options {
	return e.opts
}

// run holds the state of one Execute call
type run struct {
	start    time.Time
	deadline time.Duration
	total    int

	mu     sync.Mutex
	lookup map[string]*domain.GroupResult
	done   []string
}

func (r *run) record(res *domain.GroupResult) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookup[res.GroupID] = res
	r.done = append(r.done, res.GroupID)
	return len(r.done)
}

func (r *run) dependency(id string) (*domain.GroupResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.lookup[id]
	return res, ok
}

func (r *run) completed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.done...)
}

// Execute runs groups and returns the consolidated result. Independent groups
// run concurrently; dependent groups then run one at a time in ascending wave
// order, each seeing the results of dependencies that already finished.
// Execute never fails: every problem is reported through the result.
func (e *Executor) Execute(ctx context.Context, groups []domain.TaskGroup, deadline time.Duration) *domain.BatchResult {
	if deadline <= 0 {
		deadline = e.opts.DefaultDeadline
	}
	r := &run{
		start:    e.now(),
		deadline: deadline,
		total:    len(groups),
		lookup:   make(map[string]*domain.GroupResult, len(groups)),
	}

	independent, dependent := scheduler.Partition(groups)
	ordered := scheduler.OrderDependents(dependent)

	for _, issue := range scheduler.Lint(groups) {
		if issue.Kind == scheduler.IssueWaveOrder {
			e.logger.Warn("dependency will not be injected", zap.String("group", issue.GroupID),
				zap.String("dependency", issue.DepID))
		}
	}

	agents := 0
	for _, g := range groups {
		agents += len(g.Agents)
	}
	e.emit(notify.EventBatchStart, map[string]any{
		"groups":      len(groups),
		"agents":      agents,
		"independent": len(independent),
		"dependent":   len(ordered),
		"deadline_ms": deadline.Milliseconds(),
	})
	e.logger.Info("batch started", zap.Int("groups", len(groups)), zap.Int("agents", agents),
		zap.Duration("deadline", deadline))

	parallel := make([]*domain.GroupResult, len(independent))
	var eg errgroup.Group
	for i, g := range independent {
		eg.Go(func() error {
			res := e.runGroup(ctx, r, g)
			parallel[i] = res
			e.finish(r, res)
			return nil
		})
	}
	_ = eg.Wait() // goroutines never return errors

	results := make([]*domain.GroupResult, 0, len(groups))
	results = append(results, parallel...)

	if len(ordered) > 0 {
		e.emit(notify.EventBatchProgress, map[string]any{
			"done":    len(parallel),
			"total":   r.total,
			"pending": len(ordered),
		})
	}

	for i, g := range ordered {
		var res *domain.GroupResult
		if e.now().Sub(r.start) >= r.deadline {
			res = &domain.GroupResult{
				GroupID:     g.ID,
				Name:        g.Name,
				Status:      domain.GroupTimedOut,
				KeyFindings: []string{},
				Error:       errDeadlineSkip.Error(),
			}
			e.logger.Warn("group skipped", zap.String("group", g.ID), zap.Error(errDeadlineSkip))
		} else {
			g.Input = e.inject(r, g)
			res = e.runGroup(ctx, r, g)
		}
		results = append(results, res)
		e.finish(r, res)

		pending := make([]string, 0, len(ordered)-i-1)
		for _, p := range ordered[i+1:] {
			pending = append(pending, p.ID)
		}
		e.emit(notify.EventCheckpoint, map[string]any{
			"group_id":  g.ID,
			"completed": r.completed(),
			"pending":   pending,
		})
	}

	batch := e.summarize(r, results)
	e.emit(notify.EventBatchComplete, map[string]any{
		"total":       batch.TotalGroups,
		"completed":   batch.CompletedGroups,
		"failed":      batch.FailedGroups,
		"timed_out":   batch.TimedOut,
		"duration_ms": batch.DurationMs,
		"synthesis":   batch.Synthesis,
	})
	if e.opts.Metrics != nil {
		e.opts.Metrics.BatchFinished(time.Duration(batch.DurationMs) * time.Millisecond)
	}
	e.logger.Info("batch complete", zap.Int("completed", batch.CompletedGroups),
		zap.Int("failed", batch.FailedGroups), zap.Bool("timed_out", batch.TimedOut),
		zap.Int64("duration_ms", batch.DurationMs))
	return batch
}

// emit hands an event to the notifier. A panicking notifier never reaches
// Execute's caller.
func (e *Executor) emit(event string, data map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Debug("notifier panicked", zap.String("event", event), zap.Any("panic", p))
		}
	}()
	e.opts.Notifier.Emit(event, data)
}

// inject returns a copy of the group's input with the results of every
// already-finished dependency added under dep_<id>
func (e *Executor) inject(r *run, g domain.TaskGroup) map[string]any {
	input := make(map[string]any, len(g.Input)+len(g.DependsOn))
	for k, v := range g.Input {
		input[k] = v
	}
	for _, dep := range g.DependsOn {
		if res, ok := r.dependency(dep); ok {
			input[DepKeyPrefix+dep] = res.Payload()
		}
	}
	return input
}

func (e *Executor) finish(r *run, res *domain.GroupResult) {
	done := r.record(res)
	if e.opts.Metrics != nil {
		e.opts.Metrics.GroupFinished(string(res.Status), time.Duration(res.DurationMs)*time.Millisecond)
	}
	e.emit(notify.EventGroupComplete, map[string]any{
		"group_id":    res.GroupID,
		"name":        res.Name,
		"status":      string(res.Status),
		"duration_ms": res.DurationMs,
		"done":        done,
		"total":       r.total,
	})
}

// groupTimeout is min(requested, remaining budget - buffer), floored at the
// minimum group timeout
func (e *Executor) groupTimeout(r *run, g domain.TaskGroup) time.Duration {
	timeout := g.Timeout(e.opts.DefaultGroupTimeout)
	remaining := r.deadline - e.now().Sub(r.start) - e.opts.SchedulingBuffer
	if remaining < timeout {
		timeout = remaining
	}
	if timeout < e.opts.MinGroupTimeout {
		timeout = e.opts.MinGroupTimeout
	}
	return timeout
}

type outcome struct {
	res *engine.Result
	err error
}

func (e *Executor) runGroup(ctx context.Context, r *run, g domain.TaskGroup) *domain.GroupResult {
	timeout := e.groupTimeout(r, g)
	req := engine.Request{
		Name:      g.Name,
		Pattern:   g.Pattern,
		Agents:    g.Agents,
		Input:     g.Input,
		Timeout:   timeout,
		TimeoutMs: timeout.Milliseconds(),
	}

	started := e.now()
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("engine panic: %v", p)}
			}
		}()
		res, err := e.engine.Run(ctx, req)
		done <- outcome{res: res, err: err}
	}()

	timer := time.NewTimer(timeout + e.opts.TimeoutGrace)
	defer timer.Stop()

	var out outcome
	select {
	case out = <-done:
	case <-timer.C:
		out = outcome{err: fmt.Errorf("%w after %s", errGroupTimeout, timeout)}
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	res := &domain.GroupResult{
		GroupID:     g.ID,
		Name:        g.Name,
		DurationMs:  e.now().Sub(started).Milliseconds(),
		KeyFindings: []string{},
	}

	switch {
	case out.err != nil:
		res.Status = domain.GroupFailed
		if timedOut(ctx, out.err) {
			res.Status = domain.GroupTimedOut
		}
		res.Error = synth.Truncate(out.err.Error(), e.opts.MaxErrorLen)
	case out.res == nil:
		res.Status = domain.GroupFailed
		res.Error = errNoResult.Error()
	default:
		res.Status = Classify(out.res)
		res.SuccessCount = out.res.SuccessCount
		res.FailCount = out.res.FailCount
		res.KeyFindings = synth.ExtractFindings(out.res, e.opts.MaxFindings, e.opts.MaxFindingLen)
		res.Raw = out.res
	}

	if res.Error != "" {
		e.logger.Warn("group failed", zap.String("group", g.ID), zap.String("status", string(res.Status)),
			zap.String("error", res.Error))
		e.emit(notify.EventGroupError, map[string]any{
			"group_id": g.ID,
			"status":   string(res.Status),
			"error":    res.Error,
		})
	}
	return res
}

// timedOut reports whether err means the group ran out of time rather than
// failed. An engine deadline only counts while the caller's context is live.
func timedOut(ctx context.Context, err error) bool {
	if errors.Is(err, errGroupTimeout) || errors.Is(err, engine.ErrTimeout) {
		return true
	}
	return ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded)
}

// Classify maps an engine status onto a group status
func Classify(res *engine.Result) domain.GroupStatus {
	switch res.Status {
	case "completed", "success":
		return domain.GroupCompleted
	case "partial":
		return domain.GroupPartial
	case "failed", "error":
		return domain.GroupFailed
	case "timeout", "timedOut":
		return domain.GroupTimedOut
	case "":
		if res.FailCount == 0 {
			return domain.GroupCompleted
		}
		return domain.GroupPartial
	default:
		if res.FailCount > 0 && res.SuccessCount == 0 {
			return domain.GroupFailed
		}
		if res.FailCount > 0 {
			return domain.GroupPartial
		}
		return domain.GroupCompleted
	}
}

func (e *Executor) summarize(r *run, results []*domain.GroupResult) *domain.BatchResult {
	elapsed := e.now().Sub(r.start)
	batch := &domain.BatchResult{
		TotalGroups: len(results),
		DurationMs:  elapsed.Milliseconds(),
		Results:     results,
		Synthesis:   synth.Synthesize(results, e.opts.MaxFindings),
		TimedOut:    elapsed >= r.deadline,
	}
	for _, res := range results {
		if res.Status.Succeeded() {
			batch.CompletedGroups++
			continue
		}
		batch.FailedGroups++
		if res.Status == domain.GroupTimedOut {
			batch.TimedOut = true
		}
	}
	return batch
}
