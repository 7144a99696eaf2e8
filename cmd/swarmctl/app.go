package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hochfrequenz/claude-swarm-coordinator/internal/batch"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/config"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/coord"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/engine"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/logging"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/metrics"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/notify"
	"github.com/hochfrequenz/claude-swarm-coordinator/internal/store"

	// store backends
	_ "github.com/hochfrequenz/claude-swarm-coordinator/internal/store/fsstore"
	_ "github.com/hochfrequenz/claude-swarm-coordinator/internal/store/memstore"
	_ "github.com/hochfrequenz/claude-swarm-coordinator/internal/store/redisstore"
	_ "github.com/hochfrequenz/claude-swarm-coordinator/internal/store/sqlitestore"
)

// instanceEnv names the environment variable holding the instance id
const instanceEnv = "SWARM_INSTANCE"

// app bundles what every command needs
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   store.Store
	coord   *coord.Coordinator
	metrics *metrics.Collector
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log)

	s, err := store.Open(cfg.Store)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	collector := metrics.NewCollector("swarm")
	c := coord.New(s, coord.Config{
		StaleThreshold:   cfg.Claims.StaleThreshold.Duration,
		ActiveWindow:     cfg.Registry.ActiveWindow.Duration,
		ActivityCapacity: cfg.Activity.Capacity,
		Logger:           logger,
		Metrics:          collector,
	})

	return &app{cfg: cfg, logger: logger, store: s, coord: c, metrics: collector}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// instanceID resolves the acting instance: flag, environment, config, then a
// fresh id
func (a *app) instanceID() string {
	for _, id := range []string{instanceFlag, os.Getenv(instanceEnv), a.cfg.General.InstanceID} {
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	id := "W-" + uuid.NewString()[:8]
	a.logger.Warn("no instance id configured, generated one", zap.String("instance", id),
		zap.String("hint", "export "+instanceEnv+"="+id))
	return id
}

// sinks builds the notification fan-out. Desktop and Slack only see batch
// completions and errors.
func (a *app) sinks(extra ...notify.Notifier) *notify.MultiNotifier {
	multi := notify.NewMultiNotifier(notify.NewLogNotifier(a.logger.With(zap.String("component", "events"))))
	external := notify.NewMultiNotifier()
	if a.cfg.Notifications.Desktop {
		external.Add(notify.NewDesktopNotifier(true))
	}
	if a.cfg.Notifications.SlackWebhook != "" {
		external.Add(notify.NewSlackNotifier(a.cfg.Notifications.SlackWebhook))
	}
	multi.Add(notify.OnlyEvents(external, notify.EventBatchComplete, notify.EventGroupError))
	for _, n := range extra {
		multi.Add(n)
	}
	return multi
}

// executor builds a batch executor delivering events to port
func (a *app) executor(port notify.Port) *batch.Executor {
	sc := a.cfg.Scheduler
	var eng engine.Engine
	if len(sc.EngineCommand) > 0 {
		eng = engine.NewCommand(sc.EngineCommand[0], sc.EngineCommand[1:]...)
	} else {
		eng = engine.NewCommand("")
	}

	opts := batch.DefaultOptions()
	if sc.Deadline.Duration > 0 {
		opts.DefaultDeadline = sc.Deadline.Duration
	}
	if sc.GroupTimeout.Duration > 0 {
		opts.DefaultGroupTimeout = sc.GroupTimeout.Duration
	}
	if sc.MinGroupTimeout.Duration > 0 {
		opts.MinGroupTimeout = sc.MinGroupTimeout.Duration
	}
	if sc.Buffer.Duration > 0 {
		opts.SchedulingBuffer = sc.Buffer.Duration
	}
	if sc.Grace.Duration > 0 {
		opts.TimeoutGrace = sc.Grace.Duration
	}
	opts.Notifier = port
	opts.Logger = a.logger
	opts.Metrics = a.metrics
	return batch.NewExecutor(eng, opts)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
