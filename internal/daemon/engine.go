// Package daemon runs the detox engine: the session controller, the
// foreground monitor, persistence, the schedule trigger and the control API.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/usecase"
)

// EngineConfig holds daemon loop settings.
type EngineConfig struct {
	HeartbeatInterval time.Duration // How often to update the registry heartbeat
	ScheduleInterval  time.Duration // How often to check the schedule window
	RolloverInterval  time.Duration // How often to check for a new local day
	ShutdownTimeout   time.Duration // Grace period for the API server and final save
	DailyRefill       bool          // Refill the emergency budget at local midnight
}

// DefaultEngineConfig returns default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HeartbeatInterval: 30 * time.Second,
		ScheduleInterval:  30 * time.Second,
		RolloverInterval:  time.Minute,
		ShutdownTimeout:   5 * time.Second,
		DailyRefill:       true,
	}
}

// Controller is the part of the session controller the engine drives.
type Controller interface {
	usecase.SessionGate
	Rollover(now time.Time) bool
	Snapshot() domain.Snapshot
	Close()
}

// Snapshotter persists snapshots in the background.
type Snapshotter interface {
	Submit(snap domain.Snapshot)
	Run(ctx context.Context)
	Done() <-chan struct{}
}

// ScheduleChecker starts scheduled sessions while the window is open.
type ScheduleChecker interface {
	Check(now time.Time) bool
}

// EngineDeps are the engine's collaborators. Registry, Trigger and Server may be nil.
type EngineDeps struct {
	Controller Controller
	Monitor    *usecase.Monitor
	Source     domain.ForegroundSource
	Persister  Snapshotter
	Store      domain.StateStore
	Registry   domain.DaemonRegistry
	Trigger    ScheduleChecker
	Server     *http.Server
	Clock      domain.Clock
	Logger     *zap.Logger
}

// Engine owns every long-running loop of the daemon.
type Engine struct {
	config EngineConfig
	deps   EngineDeps
	daemon domain.Daemon
	logger *zap.Logger

	closeOnce sync.Once
}

// NewEngine creates an engine. Nothing runs until Run is called.
func NewEngine(config EngineConfig, deps EngineDeps, daemon domain.Daemon) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config: config,
		deps:   deps,
		daemon: daemon,
		logger: logger,
	}
}

// Run starts the engine loops and blocks until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	if e.deps.Registry != nil {
		if err := e.deps.Registry.Register(e.daemon); err != nil {
			e.logger.Error("failed to register daemon", zap.Error(err))
			return err
		}
	}

	e.logger.Info("detox engine started",
		zap.Int("pid", e.daemon.PID),
		zap.String("control_addr", e.daemon.ControlAddr))

	// The persister outlives the other loops so the final snapshot is written.
	persistCtx, stopPersist := context.WithCancel(context.Background())
	defer stopPersist()
	go e.deps.Persister.Run(persistCtx)

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := e.deps.Source.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn("foreground source stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := e.deps.Monitor.Run(loopCtx, e.deps.Source.Events()); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn("foreground monitor stopped", zap.Error(err))
		}
	}()

	serverErr := make(chan error, 1)
	if e.deps.Server != nil {
		go func() {
			e.logger.Info("control API listening", zap.String("addr", e.deps.Server.Addr))
			if err := e.deps.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	// Catch up on anything that happened while the daemon was down.
	e.rollover()
	e.checkSchedule()

	heartbeatTicker := e.deps.Clock.NewTicker(e.config.HeartbeatInterval)
	scheduleTicker := e.deps.Clock.NewTicker(e.config.ScheduleInterval)
	rolloverTicker := e.deps.Clock.NewTicker(e.config.RolloverInterval)

	defer func() {
		heartbeatTicker.Stop()
		scheduleTicker.Stop()
		rolloverTicker.Stop()
	}()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("detox engine stopping")
			runErr = ctx.Err()
			break loop

		case err := <-serverErr:
			e.logger.Error("control API failed", zap.Error(err))
			runErr = err
			break loop

		case <-heartbeatTicker.C():
			if e.deps.Registry != nil {
				if err := e.deps.Registry.UpdateHeartbeat(); err != nil {
					e.logger.Warn("failed to update heartbeat", zap.Error(err))
				}
			}

		case <-scheduleTicker.C():
			e.checkSchedule()

		case <-rolloverTicker.C():
			e.rollover()
		}
	}

	stopLoops()
	wg.Wait()
	e.shutdown(stopPersist)
	return runErr
}

func (e *Engine) rollover() {
	if !e.config.DailyRefill {
		return
	}
	e.deps.Controller.Rollover(e.deps.Clock.Now())
}

func (e *Engine) checkSchedule() {
	if e.deps.Trigger == nil {
		return
	}
	e.deps.Trigger.Check(e.deps.Clock.Now())
}

// shutdown stops the API, freezes the countdown and flushes the final snapshot.
func (e *Engine) shutdown(stopPersist context.CancelFunc) {
	if e.deps.Server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.config.ShutdownTimeout)
		if err := e.deps.Server.Shutdown(ctx); err != nil {
			e.logger.Warn("control API shutdown failed", zap.Error(err))
		}
		cancel()
	}

	e.deps.Controller.Close()
	e.deps.Persister.Submit(e.deps.Controller.Snapshot())
	stopPersist()

	select {
	case <-e.deps.Persister.Done():
	case <-time.After(e.config.ShutdownTimeout):
		e.logger.Warn("final snapshot save timed out")
	}

	if e.deps.Registry != nil {
		if err := e.deps.Registry.Clear(); err != nil {
			e.logger.Warn("failed to clear registry", zap.Error(err))
		}
	}
	e.logger.Info("detox engine stopped")
}

// Close releases the state store. Call it after Run returns.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.deps.Store != nil {
			err = e.deps.Store.Close()
		}
	})
	return err
}
