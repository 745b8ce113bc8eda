package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/api"
	"github.com/eliteGoblin/focusd/detox/internal/config"
	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/infra"
	"github.com/eliteGoblin/focusd/detox/internal/metrics"
	"github.com/eliteGoblin/focusd/detox/internal/policy"
	"github.com/eliteGoblin/focusd/detox/internal/schedule"
	"github.com/eliteGoblin/focusd/detox/internal/usecase"
)

// BinaryName is the daemon executable name; the lock surface process
// carries it and is never blocked.
const BinaryName = "detoxd"

// ProcessManager is what the daemon needs from the OS process layer.
type ProcessManager interface {
	domain.ProcessManager
	infra.PIDNamer
}

// Options configure Build. Zero-valued collaborators get the real implementations.
type Options struct {
	Config  *config.Config
	Paths   infra.DataPaths
	Version string
	Logger  *zap.Logger

	Runner         infra.CommandRunner
	ProcessManager ProcessManager
	Clock          domain.Clock
	GOOS           string
	// DisableServer skips the control API listener.
	DisableServer bool
}

// Runtime is a fully wired daemon.
type Runtime struct {
	Engine     *Engine
	Controller *usecase.Controller
	Notices    *infra.NoticeLog
	Metrics    *metrics.Recorder
	Store      domain.StateStore
	Handler    *api.Server
}

// Build assembles every component from opts and restores persisted state.
func Build(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = &infra.RealCommandRunner{}
	}
	pm := opts.ProcessManager
	if pm == nil {
		pm = infra.NewProcessManager()
	}
	clock := opts.Clock
	if clock == nil {
		clock = infra.SystemClock{}
	}
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	paths := opts.Paths
	if err := os.MkdirAll(paths.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := OpenStore(cfg.Storage.Backend, paths)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()
	notices := infra.NewNoticeLog(infra.DefaultNoticeCapacity, logger.Named("notice"))

	fgCfg := infra.ForegroundConfig{
		Command:          cfg.Monitor.ForegroundCommand,
		PollInterval:     cfg.Monitor.PollInterval,
		QueueSize:        cfg.Monitor.QueueSize,
		FailureThreshold: cfg.Monitor.FailureThreshold,
		ResendEvery:      cfg.Monitor.ResendEvery,
	}
	if len(fgCfg.Command) == 0 {
		fgCfg.Command = infra.DefaultForegroundCommand(goos)
	}
	source := infra.NewCommandForegroundSource(fgCfg, runner, pm, clock, logger.Named("foreground"))
	source.OnDrop(recorder.EventDropped)

	probe := infra.NewCommandProbe(runner, fgCfg.Command, cfg.Monitor.LockCommand, source, logger.Named("probe"))
	surface := infra.NewProcessSurface(infra.SurfaceConfig{
		LockCommand:   cfg.Monitor.LockCommand,
		UnlockCommand: cfg.Monitor.UnlockCommand,
		BlockCommand:  cfg.Monitor.BlockCommand,
	}, pm, runner, logger.Named("surface"))
	billing := infra.NewCommandBilling(runner, cfg.Billing.Command, logger.Named("billing"))

	persister := infra.NewPersister(store, logger.Named("persister"))
	persister.OnError = recorder.SaveFailed
	persister.OnSaved = func(domain.Snapshot) { recorder.Saved() }

	essentials := policy.NewRegistryWithPolicies(
		policy.NewLockSurfacePolicy(BinaryName),
		policy.NewDialerPolicyForOS(goos),
		policy.NewSystemShellPolicyForOS(goos),
	)

	controller := usecase.NewController(usecase.ControllerConfig{
		MaxMinutes:     cfg.Session.MaxMinutes,
		DefaultMinutes: cfg.Session.DefaultMinutes,
		BudgetMax:      cfg.Budget.Max,
		CancelPolicy:   usecase.CancelPolicy(cfg.Session.CancelPolicy),
		DegradedPolicy: usecase.DegradedPolicy(cfg.Session.DegradedPolicy),
		TickInterval:   time.Second,
	}, usecase.ControllerDeps{
		Probe:      probe,
		Surface:    surface,
		Clock:      clock,
		Notifier:   notices,
		Billing:    billing,
		Sink:       persister,
		Metrics:    recorder,
		Essentials: essentials,
		Logger:     logger.Named("controller"),
	})

	if err := restoreOrSeed(ctx, controller, store, cfg, logger); err != nil {
		controller.Close()
		_ = store.Close()
		return nil, err
	}

	monitor := usecase.NewMonitor(usecase.MonitorConfig{ProbeInterval: cfg.Monitor.ProbeInterval},
		controller, surface, probe, clock, logger.Named("monitor"))

	maxMinutes := cfg.Session.MaxMinutes
	trigger := schedule.NewTrigger(controller.Schedule, controller.ScheduleMark,
		func(minutes int, occurrence string) error {
			_, err := controller.StartScheduled(context.Background(), min(minutes, maxMinutes), occurrence)
			return err
		}, logger.Named("schedule"))

	handler := api.NewServer(controller, notices, recorder.Handler(), logger.Named("api"))
	var server *http.Server
	if !opts.DisableServer {
		server = handler.HTTPServer(cfg.Server.Addr())
	}

	engineCfg := DefaultEngineConfig()
	engineCfg.ScheduleInterval = cfg.Schedule.CheckInterval
	engineCfg.DailyRefill = cfg.Budget.RefillDaily()

	engine := NewEngine(engineCfg, EngineDeps{
		Controller: controller,
		Monitor:    monitor,
		Source:     source,
		Persister:  persister,
		Store:      store,
		Registry:   infra.NewFileRegistry(paths.RegistryFile, pm),
		Trigger:    trigger,
		Server:     server,
		Clock:      clock,
		Logger:     logger.Named("engine"),
	}, domain.Daemon{
		PID:         os.Getpid(),
		StartedAt:   clock.Now(),
		AppVersion:  opts.Version,
		ControlAddr: cfg.Server.Addr(),
	})

	return &Runtime{
		Engine:     engine,
		Controller: controller,
		Notices:    notices,
		Metrics:    recorder,
		Store:      store,
		Handler:    handler,
	}, nil
}

// OpenStore opens the snapshot store for backend.
func OpenStore(backend string, paths infra.DataPaths) (domain.StateStore, error) {
	switch backend {
	case config.BackendFile:
		store, err := infra.NewFileStore(paths.StateFile)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendEncrypted:
		key, err := infra.EnsureKey(infra.SelectKeyProvider(paths.DataDir))
		if err != nil {
			return nil, fmt.Errorf("failed to load store key: %w", err)
		}
		store, err := infra.NewEncryptedStore(paths.StateDB, key)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// restoreOrSeed loads the persisted snapshot, or applies the configured
// whitelist and schedule on first run.
func restoreOrSeed(ctx context.Context, c *usecase.Controller, store domain.StateStore, cfg *config.Config, logger *zap.Logger) error {
	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if snap != nil {
		c.Restore(snap)
		return nil
	}

	logger.Info("no saved state, seeding from config")
	if err := c.SetWhitelist(cfg.Whitelist); err != nil {
		return err
	}
	win, err := schedule.ParseWindow(cfg.Schedule.Start, cfg.Schedule.End)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	win.Enabled = cfg.Schedule.Enabled
	return c.SetSchedule(win)
}

// SpawnDetached starts "<binary> run" as a background process detached from
// the terminal. Extra args are passed through.
func SpawnDetached(binary string, args ...string) (int, error) {
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, err
		}
		binary = exe
	}

	cmd := exec.Command(binary, append([]string{"run"}, args...)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// The child is on its own; don't leave a zombie entry behind.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}
