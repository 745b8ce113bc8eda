package infra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// ForegroundConfig holds settings for the command-based foreground source.
type ForegroundConfig struct {
	// Command prints the frontmost app name, bundle id or PID.
	Command          []string
	PollInterval     time.Duration
	QueueSize        int
	FailureThreshold int
	// ResendEvery re-emits an unchanged foreground app every N polls so a
	// session started over an open app still catches it.
	ResendEvery int
}

// DefaultForegroundCommand returns the stock frontmost-app query for goos.
func DefaultForegroundCommand(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"osascript", "-e",
			`tell application "System Events" to get name of first application process whose frontmost is true`}
	case "linux":
		return []string{"xdotool", "getactivewindow", "getwindowpid"}
	}
	return nil
}

// DefaultForegroundConfig returns the stock source settings for goos.
func DefaultForegroundConfig(goos string) ForegroundConfig {
	return ForegroundConfig{
		Command:          DefaultForegroundCommand(goos),
		PollInterval:     time.Second,
		QueueSize:        64,
		FailureThreshold: 3,
		ResendEvery:      5,
	}
}

// PIDNamer resolves a PID to a process name.
type PIDNamer interface {
	NameOf(pid int) (string, error)
}

// CommandForegroundSource implements domain.ForegroundSource by polling a
// frontmost-app command. Events go to a bounded channel; when it is full
// the event is dropped and counted.
type CommandForegroundSource struct {
	cfg    ForegroundConfig
	runner CommandRunner
	names  PIDNamer
	clock  domain.Clock
	logger *zap.Logger

	events   chan domain.ForegroundEvent
	dropped  atomic.Int64
	failures atomic.Int32
	onDrop   func()
	// degradedSent is set once the degraded event is queued; it is
	// retried on every failing poll until then.
	degradedSent atomic.Bool

	last      string
	sinceEmit int
}

// NewCommandForegroundSource creates a source. names may be nil when the
// command prints names rather than PIDs.
func NewCommandForegroundSource(
	cfg ForegroundConfig,
	runner CommandRunner,
	names PIDNamer,
	clock domain.Clock,
	logger *zap.Logger,
) *CommandForegroundSource {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &CommandForegroundSource{
		cfg:    cfg,
		runner: runner,
		names:  names,
		clock:  clock,
		logger: logger,
		events: make(chan domain.ForegroundEvent, cfg.QueueSize),
	}
}

// OnDrop registers a callback invoked for every dropped event.
func (s *CommandForegroundSource) OnDrop(fn func()) {
	s.onDrop = fn
}

// Events returns the receive side of the event queue.
func (s *CommandForegroundSource) Events() <-chan domain.ForegroundEvent {
	return s.events
}

// Dropped returns how many events were discarded on a full queue.
func (s *CommandForegroundSource) Dropped() int64 {
	return s.dropped.Load()
}

// Healthy reports whether the last polls succeeded.
func (s *CommandForegroundSource) Healthy() bool {
	return len(s.cfg.Command) > 0 && int(s.failures.Load()) < s.cfg.FailureThreshold
}

// Run polls until ctx is canceled. Without a command it closes the event
// channel at once, which the monitor treats as degraded monitoring.
func (s *CommandForegroundSource) Run(ctx context.Context) error {
	if len(s.cfg.Command) == 0 {
		close(s.events)
		return fmt.Errorf("no foreground command configured: %w", domain.ErrMonitoringDegraded)
	}

	ticker := s.clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info("foreground source started",
		zap.Strings("command", s.cfg.Command),
		zap.Duration("interval", s.cfg.PollInterval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.Poll(ctx)
		}
	}
}

// Poll runs the command once and emits an event when warranted.
func (s *CommandForegroundSource) Poll(ctx context.Context) {
	out, err := s.runner.Output(ctx, s.cfg.Command[0], s.cfg.Command[1:]...)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		n := s.failures.Add(1)
		s.logger.Debug("foreground query failed", zap.Int32("failures", n), zap.Error(err))
		if int(n) >= s.cfg.FailureThreshold && !s.degradedSent.Load() {
			if int(n) == s.cfg.FailureThreshold {
				s.logger.Warn("foreground query keeps failing", zap.Error(err))
			}
			sent := s.emit(domain.ForegroundEvent{
				At:  s.clock.Now(),
				Err: fmt.Errorf("foreground query failed %d times: %w", n, errors.Join(domain.ErrMonitoringDegraded, err)),
			})
			s.degradedSent.Store(sent)
		}
		return
	}
	if s.failures.Swap(0) >= int32(s.cfg.FailureThreshold) {
		s.logger.Info("foreground query recovered")
	}
	s.degradedSent.Store(false)

	id := s.resolve(strings.TrimSpace(string(out)))
	if id == "" {
		return
	}

	s.sinceEmit++
	if id == s.last && (s.cfg.ResendEvery <= 0 || s.sinceEmit < s.cfg.ResendEvery) {
		return
	}
	s.last = id
	s.sinceEmit = 0
	s.emit(domain.ForegroundEvent{PackageID: id, At: s.clock.Now()})
}

func (s *CommandForegroundSource) resolve(raw string) string {
	pid, err := strconv.Atoi(raw)
	if err != nil || s.names == nil {
		return raw
	}
	name, err := s.names.NameOf(pid)
	if err != nil {
		s.logger.Debug("foreground pid vanished", zap.Int("pid", pid), zap.Error(err))
		return ""
	}
	return name
}

func (s *CommandForegroundSource) emit(ev domain.ForegroundEvent) bool {
	select {
	case s.events <- ev:
		return true
	default:
		s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop()
		}
		return false
	}
}

// Ensure CommandForegroundSource implements domain.ForegroundSource.
var _ domain.ForegroundSource = (*CommandForegroundSource)(nil)
