package infra

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

const surfaceCommandTimeout = 10 * time.Second

// SurfaceConfig holds the optional commands behind the enforcement surface.
// Arguments may contain {minutes} and {app} placeholders.
type SurfaceConfig struct {
	LockCommand   []string
	UnlockCommand []string
	BlockCommand  []string
}

// ProcessSurface implements domain.EnforcementSurface for a desktop host.
// Blocking kills every process of the offending app; lock and unlock run
// the configured commands. All actions run in the background.
type ProcessSurface struct {
	cfg    SurfaceConfig
	pm     domain.ProcessManager
	runner CommandRunner
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewProcessSurface creates the surface.
func NewProcessSurface(cfg SurfaceConfig, pm domain.ProcessManager, runner CommandRunner, logger *zap.Logger) *ProcessSurface {
	return &ProcessSurface{
		cfg:    cfg,
		pm:     pm,
		runner: runner,
		logger: logger,
	}
}

func (s *ProcessSurface) PresentLockSurface(minutes int) {
	s.logger.Info("lock surface presented", zap.Int("minutes", minutes))
	s.runAsync(s.cfg.LockCommand, map[string]string{"{minutes}": strconv.Itoa(minutes)})
}

func (s *ProcessSurface) DismissLockSurface() {
	s.logger.Info("lock surface dismissed")
	s.runAsync(s.cfg.UnlockCommand, nil)
}

func (s *ProcessSurface) BringAppToForegroundBlockScreen(packageID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.killApp(packageID)
	}()
	s.runAsync(s.cfg.BlockCommand, map[string]string{"{app}": packageID})
}

// killApp terminates all processes matching packageID.
func (s *ProcessSurface) killApp(packageID string) {
	pids, err := s.pm.FindByName(packageID)
	if err != nil {
		s.logger.Warn("failed to find processes",
			zap.String("app", packageID),
			zap.Error(err))
		return
	}

	self := s.pm.GetCurrentPID()
	for _, pid := range pids {
		if pid == self {
			continue
		}
		if err := s.pm.Kill(pid); err != nil {
			s.logger.Warn("failed to kill process",
				zap.Int("pid", pid),
				zap.Error(err))
			continue
		}
		s.logger.Info("killed process",
			zap.String("app", packageID),
			zap.Int("pid", pid))
	}
}

func (s *ProcessSurface) runAsync(cmd []string, vars map[string]string) {
	if len(cmd) == 0 {
		return
	}
	args := make([]string, len(cmd)-1)
	for i, a := range cmd[1:] {
		for k, v := range vars {
			a = strings.ReplaceAll(a, k, v)
		}
		args[i] = a
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), surfaceCommandTimeout)
		defer cancel()
		if err := s.runner.Run(ctx, cmd[0], args...); err != nil {
			s.logger.Warn("surface command failed",
				zap.String("command", cmd[0]),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all background actions have finished.
func (s *ProcessSurface) Wait() {
	s.wg.Wait()
}

// Ensure ProcessSurface implements domain.EnforcementSurface.
var _ domain.EnforcementSurface = (*ProcessSurface)(nil)
