package infra

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// HealthReporter reports whether a running component is still working.
type HealthReporter interface {
	Healthy() bool
}

// CommandProbe implements domain.CapabilityProbe for a desktop host.
// Foreground monitoring is granted when the frontmost-app command resolves
// and the source (if attached) is healthy. Device lock is granted when no
// lock command is configured (process-kill enforcement) or the configured
// one resolves.
type CommandProbe struct {
	runner            CommandRunner
	foregroundCommand []string
	lockCommand       []string
	source            HealthReporter
	logger            *zap.Logger
}

// NewCommandProbe creates a probe. source may be nil.
func NewCommandProbe(runner CommandRunner, foregroundCommand, lockCommand []string, source HealthReporter, logger *zap.Logger) *CommandProbe {
	return &CommandProbe{
		runner:            runner,
		foregroundCommand: foregroundCommand,
		lockCommand:       lockCommand,
		source:            source,
		logger:            logger,
	}
}

func (p *CommandProbe) IsForegroundMonitoringGranted() bool {
	if !p.resolves(p.foregroundCommand) {
		return false
	}
	if p.source != nil && !p.source.Healthy() {
		return false
	}
	return true
}

func (p *CommandProbe) IsDeviceLockGranted() bool {
	if len(p.lockCommand) == 0 {
		return true
	}
	return p.resolves(p.lockCommand)
}

func (p *CommandProbe) resolves(cmd []string) bool {
	if len(cmd) == 0 {
		return false
	}
	if _, err := p.runner.LookPath(cmd[0]); err != nil {
		p.logger.Debug("command not found", zap.String("command", cmd[0]), zap.Error(err))
		return false
	}
	return true
}

// Ensure CommandProbe implements domain.CapabilityProbe.
var _ domain.CapabilityProbe = (*CommandProbe)(nil)
