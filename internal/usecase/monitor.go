package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/policy"
)

// AppFilter answers whether an app may stay in the foreground.
type AppFilter interface {
	Allows(packageID string) bool
}

// Decide is the monitor's pure decision: outside an active session every
// app is allowed; inside one only filtered-in apps are.
func Decide(state domain.SessionState, allowed AppFilter, packageID string) domain.Decision {
	if state != domain.StateActive {
		return domain.DecisionAllow
	}
	if allowed != nil && allowed.Allows(packageID) {
		return domain.DecisionAllow
	}
	return domain.DecisionBlock
}

// SessionGate is the part of the controller the monitor talks to.
type SessionGate interface {
	EnforcementView() (domain.SessionState, policy.Allowed)
	MonitoringDegraded(reason string) StopResult
	MonitoringRestored()
	AppBlocked(packageID string)
}

// MonitorConfig holds foreground monitor settings.
type MonitorConfig struct {
	// ProbeInterval re-checks the monitoring capability; zero disables it.
	ProbeInterval time.Duration
}

// DefaultMonitorConfig returns the stock monitor settings.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{ProbeInterval: 5 * time.Second}
}

// Monitor is the single consumer of foreground events.
type Monitor struct {
	cfg      MonitorConfig
	gate     SessionGate
	surface  domain.EnforcementSurface
	probe    domain.CapabilityProbe
	clock    domain.Clock
	logger   *zap.Logger
	degraded bool
}

// NewMonitor creates a monitor. probe may be nil.
func NewMonitor(
	cfg MonitorConfig,
	gate SessionGate,
	surface domain.EnforcementSurface,
	probe domain.CapabilityProbe,
	clock domain.Clock,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		cfg:     cfg,
		gate:    gate,
		surface: surface,
		probe:   probe,
		clock:   clock,
		logger:  logger,
	}
}

// Run consumes events until ctx is done or the channel closes. A closed
// channel means the source is gone; that is reported as degraded monitoring
// and returned as ErrMonitoringDegraded.
func (m *Monitor) Run(ctx context.Context, events <-chan domain.ForegroundEvent) error {
	var probeC <-chan time.Time
	if m.probe != nil && m.cfg.ProbeInterval > 0 {
		t := m.clock.NewTicker(m.cfg.ProbeInterval)
		defer t.Stop()
		probeC = t.C()
	}

	m.logger.Info("foreground monitor started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("foreground monitor stopped")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.degrade("foreground event source closed")
				return fmt.Errorf("monitor: %w", domain.ErrMonitoringDegraded)
			}
			m.Handle(ev)

		case <-probeC:
			m.checkCapability()
		}
	}
}

// Handle processes one event and returns the decision taken.
func (m *Monitor) Handle(ev domain.ForegroundEvent) domain.Decision {
	if ev.Err != nil {
		m.degrade(ev.Err.Error())
		return domain.DecisionAllow
	}

	state, allowed := m.gate.EnforcementView()
	decision := Decide(state, allowed, ev.PackageID)
	if decision == domain.DecisionBlock {
		m.logger.Info("blocking app",
			zap.String("package", ev.PackageID))
		m.surface.BringAppToForegroundBlockScreen(ev.PackageID)
		m.gate.AppBlocked(ev.PackageID)
	}
	return decision
}

func (m *Monitor) checkCapability() {
	if m.probe.IsForegroundMonitoringGranted() {
		if m.degraded {
			m.degraded = false
			m.gate.MonitoringRestored()
		}
		return
	}
	m.degrade("foreground monitoring capability revoked")
}

func (m *Monitor) degrade(reason string) {
	m.degraded = true
	res := m.gate.MonitoringDegraded(reason)
	m.logger.Warn("monitoring degraded",
		zap.String("reason", reason),
		zap.Bool("session_stopped", res.Stopped))
}
