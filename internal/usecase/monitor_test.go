package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/policy"
)

func TestDecide(t *testing.T) {
	allowed := policy.Allowed{
		Whitelist:  policy.NewWhitelist("com.example.maps"),
		Essentials: policy.NewRegistryWithPolicies(policy.NewDialerPolicyForOS("android")),
	}

	tests := []struct {
		name  string
		state domain.SessionState
		pkg   string
		want  domain.Decision
	}{
		{"inactive allows anything", domain.StateInactive, "com.example.game", domain.DecisionAllow},
		{"completing allows", domain.StateCompleting, "com.example.game", domain.DecisionAllow},
		{"active whitelisted", domain.StateActive, "com.example.maps", domain.DecisionAllow},
		{"active essential", domain.StateActive, "com.android.dialer", domain.DecisionAllow},
		{"active blocked", domain.StateActive, "com.example.game", domain.DecisionBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.state, allowed, tt.pkg))
		})
	}

	assert.Equal(t, domain.DecisionBlock, Decide(domain.StateActive, nil, "anything"))
}

func newMonitorHarness(t *testing.T, mutate ...func(*ControllerConfig)) (*harness, *Monitor) {
	t.Helper()
	h := newHarness(t, mutate...)
	require.NoError(t, h.ctrl.SetWhitelist([]string{"com.example.maps"}))
	m := NewMonitor(MonitorConfig{ProbeInterval: time.Second}, h.ctrl, h.surface, h.probe, h.clock, zap.NewNop())
	return h, m
}

func TestMonitor_HandleBlocksOnlyDuringSession(t *testing.T) {
	h, m := newMonitorHarness(t)

	assert.Equal(t, domain.DecisionAllow, m.Handle(domain.ForegroundEvent{PackageID: "com.example.game"}))
	assert.Empty(t, h.surface.Blocked())

	h.start(t, 10)

	assert.Equal(t, domain.DecisionAllow, m.Handle(domain.ForegroundEvent{PackageID: "com.example.maps"}))
	assert.Equal(t, domain.DecisionAllow, m.Handle(domain.ForegroundEvent{PackageID: "detoxd"}))
	assert.Equal(t, domain.DecisionBlock, m.Handle(domain.ForegroundEvent{PackageID: "com.example.game"}))

	assert.Equal(t, []string{"com.example.game"}, h.surface.Blocked())
	assert.Equal(t, 1, h.notifier.Count(domain.NoticeAppBlocked))
}

func TestMonitor_EventErrorDegrades(t *testing.T) {
	h, m := newMonitorHarness(t)
	h.start(t, 10)

	m.Handle(domain.ForegroundEvent{Err: errors.New("usage access revoked")})

	assert.Equal(t, domain.StateInactive, h.ctrl.Status().State)
	assert.Equal(t, domain.OutcomeDegraded, h.ctrl.History()[0].Outcome)
}

func TestMonitor_RunClosedChannelDegrades(t *testing.T) {
	h, m := newMonitorHarness(t)
	h.start(t, 10)

	events := make(chan domain.ForegroundEvent, 4)
	events <- domain.ForegroundEvent{PackageID: "com.example.game"}
	close(events)

	err := m.Run(context.Background(), events)

	assert.ErrorIs(t, err, domain.ErrMonitoringDegraded)
	assert.Equal(t, []string{"com.example.game"}, h.surface.Blocked())
	assert.Equal(t, domain.StateInactive, h.ctrl.Status().State)
}

func TestMonitor_RunKeepLockedOnDegrade(t *testing.T) {
	h, m := newMonitorHarness(t, func(c *ControllerConfig) { c.DegradedPolicy = DegradedKeepLocked })
	h.start(t, 10)

	events := make(chan domain.ForegroundEvent)
	close(events)

	err := m.Run(context.Background(), events)

	assert.ErrorIs(t, err, domain.ErrMonitoringDegraded)
	st := h.ctrl.Status()
	assert.Equal(t, domain.StateActive, st.State)
	assert.True(t, st.MonitoringDegraded)
}

func TestMonitor_RunProbeRevocation(t *testing.T) {
	h, m := newMonitorHarness(t, func(c *ControllerConfig) { c.DegradedPolicy = DegradedKeepLocked })
	h.start(t, 10)
	tickersBefore := h.clock.TickerCount()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	events := make(chan domain.ForegroundEvent)
	go func() { done <- m.Run(ctx, events) }()

	require.Eventually(t, func() bool {
		return h.clock.TickerCount() > tickersBefore
	}, time.Second, 5*time.Millisecond)
	probeTicker := h.clock.Latest()

	h.probe.monitoring.Store(false)
	require.True(t, probeTicker.fire())
	require.Eventually(t, func() bool {
		return h.ctrl.Status().MonitoringDegraded
	}, time.Second, 5*time.Millisecond)

	h.probe.monitoring.Store(true)
	require.True(t, probeTicker.fire())
	require.Eventually(t, func() bool {
		return !h.ctrl.Status().MonitoringDegraded
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
