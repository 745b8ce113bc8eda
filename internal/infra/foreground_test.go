package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

func newTestSource(runner *mockCommandRunner, names PIDNamer, mutate ...func(*ForegroundConfig)) *CommandForegroundSource {
	cfg := ForegroundConfig{
		Command:          []string{"frontmost"},
		PollInterval:     time.Second,
		QueueSize:        8,
		FailureThreshold: 3,
		ResendEvery:      3,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewCommandForegroundSource(cfg, runner, names, manualClock{now: time.Unix(1700000000, 0)}, zap.NewNop())
}

func drain(ch <-chan domain.ForegroundEvent) []domain.ForegroundEvent {
	var out []domain.ForegroundEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestDefaultForegroundCommand(t *testing.T) {
	assert.Equal(t, "osascript", DefaultForegroundCommand("darwin")[0])
	assert.Equal(t, "xdotool", DefaultForegroundCommand("linux")[0])
	assert.Nil(t, DefaultForegroundCommand("windows"))
}

func TestForegroundSource_EmitsOnChangeAndResends(t *testing.T) {
	runner := &mockCommandRunner{}
	src := newTestSource(runner, nil)
	ctx := context.Background()

	runner.SetOutput("Safari")
	src.Poll(ctx) // new app
	src.Poll(ctx) // same
	src.Poll(ctx) // same
	src.Poll(ctx) // resend after 3 polls
	runner.SetOutput("Steam")
	src.Poll(ctx)

	events := drain(src.Events())
	require.Len(t, events, 3)
	assert.Equal(t, "Safari", events[0].PackageID)
	assert.Equal(t, "Safari", events[1].PackageID)
	assert.Equal(t, "Steam", events[2].PackageID)
	assert.Equal(t, []string{"frontmost"}, runner.Calls()[:1])
}

func TestForegroundSource_ResolvesPIDs(t *testing.T) {
	runner := &mockCommandRunner{}
	pm := newMockProcessManager()
	pm.names[4321] = "firefox"
	src := newTestSource(runner, pm)

	runner.SetOutput("4321")
	src.Poll(context.Background())
	runner.SetOutput("9999") // vanished pid
	src.Poll(context.Background())

	events := drain(src.Events())
	require.Len(t, events, 1)
	assert.Equal(t, "firefox", events[0].PackageID)
}

func TestForegroundSource_RepeatedFailuresDegrade(t *testing.T) {
	runner := &mockCommandRunner{}
	src := newTestSource(runner, nil)
	ctx := context.Background()

	runner.SetOutputErr(errors.New("cannot open display"))
	src.Poll(ctx)
	src.Poll(ctx)
	assert.True(t, src.Healthy())
	assert.Empty(t, drain(src.Events()))

	src.Poll(ctx)
	src.Poll(ctx)
	assert.False(t, src.Healthy())

	events := drain(src.Events())
	require.Len(t, events, 1, "degraded event is emitted once")
	assert.ErrorIs(t, events[0].Err, domain.ErrMonitoringDegraded)

	runner.SetOutputErr(nil)
	runner.SetOutput("Finder")
	src.Poll(ctx)
	assert.True(t, src.Healthy())
}

func TestForegroundSource_DegradedEventRetriedAfterDrop(t *testing.T) {
	runner := &mockCommandRunner{}
	src := newTestSource(runner, nil, func(c *ForegroundConfig) { c.QueueSize = 1 })
	ctx := context.Background()

	runner.SetOutput("Finder")
	src.Poll(ctx)

	runner.SetOutputErr(errors.New("cannot open display"))
	for i := 0; i < 3; i++ {
		src.Poll(ctx)
	}
	assert.Equal(t, int64(1), src.Dropped(), "queue was full at the threshold")

	events := drain(src.Events())
	require.Len(t, events, 1)
	assert.Equal(t, "Finder", events[0].PackageID)

	src.Poll(ctx)
	events = drain(src.Events())
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, domain.ErrMonitoringDegraded)

	src.Poll(ctx)
	assert.Empty(t, drain(src.Events()), "delivered once")

	// Recovery re-arms the event for the next outage.
	runner.SetOutputErr(nil)
	src.Poll(ctx)
	drain(src.Events())
	runner.SetOutputErr(errors.New("cannot open display"))
	for i := 0; i < 3; i++ {
		src.Poll(ctx)
	}
	events = drain(src.Events())
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, domain.ErrMonitoringDegraded)
}

func TestForegroundSource_DropsWhenFull(t *testing.T) {
	runner := &mockCommandRunner{}
	src := newTestSource(runner, nil, func(c *ForegroundConfig) { c.QueueSize = 1 })
	drops := 0
	src.OnDrop(func() { drops++ })

	runner.SetOutput("a", "b", "c")
	for i := 0; i < 3; i++ {
		src.Poll(context.Background())
	}

	assert.Equal(t, int64(2), src.Dropped())
	assert.Equal(t, 2, drops)
	events := drain(src.Events())
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].PackageID)
}

func TestForegroundSource_RunWithoutCommandClosesChannel(t *testing.T) {
	src := newTestSource(&mockCommandRunner{}, nil, func(c *ForegroundConfig) { c.Command = nil })

	err := src.Run(context.Background())

	assert.ErrorIs(t, err, domain.ErrMonitoringDegraded)
	_, open := <-src.Events()
	assert.False(t, open)
	assert.False(t, src.Healthy())
}

func TestForegroundSource_RunStopsOnCancelWithoutClosing(t *testing.T) {
	src := newTestSource(&mockCommandRunner{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, src.Run(ctx), context.Canceled)

	select {
	case _, open := <-src.Events():
		t.Fatalf("channel should stay open and empty, got open=%v", open)
	default:
	}
}
