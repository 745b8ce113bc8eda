package infra

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	mu          sync.Mutex
	runningPIDs map[int]bool
	byName      map[string][]int
	names       map[int]string
	killedPIDs  []int
	findErr     error
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		byName:      make(map[string][]int),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.byName[pattern], nil
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.names[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return name, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningPIDs[pid] = running
}

func (m *mockProcessManager) Killed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.killedPIDs...)
}

// mockCommandRunner records commands and returns scripted output
type mockCommandRunner struct {
	mu       sync.Mutex
	calls    []string
	outputs  []string
	outErr   error
	runErr   error
	missing  map[string]bool
	outCalls int
}

func (m *mockCommandRunner) Run(_ context.Context, name string, args ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, strings.Join(append([]string{name}, args...), " "))
	return m.runErr
}

func (m *mockCommandRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, strings.Join(append([]string{name}, args...), " "))
	if m.outErr != nil {
		return nil, m.outErr
	}
	if len(m.outputs) == 0 {
		return nil, nil
	}
	out := m.outputs[m.outCalls%len(m.outputs)]
	m.outCalls++
	return []byte(out + "\n"), nil
}

func (m *mockCommandRunner) LookPath(name string) (string, error) {
	if m.missing[name] {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + name, nil
}

func (m *mockCommandRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockCommandRunner) SetOutput(outputs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs = outputs
	m.outCalls = 0
}

func (m *mockCommandRunner) SetOutputErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outErr = err
}

// manualClock hands out tickers that never fire on their own
type manualClock struct {
	now time.Time
}

func (c manualClock) Now() time.Time { return c.now }

func (c manualClock) NewTicker(time.Duration) domain.Ticker {
	return manualTicker{ch: make(chan time.Time)}
}

type manualTicker struct {
	ch chan time.Time
}

func (t manualTicker) C() <-chan time.Time { return t.ch }
func (t manualTicker) Stop()               {}

func sampleSnapshot() domain.Snapshot {
	started := time.Date(2024, 5, 10, 21, 0, 0, 0, time.UTC)
	return domain.Snapshot{
		IsActive: true,
		Session: &domain.Session{
			ID:               "2b1f0c43-7d0e-4ad7-9f0a-3a1c2d4e5f60",
			StartedAt:        started,
			PlannedSeconds:   1800,
			RemainingSeconds: 1200,
			State:            domain.StateActive,
		},
		EmergencyUnlockCount: 2,
		EmergencyUnlockMax:   3,
		IsPremiumUnlocked:    false,
		Whitelist:            []string{"calendar", "maps"},
		Schedule:             domain.NewScheduleWindow(domain.TimeOfDay{Hour: 22}, domain.TimeOfDay{Hour: 6}),
		History: []domain.LockSession{
			{Timestamp: started.Add(-24 * time.Hour), DurationMinutes: 30, Outcome: domain.OutcomeCompleted},
			{Timestamp: started.Add(-2 * time.Hour), DurationMinutes: 45, Outcome: domain.OutcomeEmergency},
		},
		LastRefill: "2024-05-10",
		SavedAt:    started.Add(10 * time.Minute),
	}
}
