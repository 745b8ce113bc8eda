package daemon

import (
	"context"
	"errors"
	"sync"
)

// stubRunner answers every foreground query with the same app and resolves
// every binary.
type stubRunner struct {
	mu         sync.Mutex
	foreground string
	missing    bool
}

func (r *stubRunner) Run(context.Context, string, ...string) error { return nil }

func (r *stubRunner) Output(context.Context, string, ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return []byte(r.foreground + "\n"), nil
}

func (r *stubRunner) LookPath(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missing {
		return "", errors.New("not found")
	}
	return "/usr/bin/" + name, nil
}

// stubProcesses never finds anything to kill.
type stubProcesses struct{}

func (stubProcesses) FindByName(string) ([]int, error) { return nil, nil }
func (stubProcesses) Kill(int) error                   { return nil }
func (stubProcesses) IsRunning(int) bool               { return true }
func (stubProcesses) GetCurrentPID() int               { return 1 }
func (stubProcesses) NameOf(int) (string, error)       { return "", errors.New("no such pid") }
