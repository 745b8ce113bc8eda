// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// FakeDesktop simulates a desktop session: a frontmost app reported by the
// foreground command, running processes that can be killed, and binaries
// that resolve on PATH. It satisfies infra.CommandRunner and the daemon's
// process manager.
type FakeDesktop struct {
	mu         sync.Mutex
	foreground string
	queryFails bool
	missing    map[string]bool
	procs      map[int]string
	nextPID    int
	killed     []string
	ran        []string
}

// NewFakeDesktop creates a desktop with nothing running.
func NewFakeDesktop() *FakeDesktop {
	return &FakeDesktop{
		missing: make(map[string]bool),
		procs:   make(map[int]string),
		nextPID: 1000,
	}
}

// Launch starts a fake process and brings it to the front.
func (d *FakeDesktop) Launch(app string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextPID++
	d.procs[d.nextPID] = app
	d.foreground = app
	return d.nextPID
}

// SetForeground changes the frontmost app without starting a process.
func (d *FakeDesktop) SetForeground(app string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.foreground = app
}

// FailQueries makes the foreground command fail until called with false.
func (d *FakeDesktop) FailQueries(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queryFails = fail
}

// RemoveBinary makes LookPath fail for name.
func (d *FakeDesktop) RemoveBinary(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.missing[name] = true
}

// Killed returns the names of killed processes in kill order.
func (d *FakeDesktop) Killed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.killed...)
}

// Ran returns every command passed to Run, joined with spaces.
func (d *FakeDesktop) Ran() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ran...)
}

// Running reports whether any process named app is alive.
func (d *FakeDesktop) Running(app string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.procs {
		if strings.EqualFold(name, app) {
			return true
		}
	}
	return false
}

func (d *FakeDesktop) Run(_ context.Context, name string, args ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ran = append(d.ran, strings.Join(append([]string{name}, args...), " "))
	return nil
}

func (d *FakeDesktop) Output(_ context.Context, name string, _ ...string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queryFails {
		return nil, errors.New("foreground query failed")
	}
	return []byte(d.foreground + "\n"), nil
}

func (d *FakeDesktop) LookPath(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.missing[name] {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/local/bin/" + name, nil
}

func (d *FakeDesktop) FindByName(pattern string) ([]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var pids []int
	for pid, name := range d.procs {
		if strings.EqualFold(name, pattern) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (d *FakeDesktop) Kill(pid int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, ok := d.procs[pid]
	if !ok {
		return errors.New("no such process")
	}
	delete(d.procs, pid)
	d.killed = append(d.killed, name)
	return nil
}

func (d *FakeDesktop) IsRunning(pid int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.procs[pid]
	return ok
}

func (d *FakeDesktop) GetCurrentPID() int {
	return 1
}

func (d *FakeDesktop) NameOf(pid int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, ok := d.procs[pid]
	if !ok {
		return "", errors.New("no such process")
	}
	return name, nil
}
