package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// fakeProbe implements domain.CapabilityProbe for testing
type fakeProbe struct {
	monitoring atomic.Bool
	lock       atomic.Bool
}

func grantedProbe() *fakeProbe {
	p := &fakeProbe{}
	p.monitoring.Store(true)
	p.lock.Store(true)
	return p
}

func (p *fakeProbe) IsForegroundMonitoringGranted() bool { return p.monitoring.Load() }
func (p *fakeProbe) IsDeviceLockGranted() bool           { return p.lock.Load() }

// fakeSurface records enforcement calls
type fakeSurface struct {
	mu        sync.Mutex
	presented []int
	dismissed int
	blocked   []string
}

func (s *fakeSurface) PresentLockSurface(minutes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presented = append(s.presented, minutes)
}

func (s *fakeSurface) DismissLockSurface() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dismissed++
}

func (s *fakeSurface) BringAppToForegroundBlockScreen(pkg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = append(s.blocked, pkg)
}

func (s *fakeSurface) Dismissed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dismissed
}

func (s *fakeSurface) Presented() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.presented...)
}

func (s *fakeSurface) Blocked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.blocked...)
}

// fakeTicker is fired manually by the test
type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

// fire delivers one tick, giving up after a short wait.
func (t *fakeTicker) fire() bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

// fakeClock implements domain.Clock with a settable time and manual tickers
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 10, 8, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) NewTicker(time.Duration) domain.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) Latest() *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

func (c *fakeClock) TickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// fakeNotifier records notices
type fakeNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (n *fakeNotifier) Notify(notice domain.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *fakeNotifier) Count(kind domain.NoticeKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, x := range n.notices {
		if x.Kind == kind {
			count++
		}
	}
	return count
}

// fakeSink keeps every submitted snapshot
type fakeSink struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

func (s *fakeSink) Submit(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
}

func (s *fakeSink) Last() (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) == 0 {
		return domain.Snapshot{}, false
	}
	return s.snaps[len(s.snaps)-1], true
}

// fakeBilling counts purchase requests
type fakeBilling struct {
	requests atomic.Int32
}

func (b *fakeBilling) RequestPurchaseFlow() { b.requests.Add(1) }
