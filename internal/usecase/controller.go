// Package usecase contains application business logic: the session state
// machine and the foreground monitor that feeds it.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/budget"
	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/history"
	"github.com/eliteGoblin/focusd/detox/internal/policy"
	"github.com/eliteGoblin/focusd/detox/internal/selector"
)

// CancelPolicy decides what a manual cancel costs.
type CancelPolicy string

const (
	// CancelBudgeted consumes one emergency unlock; denied when exhausted.
	CancelBudgeted CancelPolicy = "budgeted"
	// CancelFree stops the session without touching the budget.
	CancelFree CancelPolicy = "free"
)

// DegradedPolicy decides what happens when monitoring is lost mid-session.
type DegradedPolicy string

const (
	DegradedUnlock     DegradedPolicy = "unlock"
	DegradedKeepLocked DegradedPolicy = "keep-locked"
)

// ControllerConfig holds session controller settings.
type ControllerConfig struct {
	MaxMinutes     int
	DefaultMinutes int
	BudgetMax      int
	CancelPolicy   CancelPolicy
	DegradedPolicy DegradedPolicy
	TickInterval   time.Duration
}

// DefaultControllerConfig returns the stock session settings.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxMinutes:     selector.DefaultMaxMinutes,
		DefaultMinutes: selector.DefaultMinutes,
		BudgetMax:      budget.DefaultMax,
		CancelPolicy:   CancelBudgeted,
		DegradedPolicy: DegradedUnlock,
		TickInterval:   time.Second,
	}
}

// SnapshotSink receives a snapshot after every state change. Submit must not block.
type SnapshotSink interface {
	Submit(snap domain.Snapshot)
}

// Metrics receives engine events for instrumentation.
type Metrics interface {
	SessionStarted(minutes int)
	SessionEnded(outcome domain.Outcome, plannedMinutes int)
	AppBlocked(packageID string)
	MonitoringDegraded()
	BudgetRemaining(n int)
}

// ControllerDeps are the collaborators of the controller. Probe, Surface and
// Clock are required; everything else may be nil.
type ControllerDeps struct {
	Probe      domain.CapabilityProbe
	Surface    domain.EnforcementSurface
	Clock      domain.Clock
	Notifier   domain.Notifier
	Billing    domain.BillingGateway
	Sink       SnapshotSink
	Metrics    Metrics
	Essentials *policy.Registry
	Logger     *zap.Logger
}

// StopResult describes the outcome of an unlock, cancel or degraded stop.
// NoOp is set when no session was active.
type StopResult struct {
	Stopped         bool           `json:"stopped"`
	NoOp            bool           `json:"no_op"`
	Outcome         domain.Outcome `json:"outcome,omitempty"`
	BudgetRemaining int            `json:"budget_remaining"`
}

// Status is an immutable view of the engine for presentation layers.
type Status struct {
	State              domain.SessionState   `json:"state"`
	Session            *domain.Session       `json:"session,omitempty"`
	RemainingMinutes   int                   `json:"remaining_minutes"`
	PreviewMinutes     int                   `json:"preview_minutes"`
	MaxMinutes         int                   `json:"max_minutes"`
	Editing            bool                  `json:"editing"`
	EmergencyUnlocks   int                   `json:"emergency_unlocks"`
	EmergencyUnlockMax int                   `json:"emergency_unlock_max"`
	Premium            bool                  `json:"premium"`
	Whitelist          []string              `json:"whitelist"`
	Schedule           domain.ScheduleWindow `json:"schedule"`
	HistoryLen         int                   `json:"history_len"`
	MonitoringDegraded bool                  `json:"monitoring_degraded"`
}

// Controller is the session state machine. Every transition happens under
// one mutex; the countdown runs in a per-session timer goroutine identified
// by an epoch, so ticks from a cancelled timer are discarded.
type Controller struct {
	mu sync.Mutex

	cfg        ControllerConfig
	probe      domain.CapabilityProbe
	surface    domain.EnforcementSurface
	clock      domain.Clock
	notifier   domain.Notifier
	billing    domain.BillingGateway
	sink       SnapshotSink
	metrics    Metrics
	essentials *policy.Registry
	logger     *zap.Logger

	budget    *budget.Budget
	ledger    *history.Ledger
	session   *domain.Session
	whitelist policy.Whitelist
	schedule  domain.ScheduleWindow
	premium   bool
	preview   int
	editing   bool
	degraded  bool
	lastRoll  string
	mark      domain.ScheduleMark

	// stopPending counts unlock/cancel requests waiting for the mutex;
	// a tick that sees it non-zero yields.
	stopPending atomic.Int32
	epoch       uint64
	stopTimer   context.CancelFunc

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// NewController creates a controller in the Inactive state.
func NewController(cfg ControllerConfig, deps ControllerDeps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MaxMinutes <= 0 {
		cfg.MaxMinutes = selector.DefaultMaxMinutes
	}
	if cfg.DefaultMinutes <= 0 || cfg.DefaultMinutes > cfg.MaxMinutes {
		cfg.DefaultMinutes = min(selector.DefaultMinutes, cfg.MaxMinutes)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:        cfg,
		probe:      deps.Probe,
		surface:    deps.Surface,
		clock:      deps.Clock,
		notifier:   deps.Notifier,
		billing:    deps.Billing,
		sink:       deps.Sink,
		metrics:    deps.Metrics,
		essentials: deps.Essentials,
		logger:     logger,
		budget:     budget.New(cfg.BudgetMax),
		ledger:     history.NewLedger(),
		schedule:   defaultSchedule(),
		preview:    cfg.DefaultMinutes,
		runCtx:     ctx,
		runCancel:  cancel,
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	return c
}

// defaultSchedule is 09:00-18:00, disabled until configured.
func defaultSchedule() domain.ScheduleWindow {
	w := domain.NewScheduleWindow(domain.TimeOfDay{Hour: 9}, domain.TimeOfDay{Hour: 18})
	w.Enabled = false
	return w
}

// Close stops the countdown goroutine. The session itself is kept so a
// persisted snapshot can resume it.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelTimerLocked()
	c.mu.Unlock()
	c.runCancel()
	c.wg.Wait()
}

// Start begins a session of the given length.
func (c *Controller) Start(ctx context.Context, minutes int) (domain.Session, error) {
	return c.start(ctx, minutes, "")
}

// StartScheduled begins a session on behalf of the schedule window and
// records it against occurrence so its outcome survives restarts.
func (c *Controller) StartScheduled(ctx context.Context, minutes int, occurrence string) (domain.Session, error) {
	return c.start(ctx, minutes, occurrence)
}

func (c *Controller) start(ctx context.Context, minutes int, occurrence string) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}
	if minutes < 1 || minutes > c.cfg.MaxMinutes {
		return domain.Session{}, fmt.Errorf("%w: %d minutes (allowed 1-%d)",
			domain.ErrInvalidDuration, minutes, c.cfg.MaxMinutes)
	}

	c.mu.Lock()
	active := c.session != nil
	c.mu.Unlock()
	if active {
		return domain.Session{}, domain.ErrSessionActive
	}

	// Probes may shell out; keep them off the lock.
	if err := c.checkCapabilities(); err != nil {
		c.logger.Warn("session start refused", zap.Error(err))
		return domain.Session{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return domain.Session{}, domain.ErrSessionActive
	}

	now := c.clock.Now()
	c.session = &domain.Session{
		ID:               uuid.NewString(),
		StartedAt:        now,
		PlannedSeconds:   minutes * 60,
		RemainingSeconds: minutes * 60,
		State:            domain.StateActive,
	}
	c.degraded = false
	if occurrence != "" {
		c.mark = domain.ScheduleMark{Occurrence: occurrence, SessionID: c.session.ID}
	}

	c.surface.PresentLockSurface(minutes)
	if c.editing {
		c.session.Paused = true
	} else {
		c.startTimerLocked()
	}

	c.logger.Info("session started",
		zap.String("session_id", c.session.ID),
		zap.Int("minutes", minutes),
		zap.Bool("scheduled", occurrence != ""))
	c.notifyLocked(domain.NoticeSessionStarted, fmt.Sprintf("Detox started for %d minutes", minutes))
	c.metrics.SessionStarted(minutes)
	c.persistLocked()

	return *c.session, nil
}

func (c *Controller) checkCapabilities() error {
	var missing []domain.Capability
	if !c.probe.IsForegroundMonitoringGranted() {
		missing = append(missing, domain.CapabilityForegroundMonitoring)
	}
	if !c.probe.IsDeviceLockGranted() {
		missing = append(missing, domain.CapabilityDeviceLock)
	}
	if len(missing) > 0 {
		return &domain.CapabilityError{Missing: missing}
	}
	return nil
}

// tick applies one countdown step regardless of which timer is current.
// Only the per-session timer drives the countdown, through tickEpoch.
func (c *Controller) tick() bool {
	if c.stopPending.Load() > 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyTickLocked()
}

func (c *Controller) tickEpoch(epoch uint64) {
	if c.stopPending.Load() > 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return
	}
	c.applyTickLocked()
}

func (c *Controller) applyTickLocked() bool {
	s := c.session
	if s == nil || s.State != domain.StateActive || s.Paused {
		return false
	}
	if s.RemainingSeconds > 0 {
		s.RemainingSeconds--
	}
	if s.RemainingSeconds == 0 {
		c.completeLocked(domain.OutcomeCompleted)
		return true
	}
	if s.RemainingSeconds%60 == 0 {
		c.surface.PresentLockSurface(s.RemainingMinutes())
	}
	c.persistLocked()
	return true
}

// EmergencyUnlock ends the session by spending one unit of the budget.
func (c *Controller) EmergencyUnlock() (StopResult, error) {
	c.stopPending.Add(1)
	defer c.stopPending.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeLocked() {
		return StopResult{NoOp: true, BudgetRemaining: c.budget.Count()}, nil
	}

	granted, remaining := c.budget.Consume()
	if !granted {
		c.logger.Info("emergency unlock denied", zap.String("session_id", c.session.ID))
		c.notifyLocked(domain.NoticeBudgetExhausted, "No emergency unlocks left")
		return StopResult{BudgetRemaining: 0}, domain.ErrBudgetExhausted
	}

	c.session.EmergencyUnlocksUsed++
	c.metrics.BudgetRemaining(remaining)
	c.completeLocked(domain.OutcomeEmergency)
	return StopResult{Stopped: true, Outcome: domain.OutcomeEmergency, BudgetRemaining: remaining}, nil
}

// PremiumUnlock ends the session without touching the budget. It requires
// the premium flag.
func (c *Controller) PremiumUnlock() (StopResult, error) {
	c.stopPending.Add(1)
	defer c.stopPending.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeLocked() {
		return StopResult{NoOp: true, BudgetRemaining: c.budget.Count()}, nil
	}
	if !c.premium {
		return StopResult{BudgetRemaining: c.budget.Count()}, domain.ErrNotPremium
	}

	c.completeLocked(domain.OutcomePremium)
	return StopResult{Stopped: true, Outcome: domain.OutcomePremium, BudgetRemaining: c.budget.Count()}, nil
}

// Cancel is the manual stop. Under CancelBudgeted it costs one emergency unlock.
func (c *Controller) Cancel() (StopResult, error) {
	c.stopPending.Add(1)
	defer c.stopPending.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeLocked() {
		return StopResult{NoOp: true, BudgetRemaining: c.budget.Count()}, nil
	}

	remaining := c.budget.Count()
	if c.cfg.CancelPolicy != CancelFree {
		var granted bool
		granted, remaining = c.budget.Consume()
		if !granted {
			c.notifyLocked(domain.NoticeBudgetExhausted, "No emergency unlocks left to cancel the session")
			return StopResult{}, fmt.Errorf("%w: %w", domain.ErrCancelDenied, domain.ErrBudgetExhausted)
		}
		c.metrics.BudgetRemaining(remaining)
	}

	c.completeLocked(domain.OutcomeCancelled)
	return StopResult{Stopped: true, Outcome: domain.OutcomeCancelled, BudgetRemaining: remaining}, nil
}

// MonitoringDegraded reports that foreground monitoring is gone. The
// configured policy either ends the session or keeps it locked.
func (c *Controller) MonitoringDegraded(reason string) StopResult {
	c.stopPending.Add(1)
	defer c.stopPending.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeLocked() {
		return StopResult{NoOp: true, BudgetRemaining: c.budget.Count()}
	}
	if c.degraded {
		return StopResult{BudgetRemaining: c.budget.Count()}
	}
	c.degraded = true
	c.metrics.MonitoringDegraded()

	c.logger.Warn("foreground monitoring degraded",
		zap.String("session_id", c.session.ID),
		zap.String("reason", reason),
		zap.String("policy", string(c.cfg.DegradedPolicy)))

	if c.cfg.DegradedPolicy == DegradedKeepLocked {
		c.notifyLocked(domain.NoticeMonitoringDegraded,
			"App monitoring stopped; the session stays locked: "+reason)
		c.persistLocked()
		return StopResult{BudgetRemaining: c.budget.Count()}
	}

	c.notifyLocked(domain.NoticeMonitoringDegraded,
		"App monitoring stopped; the session was unlocked: "+reason)
	c.completeLocked(domain.OutcomeDegraded)
	return StopResult{Stopped: true, Outcome: domain.OutcomeDegraded, BudgetRemaining: c.budget.Count()}
}

// MonitoringRestored clears the degraded flag once events flow again.
func (c *Controller) MonitoringRestored() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		c.degraded = false
		c.logger.Info("foreground monitoring restored")
	}
}

func (c *Controller) activeLocked() bool {
	return c.session != nil && c.session.State == domain.StateActive
}

// completeLocked converts the live session into a history record and
// returns to Inactive.
func (c *Controller) completeLocked(outcome domain.Outcome) {
	s := c.session
	s.State = domain.StateCompleting
	c.cancelTimerLocked()

	rec := domain.LockSession{
		Timestamp:       s.StartedAt,
		DurationMinutes: s.PlannedMinutes(),
		Outcome:         outcome,
	}
	c.ledger.Append(rec)
	if c.mark.SessionID == s.ID {
		c.mark.Outcome = outcome
	}
	c.session = nil
	c.degraded = false

	c.surface.DismissLockSurface()

	c.logger.Info("session ended",
		zap.String("session_id", s.ID),
		zap.String("outcome", string(outcome)),
		zap.Int("planned_minutes", rec.DurationMinutes),
		zap.Int("remaining_seconds", s.RemainingSeconds))
	c.notifyLocked(domain.NoticeSessionCompleted,
		fmt.Sprintf("Detox session ended (%s)", outcome))
	c.metrics.SessionEnded(outcome, rec.DurationMinutes)
	c.persistLocked()
}

func (c *Controller) startTimerLocked() {
	c.cancelTimerLocked()
	epoch := c.epoch
	ctx, cancel := context.WithCancel(c.runCtx)
	c.stopTimer = cancel
	ticker := c.clock.NewTicker(c.cfg.TickInterval)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if ctx.Err() != nil {
					return
				}
				c.tickEpoch(epoch)
			}
		}
	}()
}

// cancelTimerLocked invalidates the running timer. Any tick it still
// delivers carries a stale epoch and is dropped.
func (c *Controller) cancelTimerLocked() {
	c.epoch++
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}

// BeginEditing pauses the countdown while the duration selector is in use.
func (c *Controller) BeginEditing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.editing = true
	if c.activeLocked() && !c.session.Paused {
		c.session.Paused = true
		c.cancelTimerLocked()
		c.logger.Debug("countdown paused for editing", zap.String("session_id", c.session.ID))
		c.persistLocked()
	}
}

// EndEditing resumes a countdown paused by BeginEditing.
func (c *Controller) EndEditing() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.editing = false
	if c.activeLocked() && c.session.Paused {
		c.session.Paused = false
		c.startTimerLocked()
		c.logger.Debug("countdown resumed", zap.String("session_id", c.session.ID))
		c.persistLocked()
	}
}

// Preview records the selector's committed value for the countdown display.
func (c *Controller) Preview(minutes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preview = max(0, min(minutes, c.cfg.MaxMinutes))
}

// SetPremium sets the premium flag either way.
func (c *Controller) SetPremium(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.premium == on {
		return
	}
	c.premium = on
	c.logger.Info("premium flag changed", zap.Bool("premium", on))
	c.notifyLocked(domain.NoticePremiumChanged, fmt.Sprintf("Premium unlock: %t", on))
	c.persistLocked()
}

// OnPurchaseCompleted is called by the billing layer after a successful purchase.
func (c *Controller) OnPurchaseCompleted() {
	c.SetPremium(true)
}

// RequestPurchaseFlow signals the billing layer to start a purchase.
func (c *Controller) RequestPurchaseFlow() {
	if c.billing != nil {
		c.billing.RequestPurchaseFlow()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyLocked(domain.NoticePurchaseRequested, "Purchase flow requested")
}

// SetWhitelist replaces the whitelist. Rejected while a session is active.
func (c *Controller) SetWhitelist(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return fmt.Errorf("set whitelist: %w", domain.ErrSessionActive)
	}
	c.whitelist = policy.NewWhitelist(ids...)
	c.persistLocked()
	return nil
}

// AddWhitelisted adds one app. It reports whether the app was new.
func (c *Controller) AddWhitelisted(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return false, fmt.Errorf("add %q to whitelist: %w", id, domain.ErrSessionActive)
	}
	added := c.whitelist.Add(id)
	if added {
		c.persistLocked()
	}
	return added, nil
}

// RemoveWhitelisted removes one app. It reports whether the app was present.
func (c *Controller) RemoveWhitelisted(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return false, fmt.Errorf("remove %q from whitelist: %w", id, domain.ErrSessionActive)
	}
	removed := c.whitelist.Remove(id)
	if removed {
		c.persistLocked()
	}
	return removed, nil
}

// Whitelist returns the whitelisted apps, sorted.
func (c *Controller) Whitelist() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.whitelist.List()
}

// SetSchedule replaces the schedule window. Rejected while a session is active.
func (c *Controller) SetSchedule(w domain.ScheduleWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return fmt.Errorf("set schedule: %w", domain.ErrSessionActive)
	}
	c.schedule = w
	c.logger.Info("schedule updated",
		zap.String("window", w.String()),
		zap.Bool("enabled", w.Enabled))
	c.persistLocked()
	return nil
}

// ScheduleMark returns the record of the last scheduled session.
func (c *Controller) ScheduleMark() domain.ScheduleMark {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mark
}

// Schedule returns the configured window.
func (c *Controller) Schedule() domain.ScheduleWindow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedule
}

// Rollover refills the emergency budget once per local day. It reports
// whether a refill happened.
func (c *Controller) Rollover(now time.Time) bool {
	day := now.Format("2006-01-02")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRoll == day {
		return false
	}
	first := c.lastRoll == ""
	c.lastRoll = day
	if first {
		// Nothing to roll over from; just anchor the day.
		c.persistLocked()
		return false
	}
	c.budget.Refill(c.budget.Max())
	c.metrics.BudgetRemaining(c.budget.Count())
	c.logger.Info("emergency budget refilled",
		zap.String("day", day),
		zap.Int("count", c.budget.Count()))
	c.persistLocked()
	return true
}

// EnforcementView returns what the foreground monitor needs to decide.
func (c *Controller) EnforcementView() (domain.SessionState, policy.Allowed) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := domain.StateInactive
	if c.session != nil {
		state = c.session.State
	}
	return state, policy.Allowed{Whitelist: c.whitelist.Clone(), Essentials: c.essentials}
}

// AppBlocked records a block decision made by the monitor.
func (c *Controller) AppBlocked(packageID string) {
	c.metrics.AppBlocked(packageID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyLocked(domain.NoticeAppBlocked, packageID+" is blocked during detox")
}

// Status returns a copy of the current engine state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:              domain.StateInactive,
		PreviewMinutes:     c.preview,
		MaxMinutes:         c.cfg.MaxMinutes,
		Editing:            c.editing,
		EmergencyUnlocks:   c.budget.Count(),
		EmergencyUnlockMax: c.budget.Max(),
		Premium:            c.premium,
		Whitelist:          c.whitelist.List(),
		Schedule:           c.schedule,
		HistoryLen:         c.ledger.Len(),
		MonitoringDegraded: c.degraded,
	}
	if c.session != nil {
		s := *c.session
		st.State = s.State
		st.Session = &s
		st.RemainingMinutes = s.RemainingMinutes()
	}
	return st
}

// History returns the finished sessions, oldest first.
func (c *Controller) History() []domain.LockSession {
	c.mu.Lock()
	l := c.ledger
	c.mu.Unlock()
	return l.Records()
}

// Summary aggregates the history ledger.
func (c *Controller) Summary() history.Summary {
	c.mu.Lock()
	l := c.ledger
	c.mu.Unlock()
	return l.Summarize()
}

// Snapshot returns the persistable state.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		IsActive:             c.session != nil,
		EmergencyUnlockCount: c.budget.Count(),
		EmergencyUnlockMax:   c.budget.Max(),
		IsPremiumUnlocked:    c.premium,
		Whitelist:            c.whitelist.List(),
		Schedule:             c.schedule,
		History:              c.ledger.Records(),
		LastRefill:           c.lastRoll,
		ScheduleMark:         c.mark,
		SavedAt:              c.clock.Now(),
	}
	if c.session != nil {
		s := *c.session
		snap.Session = &s
	}
	return snap
}

// Restore loads persisted state. It must be called before the first Start.
// A persisted active session resumes its countdown.
func (c *Controller) Restore(snap *domain.Snapshot) {
	if snap == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.budget.Refill(snap.EmergencyUnlockCount)
	c.premium = snap.IsPremiumUnlocked
	c.whitelist = policy.NewWhitelist(snap.Whitelist...)
	if snap.Schedule.Validate() == nil {
		c.schedule = snap.Schedule
	}
	c.ledger = history.NewLedgerFrom(snap.History)
	c.lastRoll = snap.LastRefill
	c.mark = snap.ScheduleMark

	c.logger.Info("state restored",
		zap.Bool("active", snap.IsActive),
		zap.Int("emergency_unlocks", c.budget.Count()),
		zap.Int("history", c.ledger.Len()))

	if !snap.IsActive || snap.Session == nil {
		return
	}

	s := *snap.Session
	s.State = domain.StateActive
	s.Paused = false
	s.RemainingSeconds = max(0, min(s.RemainingSeconds, s.PlannedSeconds))
	c.session = &s

	if s.RemainingSeconds == 0 {
		c.completeLocked(domain.OutcomeCompleted)
		return
	}
	c.surface.PresentLockSurface(s.RemainingMinutes())
	c.startTimerLocked()
	c.logger.Info("session resumed",
		zap.String("session_id", s.ID),
		zap.Int("remaining_seconds", s.RemainingSeconds))
}

func (c *Controller) notifyLocked(kind domain.NoticeKind, msg string) {
	c.notifier.Notify(domain.Notice{Kind: kind, Message: msg, At: c.clock.Now()})
}

func (c *Controller) persistLocked() {
	if c.sink != nil {
		c.sink.Submit(c.snapshotLocked())
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(domain.Notice) {}

type nopMetrics struct{}

func (nopMetrics) SessionStarted(int)               {}
func (nopMetrics) SessionEnded(domain.Outcome, int) {}
func (nopMetrics) AppBlocked(string)                {}
func (nopMetrics) MonitoringDegraded()              {}
func (nopMetrics) BudgetRemaining(int)              {}

// Ensure Controller can listen to the duration selector.
var _ selector.EditingListener = (*Controller)(nil)
