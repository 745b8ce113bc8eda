// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import "time"

// SessionState is the controller-level state of a detox session.
// Locked is a presentation detail folded into StateActive.
type SessionState string

const (
	StateInactive   SessionState = "inactive"
	StateActive     SessionState = "active"
	StateCompleting SessionState = "completing"
)

// Outcome records how a session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeEmergency Outcome = "emergency"
	OutcomePremium   Outcome = "premium"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeDegraded  Outcome = "degraded"
)

// Session is one live detox period. Only the session controller mutates it;
// everyone else receives copies.
type Session struct {
	ID                   string       `json:"id"`
	StartedAt            time.Time    `json:"started_at"`
	PlannedSeconds       int          `json:"planned_seconds"`
	RemainingSeconds     int          `json:"remaining_seconds"`
	State                SessionState `json:"state"`
	EmergencyUnlocksUsed int          `json:"emergency_unlocks_used"`
	Paused               bool         `json:"paused,omitempty"`
}

// PlannedMinutes returns the committed duration in whole minutes.
func (s Session) PlannedMinutes() int {
	return s.PlannedSeconds / 60
}

// RemainingMinutes rounds the remaining time up so a lock surface never shows 0
// while seconds are still left.
func (s Session) RemainingMinutes() int {
	return (s.RemainingSeconds + 59) / 60
}

// LockSession is an immutable history record of a finished session.
type LockSession struct {
	Timestamp       time.Time `json:"timestamp"`
	DurationMinutes int       `json:"duration_minutes"`
	Outcome         Outcome   `json:"outcome,omitempty"`
}

// Capability names a platform permission the engine needs for enforcement.
type Capability string

const (
	CapabilityForegroundMonitoring Capability = "foreground-monitoring"
	CapabilityDeviceLock           Capability = "device-lock"
)

// Decision is the foreground monitor's verdict for one app.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
)

// ForegroundEvent is a single foreground-app change reported by the platform.
// A non-nil Err means the source lost its monitoring capability.
type ForegroundEvent struct {
	PackageID string
	At        time.Time
	Err       error
}

// NoticeKind classifies notices sent to the presentation layer.
type NoticeKind string

const (
	NoticeSessionStarted     NoticeKind = "session-started"
	NoticeSessionCompleted   NoticeKind = "session-completed"
	NoticeBudgetExhausted    NoticeKind = "budget-exhausted"
	NoticeMonitoringDegraded NoticeKind = "monitoring-degraded"
	NoticeAppBlocked         NoticeKind = "app-blocked"
	NoticePurchaseRequested  NoticeKind = "purchase-requested"
	NoticePremiumChanged     NoticeKind = "premium-changed"
)

// Notice is a fire-and-forget message for whoever renders the engine state.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Snapshot is everything that must survive a restart.
type Snapshot struct {
	IsActive             bool           `json:"is_active"`
	Session              *Session       `json:"session,omitempty"`
	EmergencyUnlockCount int            `json:"emergency_unlock_count"`
	EmergencyUnlockMax   int            `json:"emergency_unlock_max"`
	IsPremiumUnlocked    bool           `json:"is_premium_unlocked"`
	Whitelist            []string       `json:"whitelist"`
	Schedule             ScheduleWindow `json:"schedule"`
	History              []LockSession  `json:"history"`
	LastRefill           string         `json:"last_refill,omitempty"` // local date, 2006-01-02
	ScheduleMark         ScheduleMark   `json:"schedule_mark"`
	SavedAt              time.Time      `json:"saved_at"`
}

// ScheduleMark records the last schedule window occurrence that started a
// session and how that session ended. Outcome is empty while it runs.
type ScheduleMark struct {
	Occurrence string  `json:"occurrence,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
	Outcome    Outcome `json:"outcome,omitempty"`
}

// Daemon represents the running detox daemon process.
type Daemon struct {
	PID         int
	StartedAt   time.Time
	AppVersion  string
	ControlAddr string // host:port of the control API
}

// RegistryEntry is the persisted record used by the CLI to find the daemon.
type RegistryEntry struct {
	Version       int    `json:"version"`
	PID           int    `json:"pid"`
	ControlAddr   string `json:"control_addr"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	AppVersion    string `json:"app_version,omitempty"`
}
