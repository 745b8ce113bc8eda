package domain

import (
	"context"
	"time"
)

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// CapabilityProbe answers point-in-time permission checks. No caching is implied.
type CapabilityProbe interface {
	IsForegroundMonitoringGranted() bool
	IsDeviceLockGranted() bool
}

// EnforcementSurface performs the platform side of blocking.
// All calls are fire-and-forget; the engine never inspects a result.
type EnforcementSurface interface {
	// PresentLockSurface shows the lock screen with the remaining minutes.
	PresentLockSurface(minutes int)

	// DismissLockSurface removes the lock screen.
	DismissLockSurface()

	// BringAppToForegroundBlockScreen pushes the user out of a blocked app.
	BringAppToForegroundBlockScreen(packageID string)
}

// Notifier delivers notices to the presentation layer.
type Notifier interface {
	Notify(n Notice)
}

// ForegroundSource produces foreground-app change events on a bounded channel.
// The channel is closed only when the source gives up for good; a canceled
// context leaves it open.
type ForegroundSource interface {
	// Events returns the receive side of the event queue.
	Events() <-chan ForegroundEvent

	// Run produces events until ctx is canceled.
	Run(ctx context.Context) error
}

// StateStore persists the engine snapshot. Last writer wins; a single
// writer is expected.
type StateStore interface {
	// Load returns the stored snapshot, or nil when nothing was saved yet.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap Snapshot) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// BillingGateway is the outbound signal to the external purchase flow.
type BillingGateway interface {
	RequestPurchaseFlow()
}

// Clock abstracts wall time and tickers so countdowns can be driven in tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the engine uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// DaemonRegistry lets CLI invocations discover the running daemon.
// Implementation: hidden JSON file next to the state store.
type DaemonRegistry interface {
	// Register saves the daemon's PID and control address.
	Register(daemon Daemon) error

	// UpdateHeartbeat updates timestamp for liveness check.
	UpdateHeartbeat() error

	// IsAlive checks if the registered daemon PID is running.
	IsAlive() (bool, error)

	// GetAll returns the registry entry, or nil when nothing is registered.
	GetAll() (*RegistryEntry, error)

	// Clear removes the registry file (for clean shutdown).
	Clear() error

	// GetRegistryPath returns the registry file path (for tests).
	GetRegistryPath() string
}

// KeyProvider abstracts the source of encryption keys.
// Phase 1: file-based key. Phase 2: server-generated key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
