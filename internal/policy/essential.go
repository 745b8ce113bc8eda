package policy

import "runtime"

// LockSurfacePolicy keeps the lock surface itself reachable.
type LockSurfacePolicy struct {
	binary string
}

// NewLockSurfacePolicy creates the policy for the given daemon binary name.
func NewLockSurfacePolicy(binary string) *LockSurfacePolicy {
	return &LockSurfacePolicy{binary: binary}
}

func (p *LockSurfacePolicy) ID() string {
	return "lock-surface"
}

func (p *LockSurfacePolicy) Name() string {
	return "Lock screen"
}

func (p *LockSurfacePolicy) ProcessPatterns() []string {
	return []string{p.binary, "com.detox.lock"}
}

// DialerPolicy keeps calling apps available for emergencies.
type DialerPolicy struct {
	goos string
}

// NewDialerPolicy creates the dialer policy for the running platform.
func NewDialerPolicy() *DialerPolicy {
	return &DialerPolicy{goos: runtime.GOOS}
}

// NewDialerPolicyForOS creates a dialer policy for a specific GOOS (for testing).
func NewDialerPolicyForOS(goos string) *DialerPolicy {
	return &DialerPolicy{goos: goos}
}

func (p *DialerPolicy) ID() string {
	return "dialer"
}

func (p *DialerPolicy) Name() string {
	return "Phone"
}

// ProcessPatterns returns the calling apps known per platform.
func (p *DialerPolicy) ProcessPatterns() []string {
	patterns := []string{"com.android.dialer", "com.google.android.dialer"}
	switch p.goos {
	case "darwin":
		patterns = append(patterns, "FaceTime", "com.apple.FaceTime")
	case "linux":
		patterns = append(patterns, "gnome-calls")
	}
	return patterns
}

// SystemShellPolicy covers processes the desktop cannot run without.
type SystemShellPolicy struct {
	goos string
}

// NewSystemShellPolicy creates the system shell policy for the running platform.
func NewSystemShellPolicy() *SystemShellPolicy {
	return &SystemShellPolicy{goos: runtime.GOOS}
}

// NewSystemShellPolicyForOS creates a system shell policy for a specific GOOS (for testing).
func NewSystemShellPolicyForOS(goos string) *SystemShellPolicy {
	return &SystemShellPolicy{goos: goos}
}

func (p *SystemShellPolicy) ID() string {
	return "system-shell"
}

func (p *SystemShellPolicy) Name() string {
	return "System"
}

func (p *SystemShellPolicy) ProcessPatterns() []string {
	switch p.goos {
	case "darwin":
		return []string{"loginwindow", "Dock", "Finder", "WindowServer", "SystemUIServer"}
	case "linux":
		return []string{"systemd", "Xorg", "Xwayland", "gnome-shell", "plasmashell"}
	case "windows":
		return []string{"explorer.exe", "winlogon.exe", "dwm.exe"}
	}
	return nil
}

// Ensure essential policies implement AppPolicy.
var (
	_ AppPolicy = (*LockSurfacePolicy)(nil)
	_ AppPolicy = (*DialerPolicy)(nil)
	_ AppPolicy = (*SystemShellPolicy)(nil)
)
