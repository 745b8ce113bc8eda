package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCapabilityMissing means a required platform permission is not granted.
	ErrCapabilityMissing = errors.New("capability missing")

	// ErrBudgetExhausted means no emergency unlocks are left.
	ErrBudgetExhausted = errors.New("emergency unlock budget exhausted")

	// ErrMonitoringDegraded means the foreground event source is unavailable.
	ErrMonitoringDegraded = errors.New("foreground monitoring degraded")

	// ErrInvalidDuration rejects a zero or out-of-range session length.
	ErrInvalidDuration = errors.New("invalid session duration")

	// ErrSessionActive rejects operations that need an inactive engine.
	ErrSessionActive = errors.New("detox session is active")

	// ErrNotPremium rejects a premium unlock without the premium flag.
	ErrNotPremium = errors.New("premium unlock not purchased")

	// ErrCancelDenied is returned when the cancel policy refuses a manual stop.
	ErrCancelDenied = errors.New("cancel denied")
)

// CapabilityError lists the capabilities that blocked a session start.
type CapabilityError struct {
	Missing []Capability
}

func (e *CapabilityError) Error() string {
	names := make([]string, len(e.Missing))
	for i, c := range e.Missing {
		names[i] = string(c)
	}
	return fmt.Sprintf("%s: %s", ErrCapabilityMissing, strings.Join(names, ", "))
}

// Is lets errors.Is(err, ErrCapabilityMissing) match.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapabilityMissing
}
