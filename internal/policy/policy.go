// Package policy decides which apps stay usable during a detox session.
// Every app carries an AppPolicy; the whitelist adds user-chosen apps on top
// of the built-in essential ones.
package policy

import "strings"

// AppPolicy describes an app that is always allowed while a session runs.
type AppPolicy interface {
	// ID returns unique identifier (e.g., "dialer").
	ID() string

	// Name returns human-readable name for display.
	Name() string

	// ProcessPatterns returns app identifiers this policy covers.
	// Patterns are matched case-insensitively.
	ProcessPatterns() []string
}

// Normalize canonicalizes an app identifier for set membership.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
