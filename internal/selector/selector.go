// Package selector converts user gestures (a circular drag or typed digits)
// into a committed session duration in minutes.
//
// The selector owns only ephemeral interaction state (angle, previous pointer
// angle, editing flag). It talks to the session controller solely through
// the committed minute value and the editing begin/end notifications.
package selector

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

const (
	// DefaultMaxMinutes is the full-circle duration.
	DefaultMaxMinutes = 180

	// DefaultMinutes is the initial selection.
	DefaultMinutes = 30

	fullTurn = 360.0
)

// EditingListener is told when the user starts and stops editing so the
// countdown can be paused. The session controller implements it.
type EditingListener interface {
	BeginEditing()
	EndEditing()
}

// CommitFunc receives every committed minute value.
type CommitFunc func(minutes int)

// Selector is owned by a single UI goroutine and is not safe for concurrent use.
type Selector struct {
	maxMinutes  int
	centerX     float64
	centerY     float64
	angle       float64 // committed position on the dial, [0, 360]
	prevPointer float64 // last accepted pointer angle, [0, 360)
	minutes     int
	editing     bool
	onCommit    CommitFunc
	listener    EditingListener
}

// Option customizes a Selector.
type Option func(*Selector)

// WithCenter sets the dial center used to convert pointer positions.
func WithCenter(x, y float64) Option {
	return func(s *Selector) {
		s.centerX, s.centerY = x, y
	}
}

// WithCommit registers the commit callback.
func WithCommit(fn CommitFunc) Option {
	return func(s *Selector) {
		s.onCommit = fn
	}
}

// WithEditingListener registers the editing listener.
func WithEditingListener(l EditingListener) Option {
	return func(s *Selector) {
		s.listener = l
	}
}

// New creates a selector positioned at initialMinutes.
func New(maxMinutes, initialMinutes int, opts ...Option) *Selector {
	if maxMinutes <= 0 {
		maxMinutes = DefaultMaxMinutes
	}
	initialMinutes = clampInt(initialMinutes, 0, maxMinutes)

	s := &Selector{
		maxMinutes: maxMinutes,
		minutes:    initialMinutes,
		angle:      fullTurn * float64(initialMinutes) / float64(maxMinutes),
	}
	s.prevPointer = normalize(s.angle)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinutesForAngle maps a dial angle to minutes: round(max*angle/360),
// with the angle clamped to [0, 360].
func MinutesForAngle(maxMinutes int, angle float64) int {
	angle = clampFloat(angle, 0, fullTurn)
	m := int(math.Round(float64(maxMinutes) * angle / fullTurn))
	return clampInt(m, 0, maxMinutes)
}

// ParseMinutes keeps only the digits of raw and clamps them to [1, max].
// Input with no digits resolves to 0 and ErrInvalidDuration.
func ParseMinutes(maxMinutes int, raw string) (int, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return 0, domain.ErrInvalidDuration
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return maxMinutes, nil
		}
		return 0, domain.ErrInvalidDuration
	}
	return clampInt(n, 1, maxMinutes), nil
}

// SetFromAngle positions the dial at angleDegrees and commits the result.
func (s *Selector) SetFromAngle(angleDegrees float64) int {
	s.angle = clampFloat(angleDegrees, 0, fullTurn)
	s.commit(MinutesForAngle(s.maxMinutes, s.angle))
	return s.minutes
}

// SetFromText commits a typed duration. Rejected input leaves the current
// selection unchanged and is not committed.
func (s *Selector) SetFromText(raw string) (int, error) {
	m, err := ParseMinutes(s.maxMinutes, raw)
	if err != nil {
		return 0, err
	}
	s.angle = fullTurn * float64(m) / float64(s.maxMinutes)
	s.commit(m)
	return m, nil
}

// PointerAngle converts a pointer position into an angle in [0, 360)
// around the dial center.
func (s *Selector) PointerAngle(x, y float64) float64 {
	deg := math.Atan2(y-s.centerY, x-s.centerX) * 180 / math.Pi
	return normalize(deg)
}

// BeginDrag starts an editing gesture at the given pointer position.
func (s *Selector) BeginDrag(x, y float64) {
	s.prevPointer = s.PointerAngle(x, y)
	if !s.editing {
		s.editing = true
		if s.listener != nil {
			s.listener.BeginEditing()
		}
	}
}

// DragTo moves the pointer to (x, y) and returns the committed minutes.
func (s *Selector) DragTo(x, y float64) int {
	return s.DragToAngle(s.PointerAngle(x, y))
}

// DragToAngle applies the minimal signed delta between the previous pointer
// angle and theta. The dial clamps at 0 and 360 instead of wrapping, and a
// push further past a boundary already reached is ignored.
func (s *Selector) DragToAngle(theta float64) int {
	theta = normalize(theta)
	delta := math.Mod(theta-s.prevPointer+540, fullTurn) - 180

	if (s.angle == 0 && delta < 0) || (s.angle == fullTurn && delta > 0) {
		return s.minutes
	}

	s.angle = clampFloat(s.angle+delta, 0, fullTurn)
	s.prevPointer = theta
	s.commit(MinutesForAngle(s.maxMinutes, s.angle))
	return s.minutes
}

// EndDrag finishes the editing gesture.
func (s *Selector) EndDrag() {
	if !s.editing {
		return
	}
	s.editing = false
	if s.listener != nil {
		s.listener.EndEditing()
	}
}

// Angle returns the dial position in degrees.
func (s *Selector) Angle() float64 { return s.angle }

// Minutes returns the last committed value.
func (s *Selector) Minutes() int { return s.minutes }

// Editing reports whether a drag is in progress.
func (s *Selector) Editing() bool { return s.editing }

// MaxMinutes returns the full-circle duration.
func (s *Selector) MaxMinutes() int { return s.maxMinutes }

func (s *Selector) commit(m int) {
	s.minutes = m
	if s.onCommit != nil {
		s.onCommit(m)
	}
}

// normalize maps any angle into [0, 360).
func normalize(deg float64) float64 {
	deg = math.Mod(deg, fullTurn)
	if deg < 0 {
		deg += fullTurn
	}
	return deg
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
