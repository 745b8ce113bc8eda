// Package schedule turns the daily schedule window into session starts.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// WindowSource returns the currently configured window.
type WindowSource func() domain.ScheduleWindow

// MarkSource returns the persisted record of the last scheduled session.
type MarkSource func() domain.ScheduleMark

// EnterFunc starts a scheduled session for the given window occurrence.
type EnterFunc func(minutes int, occurrence string) error

// Trigger starts a session once per window occurrence and, while the window
// is still open, a follow-up each time the scheduled session runs to
// completion. A scheduled session that was unlocked or cancelled early is
// not restarted within the same occurrence. Check is driven by an external
// ticker.
type Trigger struct {
	mu      sync.Mutex
	window  WindowSource
	mark    MarkSource
	onEnter EnterFunc
	failed  string
	logger  *zap.Logger
}

// NewTrigger creates a trigger. The first Check inside an unserved window
// occurrence fires.
func NewTrigger(window WindowSource, mark MarkSource, onEnter EnterFunc, logger *zap.Logger) *Trigger {
	return &Trigger{
		window:  window,
		mark:    mark,
		onEnter: onEnter,
		logger:  logger,
	}
}

// Check evaluates now against the window and the last scheduled session.
// It reports whether the enter callback ran.
func (t *Trigger) Check(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.window()
	if !w.Enabled {
		return false
	}
	tod := domain.TimeOfDayOf(now)
	if !w.Contains(tod) {
		return false
	}

	occurrence := w.Occurrence(now)
	if occurrence == t.failed {
		return false
	}
	mark := t.mark()
	followUp := mark.Occurrence == occurrence
	if followUp && mark.Outcome != domain.OutcomeCompleted {
		return false
	}

	minutes := w.MinutesUntilEnd(tod)
	err := t.onEnter(minutes, occurrence)
	switch {
	case err == nil:
		t.logger.Info("scheduled session started",
			zap.String("window", w.String()),
			zap.String("occurrence", occurrence),
			zap.Bool("follow_up", followUp),
			zap.Int("minutes", minutes))
	case errors.Is(err, domain.ErrSessionActive):
		// Another session holds the lock; try again once it ends.
		t.logger.Debug("scheduled session deferred", zap.String("window", w.String()))
	default:
		t.failed = occurrence
		t.logger.Warn("scheduled session not started",
			zap.String("window", w.String()),
			zap.Error(err))
	}
	return true
}

// ParseTimeOfDay parses "HH:MM" in 24h format.
func ParseTimeOfDay(s string) (domain.TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return domain.TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return domain.TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return domain.TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	tod := domain.TimeOfDay{Hour: h, Minute: m}
	if !tod.Valid() {
		return domain.TimeOfDay{}, fmt.Errorf("time of day out of range: %q", s)
	}
	return tod, nil
}

// ParseWindow builds an enabled window from two "HH:MM" strings.
func ParseWindow(start, end string) (domain.ScheduleWindow, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return domain.ScheduleWindow{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return domain.ScheduleWindow{}, err
	}
	return domain.NewScheduleWindow(s, e), nil
}
