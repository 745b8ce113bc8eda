package domain

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time in local time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// TimeOfDayOf extracts the local time of day from t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Valid reports whether the hour and minute are in range.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// ScheduleWindow is a recurring daily interval [start, end) in local time.
// End before start means the window spans midnight; start equal to end
// means the window is always active.
type ScheduleWindow struct {
	Enabled     bool `json:"enabled"`
	StartHour   int  `json:"start_hour"`
	StartMinute int  `json:"start_minute"`
	EndHour     int  `json:"end_hour"`
	EndMinute   int  `json:"end_minute"`
}

// NewScheduleWindow builds an enabled window from two times of day.
func NewScheduleWindow(start, end TimeOfDay) ScheduleWindow {
	return ScheduleWindow{
		Enabled:     true,
		StartHour:   start.Hour,
		StartMinute: start.Minute,
		EndHour:     end.Hour,
		EndMinute:   end.Minute,
	}
}

// Start returns the window's opening time.
func (w ScheduleWindow) Start() TimeOfDay {
	return TimeOfDay{Hour: w.StartHour, Minute: w.StartMinute}
}

// End returns the window's closing time.
func (w ScheduleWindow) End() TimeOfDay {
	return TimeOfDay{Hour: w.EndHour, Minute: w.EndMinute}
}

// Validate checks that both ends are real times of day.
func (w ScheduleWindow) Validate() error {
	if !w.Start().Valid() {
		return fmt.Errorf("invalid schedule start %s", w.Start())
	}
	if !w.End().Valid() {
		return fmt.Errorf("invalid schedule end %s", w.End())
	}
	return nil
}

// AlwaysActive reports the 24h convention (start == end).
func (w ScheduleWindow) AlwaysActive() bool {
	return w.Start().Minutes() == w.End().Minutes()
}

// Contains reports whether now falls inside the window. It ignores Enabled;
// callers decide whether a disabled window matters.
func (w ScheduleWindow) Contains(now TimeOfDay) bool {
	start, end, n := w.Start().Minutes(), w.End().Minutes(), now.Minutes()
	switch {
	case start == end:
		return true
	case start < end:
		return start <= n && n < end
	default:
		return n >= start || n < end
	}
}

// MinutesUntilEnd returns how many minutes remain before the window closes,
// measured from now. For an always-active window it returns a full day.
func (w ScheduleWindow) MinutesUntilEnd(now TimeOfDay) int {
	if w.AlwaysActive() {
		return minutesPerDay
	}
	diff := w.End().Minutes() - now.Minutes()
	if diff <= 0 {
		diff += minutesPerDay
	}
	return diff
}

// Occurrence names the occurrence of the window that began most recently
// at or before now, e.g. "2024-05-10 22:00-06:00". A midnight-spanning
// window keeps the date it opened on.
func (w ScheduleWindow) Occurrence(now time.Time) string {
	opened := time.Date(now.Year(), now.Month(), now.Day(), w.StartHour, w.StartMinute, 0, 0, now.Location())
	if now.Before(opened) {
		opened = opened.AddDate(0, 0, -1)
	}
	return opened.Format("2006-01-02") + " " + w.String()
}

func (w ScheduleWindow) String() string {
	return fmt.Sprintf("%s-%s", w.Start(), w.End())
}
