package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleWindow_Contains(t *testing.T) {
	overnight := NewScheduleWindow(TimeOfDay{22, 0}, TimeOfDay{6, 0})
	daytime := NewScheduleWindow(TimeOfDay{9, 0}, TimeOfDay{18, 0})
	always := NewScheduleWindow(TimeOfDay{7, 30}, TimeOfDay{7, 30})

	tests := []struct {
		name   string
		window ScheduleWindow
		now    TimeOfDay
		want   bool
	}{
		{"overnight late evening", overnight, TimeOfDay{23, 30}, true},
		{"overnight early morning", overnight, TimeOfDay{5, 0}, true},
		{"overnight midday", overnight, TimeOfDay{12, 0}, false},
		{"overnight start is inclusive", overnight, TimeOfDay{22, 0}, true},
		{"overnight end is exclusive", overnight, TimeOfDay{6, 0}, false},
		{"overnight midnight", overnight, TimeOfDay{0, 0}, true},
		{"daytime inside", daytime, TimeOfDay{12, 15}, true},
		{"daytime start is inclusive", daytime, TimeOfDay{9, 0}, true},
		{"daytime end is exclusive", daytime, TimeOfDay{18, 0}, false},
		{"daytime before", daytime, TimeOfDay{8, 59}, false},
		{"equal start and end at start", always, TimeOfDay{7, 30}, true},
		{"equal start and end elsewhere", always, TimeOfDay{19, 45}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Contains(tt.now))
		})
	}
}

func TestScheduleWindow_MinutesUntilEnd(t *testing.T) {
	overnight := NewScheduleWindow(TimeOfDay{22, 0}, TimeOfDay{6, 0})
	assert.Equal(t, 390, overnight.MinutesUntilEnd(TimeOfDay{23, 30}))
	assert.Equal(t, 60, overnight.MinutesUntilEnd(TimeOfDay{5, 0}))

	always := NewScheduleWindow(TimeOfDay{0, 0}, TimeOfDay{0, 0})
	assert.Equal(t, 24*60, always.MinutesUntilEnd(TimeOfDay{13, 0}))
}

func TestScheduleWindow_Validate(t *testing.T) {
	assert.NoError(t, NewScheduleWindow(TimeOfDay{9, 0}, TimeOfDay{18, 0}).Validate())
	assert.Error(t, NewScheduleWindow(TimeOfDay{24, 0}, TimeOfDay{18, 0}).Validate())
	assert.Error(t, NewScheduleWindow(TimeOfDay{9, 0}, TimeOfDay{18, 60}).Validate())
}

func TestScheduleWindow_Occurrence(t *testing.T) {
	overnight := NewScheduleWindow(TimeOfDay{22, 0}, TimeOfDay{6, 0})
	daytime := NewScheduleWindow(TimeOfDay{9, 0}, TimeOfDay{18, 0})
	day := func(d, h, m int) time.Time { return time.Date(2024, 5, d, h, m, 0, 0, time.Local) }

	assert.Equal(t, "2024-05-10 09:00-18:00", daytime.Occurrence(day(10, 9, 0)))
	assert.Equal(t, "2024-05-10 09:00-18:00", daytime.Occurrence(day(10, 17, 59)))
	assert.Equal(t, "2024-05-10 22:00-06:00", overnight.Occurrence(day(10, 23, 0)))
	assert.Equal(t, "2024-05-10 22:00-06:00", overnight.Occurrence(day(11, 5, 30)))
	assert.NotEqual(t, overnight.Occurrence(day(11, 5, 30)), overnight.Occurrence(day(11, 22, 0)))
}
