package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

func collect(l *Ledger) []domain.LockSession {
	var out []domain.LockSession
	for rec := range l.All() {
		out = append(out, rec)
	}
	return out
}

func TestLedger_AppendPreservesOrder(t *testing.T) {
	l := NewLedger()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	var want []domain.LockSession
	for i := 0; i < 25; i++ {
		rec := domain.LockSession{
			Timestamp:       base.Add(time.Duration(i) * time.Hour),
			DurationMinutes: i + 1,
			Outcome:         domain.OutcomeCompleted,
		}
		want = append(want, rec)
		l.Append(rec)
	}

	assert.Equal(t, want, collect(l))
	assert.Equal(t, 25, l.Len())
}

func TestLedger_AllIsRestartable(t *testing.T) {
	l := NewLedgerFrom([]domain.LockSession{
		{DurationMinutes: 10},
		{DurationMinutes: 20},
	})

	first := collect(l)
	second := collect(l)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, l.Len())
}

func TestLedger_AllStopsEarly(t *testing.T) {
	l := NewLedgerFrom([]domain.LockSession{
		{DurationMinutes: 1}, {DurationMinutes: 2}, {DurationMinutes: 3},
	})

	var seen []int
	for rec := range l.All() {
		seen = append(seen, rec.DurationMinutes)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []int{1, 2}, seen)
}

func TestLedger_EmptyYieldsNothing(t *testing.T) {
	assert.Empty(t, collect(NewLedger()))
}

func TestLedger_RecordsIsACopy(t *testing.T) {
	l := NewLedgerFrom([]domain.LockSession{{DurationMinutes: 5}})

	recs := l.Records()
	require.Len(t, recs, 1)
	recs[0].DurationMinutes = 99

	assert.Equal(t, 5, collect(l)[0].DurationMinutes)
}

func TestLedger_Summarize(t *testing.T) {
	l := NewLedger()
	l.Append(domain.LockSession{DurationMinutes: 30, Outcome: domain.OutcomeCompleted})
	l.Append(domain.LockSession{DurationMinutes: 45, Outcome: domain.OutcomeEmergency})
	l.Append(domain.LockSession{DurationMinutes: 15, Outcome: domain.OutcomeCompleted})

	s := l.Summarize()
	assert.Equal(t, 3, s.Sessions)
	assert.Equal(t, 90, s.TotalMinutes)
	assert.Equal(t, 2, s.ByOutcome[domain.OutcomeCompleted])
	assert.Equal(t, 1, s.ByOutcome[domain.OutcomeEmergency])
}
